package article

import (
	"errors"
	"fmt"
)

// TransportError 表示 Gateway 调用失败（网络不可达、后端拒绝等）。
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: transport failure", e.Op)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ValidationError 表示变更请求在调用 Gateway 之前就未通过必填校验。
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// NotFoundError 表示编辑/删除引用的 URL 不存在。
type NotFoundError struct {
	URL string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("article not found: %s", e.URL)
}

// NewTransportError wraps err unless it already carries a domain error, in
// which case it is returned as-is so callers can still match it.
func NewTransportError(op string, err error) error {
	if err == nil {
		return nil
	}
	if IsValidation(err) || IsNotFound(err) || IsTransport(err) {
		return err
	}
	return &TransportError{Op: op, Err: err}
}

func IsTransport(err error) bool {
	var target *TransportError
	return errors.As(err, &target)
}

func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

func IsNotFound(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}
