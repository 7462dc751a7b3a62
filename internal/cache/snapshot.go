package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/natefinch/atomic"

	"github.com/linkshelf/linkshelf/internal/article"
)

// ErrSnapshotNotFound 表示磁盘上还没有快照文件。
var ErrSnapshotNotFound = errors.New("snapshot not found")

// Snapshot 是某次成功拉取后的完整缓存副本。
type Snapshot struct {
	Articles  []article.Article `json:"articles"`
	Filter    article.Filter    `json:"filter"`
	Version   uint64            `json:"version"`
	FetchedAt time.Time         `json:"fetched_at"`
}

// SnapshotStore 负责快照的持久化。
type SnapshotStore interface {
	// Load 读取最近一次保存的快照，不存在时返回 ErrSnapshotNotFound。
	Load(ctx context.Context) (Snapshot, error)
	// Save 覆盖写入快照，实现需保证写入原子性。
	Save(ctx context.Context, snapshot Snapshot) error
}

// NewFileSnapshotStore 以单个 JSON 文件保存快照，父目录不存在时自动创建。
func NewFileSnapshotStore(path string) (SnapshotStore, error) {
	if path == "" {
		return nil, errors.New("snapshot path required")
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve snapshot path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return nil, fmt.Errorf("create snapshot dir: %w", err)
	}

	return &fileSnapshotStore{path: abs}, nil
}

// fileSnapshotStore 串行化写入；读取直接打开文件。
type fileSnapshotStore struct {
	path string
	mu   sync.Mutex
}

func (s *fileSnapshotStore) Load(ctx context.Context) (Snapshot, error) {
	select {
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	default:
	}

	raw, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Snapshot{}, ErrSnapshotNotFound
		}
		return Snapshot{}, err
	}

	var snapshot Snapshot
	if err := json.Unmarshal(raw, &snapshot); err != nil {
		return Snapshot{}, fmt.Errorf("decode snapshot %s: %w", s.path, err)
	}
	return snapshot, nil
}

func (s *fileSnapshotStore) Save(ctx context.Context, snapshot Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	encoded, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return atomic.WriteFile(s.path, bytes.NewReader(encoded))
}
