package query

import (
	"regexp"
	"strings"
)

// space 覆盖 Unicode 空白（全角空格、不换行空格、BOM 等），RE2 的 \s 只匹配 ASCII。
const space = `[\s\v\x{85}\p{Z}\x{FEFF}]`

var (
	commaThenSpace = regexp.MustCompile(`,` + space + `+`)
	spaceThenComma = regexp.MustCompile(space + `+,`)
	whitespaceRun  = regexp.MustCompile(space + `+`)
)

// Normalize 将标签查询转换为规范形式：去掉逗号两侧空白、折叠空白、转小写并去除首尾空白。
// 只处理空白与大小写，不会删除或重排逗号分隔的 token。
func Normalize(input string) string {
	out := commaThenSpace.ReplaceAllString(input, ",")
	out = spaceThenComma.ReplaceAllString(out, ",")
	out = whitespaceRun.ReplaceAllString(out, " ")
	out = strings.ToLower(out)
	return strings.TrimSpace(out)
}

// Tokens 返回规范化后的非空 tag 列表，保持原有顺序。
func Tokens(input string) []string {
	normalized := Normalize(input)
	if normalized == "" {
		return nil
	}
	parts := strings.Split(normalized, ",")
	tokens := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			tokens = append(tokens, part)
		}
	}
	return tokens
}

// ContainsTag reports whether tag is already one of the query's tokens,
// comparing both sides in normalized form.
func ContainsTag(query, tag string) bool {
	want := Normalize(tag)
	if want == "" {
		return false
	}
	for _, token := range Tokens(query) {
		if token == want {
			return true
		}
	}
	return false
}

// AppendTag adds tag to query unless it is already present. The result is
// always normalized.
func AppendTag(query, tag string) string {
	normalizedTag := Normalize(tag)
	if normalizedTag == "" || ContainsTag(query, normalizedTag) {
		return Normalize(query)
	}
	current := Normalize(query)
	if current == "" {
		return normalizedTag
	}
	return Normalize(current + "," + normalizedTag)
}

// AppendFormTag adds tag to the free-form tags field of an edit form. Unlike
// AppendTag it keeps the user's casing and joins with ", "; a tag already
// present verbatim (after trimming) is not added twice.
func AppendFormTag(current, tag string) string {
	tag = strings.TrimSpace(tag)
	current = strings.TrimSpace(current)
	if tag == "" {
		return current
	}
	if current == "" {
		return tag
	}
	parts := strings.Split(current, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
		if parts[i] == tag {
			return current
		}
	}
	return strings.Join(append(parts, tag), ", ")
}
