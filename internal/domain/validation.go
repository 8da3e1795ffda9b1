package domain

import (
	"errors"
	"regexp"
	"strings"
)

// 验证相关的错误定义
var (
	ErrPrefixEmpty   = errors.New("prefix is empty")
	ErrPrefixTooLong = errors.New("prefix too long (max 50 chars)")
	ErrPrefixFormat  = errors.New("prefix may only contain letters, digits, '.', '_' and '-'")
)

// 前缀长度限制
const (
	MinPrefixLength = 1
	MaxPrefixLength = 50
)

// prefixRegex 用户输入与自动生成的前缀都必须满足的字符集
var prefixRegex = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// ValidatePrefix 校验别名前缀
func ValidatePrefix(prefix string) error {
	switch {
	case len(prefix) < MinPrefixLength:
		return ErrPrefixEmpty
	case len(prefix) > MaxPrefixLength:
		return ErrPrefixTooLong
	case !prefixRegex.MatchString(prefix):
		return ErrPrefixFormat
	}
	return nil
}

// IsValidPrefixCharset 仅检查字符集，不检查长度
func IsValidPrefixCharset(prefix string) bool {
	return prefixRegex.MatchString(prefix)
}

// AliasAddress 拼接完整别名地址，域名统一为小写
func AliasAddress(prefix, domainName string) string {
	return prefix + "@" + strings.ToLower(domainName)
}
