package service

import (
	"errors"
	"fmt"
)

// 业务层通用错误，handler 根据错误类型映射到合适的 HTTP 状态码。
var (
	ErrUsernameTaken      = errors.New("username taken")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrMessageNotFound    = errors.New("message not found")
	ErrSwitchNotFound     = errors.New("switch state not found")
)

// ValidationError 字段校验失败，handler 映射为 400 并把 Reason 透出给客户端。
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
