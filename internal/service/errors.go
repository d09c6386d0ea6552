package service

import "errors"

// 错误种类哨兵。handlers 据此映射 HTTP 状态码，
// 客户端可以区分“修正输入”和“没有权限”。
var (
	ErrValidation   = errors.New("validation failed")
	ErrUnauthorized = errors.New("not authenticated")
	ErrForbidden    = errors.New("operation not allowed")
)
