package service

import "errors"

// 服务层错误分类，路由层据此映射 HTTP 状态码：
// ErrInvalidInput -> 400，ErrForbidden -> 403，ErrNotFound -> 404，
// 其余一律 500（存储层错误会记录日志后原样向上抛）。
var (
	ErrInvalidInput = errors.New("invalid input")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("not found")
)
