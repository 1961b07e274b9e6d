package biz

import (
	"errors"
	"fmt"
)

// ErrNoContent 文档未能提取出任何可索引的文本。
var ErrNoContent = errors.New("no text content could be extracted from the document")

// ValidationError 表示调用方输入不合法。
type ValidationError struct {
	// Field 出错的字段。
	Field string
	// Message 人类可读的错误描述。
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
	}
	return e.Message
}

// IsValidationError reports whether err is a *ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
