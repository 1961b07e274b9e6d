package store

import (
	"errors"
	"fmt"
)

// ErrorKind classifies index failures.
type ErrorKind string

const (
	// KindNotFound 持久化文件不存在。
	KindNotFound ErrorKind = "not_found"
	// KindDimensionMismatch 向量维度与索引不一致。
	KindDimensionMismatch ErrorKind = "dimension_mismatch"
	// KindCorrupt 持久化数据损坏或格式不可识别。
	KindCorrupt ErrorKind = "corrupt"
)

// IndexError is the error type returned by VectorIndex implementations.
type IndexError struct {
	// Kind 错误分类。
	Kind ErrorKind
	// Op 出错的操作（add, search, save, load）。
	Op string
	// Message 人类可读的错误描述。
	Message string
	// Err 底层错误。
	Err error
}

// Error implements the error interface.
func (e *IndexError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("index %s: %s: %v", e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("index %s: %s", e.Op, e.Message)
}

// Unwrap returns the underlying error.
func (e *IndexError) Unwrap() error {
	return e.Err
}

// IsKind reports whether err is an *IndexError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var ie *IndexError
	return errors.As(err, &ie) && ie.Kind == kind
}
