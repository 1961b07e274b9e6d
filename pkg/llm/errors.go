package llm

import "fmt"

// EmbeddingError 表示嵌入后端调用失败。
type EmbeddingError struct {
	// Provider 供应商名称。
	Provider string
	// Message 人类可读的错误描述。
	Message string
	// Err 底层错误。
	Err error
}

// Error implements the error interface.
func (e *EmbeddingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("embedding (%s): %s: %v", e.Provider, e.Message, e.Err)
	}
	return fmt.Sprintf("embedding (%s): %s", e.Provider, e.Message)
}

// Unwrap returns the underlying error.
func (e *EmbeddingError) Unwrap() error {
	return e.Err
}

// GenerationError 表示生成后端调用失败。
// 查询管线将其降级为带道歉文案的部分结果，而不是整体失败。
type GenerationError struct {
	// Provider 供应商名称。
	Provider string
	// Message 人类可读的错误描述。
	Message string
	// Err 底层错误。
	Err error
}

// Error implements the error interface.
func (e *GenerationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("generation (%s): %s: %v", e.Provider, e.Message, e.Err)
	}
	return fmt.Sprintf("generation (%s): %s", e.Provider, e.Message)
}

// Unwrap returns the underlying error.
func (e *GenerationError) Unwrap() error {
	return e.Err
}
