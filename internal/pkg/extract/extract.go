// Package extract 将原始字节转换为可索引的纯文本。
//
// Only plain-text formats are handled here. Binary document formats
// (PDF, DOCX) belong to an external extraction service and are rejected
// with an ExtractionError.
package extract

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// textExtensions 支持直接透传的纯文本扩展名。
var textExtensions = map[string]bool{
	".txt":      true,
	".md":       true,
	".markdown": true,
	".text":     true,
	"":          true,
}

// ExtractionError reports an unsupported or unreadable source.
type ExtractionError struct {
	// Source 文档来源标识。
	Source string
	// Message 人类可读的错误描述。
	Message string
}

// Error implements the error interface.
func (e *ExtractionError) Error() string {
	if e.Source != "" {
		return fmt.Sprintf("extract %s: %s", e.Source, e.Message)
	}
	return "extract: " + e.Message
}

// Text converts raw content into plain text. extHint is the lowercase file
// extension including the dot, or empty when unknown.
func Text(content []byte, extHint, source string) (string, error) {
	ext := strings.ToLower(strings.TrimSpace(extHint))
	if !textExtensions[ext] {
		return "", &ExtractionError{
			Source:  source,
			Message: fmt.Sprintf("unsupported file type %q, supported types: txt, md", ext),
		}
	}
	if !utf8.Valid(content) {
		return "", &ExtractionError{
			Source:  source,
			Message: "content is not valid UTF-8 text",
		}
	}
	return string(content), nil
}
