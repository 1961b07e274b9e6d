package extract_test

import (
	"testing"

	"github.com/kart-io/docquery/internal/pkg/extract"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTextPlainFormats(t *testing.T) {
	tests := []struct {
		name    string
		ext     string
		content string
	}{
		{"txt 文件", ".txt", "hello world"},
		{"markdown 文件", ".md", "# Title\n\nbody"},
		{"无扩展名", "", "raw text"},
		{"大写扩展名", ".TXT", "hello"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text, err := extract.Text([]byte(tt.content), tt.ext, "test")
			require.NoError(t, err)
			assert.Equal(t, tt.content, text)
		})
	}
}

func TestTextUnsupportedExtension(t *testing.T) {
	for _, ext := range []string{".pdf", ".docx", ".png"} {
		_, err := extract.Text([]byte("data"), ext, "file"+ext)
		require.Error(t, err)

		var exErr *extract.ExtractionError
		require.ErrorAs(t, err, &exErr)
		assert.Contains(t, exErr.Message, "unsupported file type")
	}
}

func TestTextInvalidUTF8(t *testing.T) {
	_, err := extract.Text([]byte{0xff, 0xfe, 0x00}, ".txt", "bin.txt")
	require.Error(t, err)

	var exErr *extract.ExtractionError
	require.ErrorAs(t, err, &exErr)
	assert.Contains(t, exErr.Message, "UTF-8")
}
