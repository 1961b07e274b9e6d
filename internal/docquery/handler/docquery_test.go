package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kart-io/docquery/internal/docquery/biz"
	"github.com/kart-io/docquery/internal/docquery/handler"
	"github.com/kart-io/docquery/internal/docquery/router"
	"github.com/kart-io/docquery/internal/pkg/extract"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubService 返回预设结果，记录收到的参数。
type stubService struct {
	ingestResult *biz.IngestResult
	ingestErr    error
	queryResult  *biz.QueryResult
	queryErr     error
	count        int
	docs         []biz.DocumentInfo
	stats        map[string]any
	clearErr     error

	lastSource  string
	lastExtHint string
	lastText    string
	lastTopK    int
}

func (s *stubService) Ingest(_ context.Context, _ []byte, extHint, source string, _ map[string]string) (*biz.IngestResult, error) {
	s.lastExtHint = extHint
	s.lastSource = source
	return s.ingestResult, s.ingestErr
}

func (s *stubService) IngestText(_ context.Context, text, source string, _ map[string]string) (*biz.IngestResult, error) {
	s.lastText = text
	s.lastSource = source
	return s.ingestResult, s.ingestErr
}

func (s *stubService) Query(_ context.Context, _ string, topK int, _ map[string]string) (*biz.QueryResult, error) {
	s.lastTopK = topK
	return s.queryResult, s.queryErr
}

func (s *stubService) Count(_ context.Context) (int, error) { return s.count, nil }

func (s *stubService) Documents(_ context.Context) ([]biz.DocumentInfo, error) {
	return s.docs, nil
}

func (s *stubService) Stats(_ context.Context) (map[string]any, error) { return s.stats, nil }

func (s *stubService) Clear(_ context.Context) error { return s.clearErr }

func newTestRouter(svc biz.Service) http.Handler {
	return router.New(handler.NewDocQueryHandler(svc))
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestHealthz(t *testing.T) {
	h := newTestRouter(&stubService{})

	w := doJSON(t, h, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ok")
}

func TestIngestText(t *testing.T) {
	svc := &stubService{
		ingestResult: &biz.IngestResult{
			DocumentID: "abc123",
			ChunkCount: 2,
			Message:    "Successfully processed and stored document with 2 chunks",
		},
	}
	h := newTestRouter(svc)

	w := doJSON(t, h, http.MethodPost, "/v1/documents/text", map[string]any{
		"text":   "some document content",
		"source": "notes.txt",
	})
	require.Equal(t, http.StatusOK, w.Code)

	var resp handler.SuccessResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 0, resp.Code)
	assert.Equal(t, "notes.txt", svc.lastSource)
	assert.Equal(t, "some document content", svc.lastText)
}

func TestIngestTextMissingFields(t *testing.T) {
	h := newTestRouter(&stubService{})

	// 缺少 source 字段
	w := doJSON(t, h, http.MethodPost, "/v1/documents/text", map[string]any{"text": "content"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestIngestTextNoContent(t *testing.T) {
	svc := &stubService{ingestErr: biz.ErrNoContent}
	h := newTestRouter(svc)

	w := doJSON(t, h, http.MethodPost, "/v1/documents/text", map[string]any{
		"text":   "   ",
		"source": "blank.txt",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestIngestFileUpload(t *testing.T) {
	svc := &stubService{
		ingestResult: &biz.IngestResult{DocumentID: "doc1", ChunkCount: 1, Message: "ok"},
	}
	h := newTestRouter(svc)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "report.md")
	require.NoError(t, err)
	_, err = part.Write([]byte("# Report\n\nBody text."))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/v1/documents", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, ".md", svc.lastExtHint)
	assert.Equal(t, "report.md", svc.lastSource)
}

func TestIngestFileMissing(t *testing.T) {
	h := newTestRouter(&stubService{})

	w := doJSON(t, h, http.MethodPost, "/v1/documents", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "file is required")
}

func TestIngestFileUnsupportedFormat(t *testing.T) {
	svc := &stubService{
		ingestErr: &extract.ExtractionError{Source: "scan.pdf", Message: "unsupported file format: .pdf"},
	}
	h := newTestRouter(svc)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "scan.pdf")
	require.NoError(t, err)
	_, err = part.Write([]byte("%PDF-1.4"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/v1/documents", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "unsupported file format")
}

func TestQuery(t *testing.T) {
	svc := &stubService{
		queryResult: &biz.QueryResult{
			Answer: "the answer",
			Contexts: []biz.Context{
				{Text: "relevant text", Source: "a.txt", DocumentID: "doc1", ChunkID: "doc1_chunk_0", Score: 0.1},
			},
		},
	}
	h := newTestRouter(svc)

	w := doJSON(t, h, http.MethodPost, "/v1/query", map[string]any{
		"question": "what is relevant?",
		"top_k":    5,
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 5, svc.lastTopK)

	var resp handler.SuccessResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	data, ok := resp.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "the answer", data["answer"])
}

func TestQueryMissingQuestion(t *testing.T) {
	h := newTestRouter(&stubService{})

	w := doJSON(t, h, http.MethodPost, "/v1/query", map[string]any{"top_k": 3})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestQueryValidationError(t *testing.T) {
	svc := &stubService{
		queryErr: &biz.ValidationError{Field: "question", Message: "question cannot be blank"},
	}
	h := newTestRouter(svc)

	w := doJSON(t, h, http.MethodPost, "/v1/query", map[string]any{"question": "   "})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "question cannot be blank")
}

func TestCount(t *testing.T) {
	h := newTestRouter(&stubService{count: 42})

	w := doJSON(t, h, http.MethodGet, "/v1/documents/count", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"chunk_count":42`)
}

func TestDocuments(t *testing.T) {
	h := newTestRouter(&stubService{
		docs: []biz.DocumentInfo{
			{DocumentID: "doc1", Source: "a.txt", ChunkCount: 3},
			{DocumentID: "doc2", Source: "b.txt", ChunkCount: 2},
		},
	})

	w := doJSON(t, h, http.MethodGet, "/v1/documents", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "a.txt")
	assert.Contains(t, w.Body.String(), "b.txt")
}

func TestStats(t *testing.T) {
	h := newTestRouter(&stubService{
		stats: map[string]any{"chunk_count": 5, "document_count": 2, "dimension": 768},
	})

	w := doJSON(t, h, http.MethodGet, "/v1/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"dimension":768`)
}

func TestClear(t *testing.T) {
	h := newTestRouter(&stubService{})

	w := doJSON(t, h, http.MethodDelete, "/v1/documents", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Index cleared successfully")
}
