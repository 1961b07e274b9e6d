package biz

// IngestResult 摄取操作的结果。
type IngestResult struct {
	// DocumentID 确定性文档 ID。
	DocumentID string `json:"document_id"`
	// ChunkCount 写入索引的块数。
	ChunkCount int `json:"chunk_count"`
	// Message 处理结果描述。
	Message string `json:"message,omitempty"`
}

// Context 检索到的上下文片段。
type Context struct {
	// Text 块文本。
	Text string `json:"text"`
	// Source 文档来源。
	Source string `json:"source"`
	// DocumentID 所属文档 ID。
	DocumentID string `json:"document_id"`
	// ChunkID 块 ID。
	ChunkID string `json:"chunk_id"`
	// Score 与查询的平方 L2 距离，越小越相似。
	Score float32 `json:"score"`
}

// QueryResult 查询操作的结果。
type QueryResult struct {
	// Answer 生成的回答。
	Answer string `json:"answer"`
	// Contexts 按相似度升序排列的检索上下文。
	Contexts []Context `json:"contexts"`
	// QueryEmbedding 归一化后的查询向量。
	QueryEmbedding []float32 `json:"query_embedding,omitempty"`
	// Degraded 生成后端失败时为 true，此时 Answer 为固定道歉文案。
	Degraded bool `json:"degraded,omitempty"`
}

// DocumentInfo 按文档聚合的索引视图。
type DocumentInfo struct {
	// DocumentID 文档 ID。
	DocumentID string `json:"document_id"`
	// Source 文档来源。
	Source string `json:"source"`
	// ChunkCount 该文档的块数。
	ChunkCount int `json:"chunk_count"`
}
