package store

// Metadata describes a single indexed chunk. Entries are position-aligned
// with the vectors held by a VectorIndex.
type Metadata struct {
	// DocumentID 所属文档 ID。
	DocumentID string `json:"document_id"`
	// ChunkID 文档块 ID。
	ChunkID string `json:"chunk_id"`
	// ChunkIndex 块在文档内的序号。
	ChunkIndex int `json:"chunk_index"`
	// ChunkCount 文档的总块数。
	ChunkCount int `json:"chunk_count"`
	// Source 文档来源（文件名或 URL）。
	Source string `json:"source"`
	// Text 块的原始文本。
	Text string `json:"text"`
	// Extra 调用方附加的元数据。
	Extra map[string]string `json:"extra,omitempty"`
}

// SearchResult 表示检索结果。
type SearchResult struct {
	// Metadata 命中块的元数据。
	Metadata Metadata `json:"metadata"`
	// Distance 与查询向量的平方 L2 距离，越小越相似。
	Distance float32 `json:"distance"`
}

// VectorIndex defines an in-process vector index with sidecar metadata.
// Vectors and metadata are appended together and stay position-aligned
// for the lifetime of the index.
type VectorIndex interface {
	// AddVectors appends vectors with their metadata. The index dimension
	// is fixed by the first batch; later batches must match it. On any
	// validation failure nothing is appended.
	AddVectors(vectors [][]float32, metas []Metadata) error

	// Search returns the k nearest stored vectors by squared L2 distance,
	// ascending. k is clamped to the stored count.
	Search(query []float32, k int) ([]SearchResult, error)

	// Count returns the number of stored vectors.
	Count() int

	// Metadatas returns a copy of the stored metadata in insertion order.
	Metadatas() []Metadata

	// Dimension returns the fixed vector dimension, 0 before first use.
	Dimension() int

	// Save persists the index to path and its metadata to path+".metadata".
	Save(path string) error

	// Load replaces the index contents from a persisted pair.
	Load(path string) error

	// Clear resets the in-memory contents. Persisted files are untouched
	// until the next Save.
	Clear()
}
