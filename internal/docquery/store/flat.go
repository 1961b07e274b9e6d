// Package store provides the flat vector index backing the document store.
package store

import (
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/kart-io/logger"
)

const (
	// indexMagic 索引文件魔数（"DQVI"）。
	indexMagic uint32 = 0x44515649
	// indexVersion 索引文件格式版本。
	indexVersion uint32 = 1
	// MetadataSuffix 元数据 sidecar 文件的后缀。
	MetadataSuffix = ".metadata"
)

// FlatIndex is a brute-force squared-L2 index. Vectors are stored in a
// single flattened slice; metadata is kept position-aligned in a parallel
// slice. Safe for concurrent use.
type FlatIndex struct {
	mu      sync.RWMutex
	dim     int
	vectors []float32
	metas   []Metadata
}

// NewFlatIndex creates a FlatIndex with the given dimension.
// dim 0 leaves the dimension to be fixed by the first AddVectors or Load.
func NewFlatIndex(dim int) *FlatIndex {
	return &FlatIndex{dim: dim}
}

var _ VectorIndex = (*FlatIndex)(nil)

// AddVectors appends vectors with their metadata.
func (f *FlatIndex) AddVectors(vectors [][]float32, metas []Metadata) error {
	if len(vectors) == 0 {
		return nil
	}
	if len(vectors) != len(metas) {
		return &IndexError{
			Kind:    KindDimensionMismatch,
			Op:      "add",
			Message: fmt.Sprintf("vector count %d does not match metadata count %d", len(vectors), len(metas)),
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	dim := f.dim
	if dim == 0 {
		dim = len(vectors[0])
	}
	// 先整体校验，任何一条不合法都不追加
	for i, v := range vectors {
		if len(v) != dim {
			return &IndexError{
				Kind:    KindDimensionMismatch,
				Op:      "add",
				Message: fmt.Sprintf("vector %d has dimension %d, index dimension is %d", i, len(v), dim),
			}
		}
	}

	f.dim = dim
	for _, v := range vectors {
		f.vectors = append(f.vectors, v...)
	}
	f.metas = append(f.metas, metas...)
	return nil
}

// Search returns the k nearest stored vectors by squared L2 distance.
func (f *FlatIndex) Search(query []float32, k int) ([]SearchResult, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	count := len(f.metas)
	if count == 0 || k <= 0 {
		return []SearchResult{}, nil
	}
	if len(query) != f.dim {
		return nil, &IndexError{
			Kind:    KindDimensionMismatch,
			Op:      "search",
			Message: fmt.Sprintf("query has dimension %d, index dimension is %d", len(query), f.dim),
		}
	}
	if k > count {
		k = count
	}

	results := make([]SearchResult, count)
	for i := 0; i < count; i++ {
		row := f.vectors[i*f.dim : (i+1)*f.dim]
		var dist float32
		for j, q := range query {
			d := row[j] - q
			dist += d * d
		}
		results[i] = SearchResult{Metadata: f.metas[i], Distance: dist}
	}

	sort.SliceStable(results, func(a, b int) bool {
		return results[a].Distance < results[b].Distance
	})
	return results[:k], nil
}

// Count returns the number of stored vectors.
func (f *FlatIndex) Count() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.metas)
}

// Metadatas returns a copy of the stored metadata in insertion order.
func (f *FlatIndex) Metadatas() []Metadata {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]Metadata, len(f.metas))
	copy(out, f.metas)
	return out
}

// Dimension returns the fixed vector dimension.
func (f *FlatIndex) Dimension() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.dim
}

// Clear resets the in-memory contents. The dimension is kept so a cleared
// index keeps rejecting mismatched vectors.
func (f *FlatIndex) Clear() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.vectors = nil
	f.metas = nil
}

// Save persists the index to path and its metadata to path+MetadataSuffix.
// Both files are written to temporaries and atomically renamed so readers
// never observe a partial write.
func (f *FlatIndex) Save(path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return &IndexError{Kind: KindCorrupt, Op: "save", Message: "failed to create index directory", Err: err}
		}
	}

	if err := atomicWrite(path, func(w io.Writer) error {
		return f.writeIndex(w)
	}); err != nil {
		return &IndexError{Kind: KindCorrupt, Op: "save", Message: "failed to write index file", Err: err}
	}

	if err := atomicWrite(path+MetadataSuffix, func(w io.Writer) error {
		return gob.NewEncoder(w).Encode(f.metas)
	}); err != nil {
		return &IndexError{Kind: KindCorrupt, Op: "save", Message: "failed to write metadata file", Err: err}
	}

	logger.Infow("index saved", "path", path, "count", len(f.metas), "dimension", f.dim)
	return nil
}

// Load replaces the index contents from a persisted pair. A missing index
// file yields KindNotFound. A missing metadata sidecar is tolerated, but the
// orphaned vectors are discarded along with it: without position-aligned
// metadata they can never be returned, and keeping them would misalign the
// pair on the next append. Only the dimension survives.
func (f *FlatIndex) Load(path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &IndexError{Kind: KindNotFound, Op: "load", Message: fmt.Sprintf("index file %s does not exist", path)}
		}
		return &IndexError{Kind: KindCorrupt, Op: "load", Message: "failed to open index file", Err: err}
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return &IndexError{Kind: KindCorrupt, Op: "load", Message: "failed to stat index file", Err: err}
	}

	dim, vectors, err := readIndex(file, info.Size())
	if err != nil {
		return &IndexError{Kind: KindCorrupt, Op: "load", Message: "failed to read index file", Err: err}
	}

	var metas []Metadata
	metaFile, err := os.Open(path + MetadataSuffix)
	if err != nil {
		if !os.IsNotExist(err) {
			return &IndexError{Kind: KindCorrupt, Op: "load", Message: "failed to open metadata file", Err: err}
		}
		if len(vectors) > 0 {
			logger.Warnw("metadata file missing, discarding persisted vectors",
				"path", path+MetadataSuffix,
				"dropped_count", len(vectors)/dim,
			)
			vectors = nil
		}
	} else {
		defer metaFile.Close()
		if err := gob.NewDecoder(metaFile).Decode(&metas); err != nil {
			return &IndexError{Kind: KindCorrupt, Op: "load", Message: "failed to decode metadata file", Err: err}
		}
		if (len(metas) > 0 && dim == 0) || len(metas)*dim != len(vectors) {
			return &IndexError{
				Kind:    KindCorrupt,
				Op:      "load",
				Message: fmt.Sprintf("metadata count %d does not match vector count %d", len(metas), len(vectors)/max(dim, 1)),
			}
		}
	}

	f.dim = dim
	f.vectors = vectors
	f.metas = metas
	logger.Infow("index loaded", "path", path, "count", len(metas), "dimension", dim)
	return nil
}

// writeIndex writes the binary index format:
// magic, version, dimension, count (uint32 LE) followed by count*dimension
// float32 values.
func (f *FlatIndex) writeIndex(w io.Writer) error {
	header := []uint32{indexMagic, indexVersion, uint32(f.dim), uint32(len(f.metas))}
	for _, v := range header {
		if err := binary.Write(w, binary.LittleEndian, v); err != nil {
			return err
		}
	}
	return binary.Write(w, binary.LittleEndian, f.vectors)
}

// indexHeaderSize is the byte size of the four uint32 header fields.
const indexHeaderSize = 16

// readIndex reads the binary index format. The header's dimension and count
// are untrusted: the declared payload must account for exactly the remaining
// size bytes, so a forged header can neither force an oversized allocation
// nor hide trailing garbage.
func readIndex(r io.Reader, size int64) (int, []float32, error) {
	var magic, version, dim, count uint32
	for _, p := range []*uint32{&magic, &version, &dim, &count} {
		if err := binary.Read(r, binary.LittleEndian, p); err != nil {
			return 0, nil, err
		}
	}
	if magic != indexMagic {
		return 0, nil, fmt.Errorf("bad magic 0x%08x", magic)
	}
	if version != indexVersion {
		return 0, nil, fmt.Errorf("unsupported index version %d", version)
	}

	elems := int64(dim) * int64(count)
	if indexHeaderSize+elems*4 != size {
		return 0, nil, fmt.Errorf("declared payload of %d vectors x %d dims does not match file size %d", count, dim, size)
	}
	if elems != int64(int(elems)) {
		return 0, nil, fmt.Errorf("declared payload of %d elements exceeds addressable memory", elems)
	}

	vectors := make([]float32, int(elems))
	if err := binary.Read(r, binary.LittleEndian, vectors); err != nil {
		return 0, nil, err
	}
	return int(dim), vectors, nil
}

// atomicWrite writes via a temp file in the target directory and renames it
// into place.
func atomicWrite(path string, write func(io.Writer) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	defer func() {
		if tmp != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	if err := write(tmp); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	name := tmp.Name()
	tmp = nil
	return os.Rename(name, path)
}
