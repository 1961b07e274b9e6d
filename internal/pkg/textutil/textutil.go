// Package textutil 提供文档分块与哈希工具函数。
package textutil

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"strings"
)

// SplitIntoChunks 将文本分割成重叠的块。
// chunkSize 是每个块的最大大小（Unicode 字符数），overlap 是块之间的重叠大小。
// Chunks are trimmed and empty chunks are dropped. Boundaries prefer a
// paragraph break, then a sentence end, when one falls past the window
// midpoint; otherwise the window is hard-cut.
func SplitIntoChunks(text string, chunkSize, overlap int) []string {
	if chunkSize <= 0 {
		return nil
	}
	if overlap < 0 {
		overlap = 0
	}

	runes := []rune(text)
	if len(runes) <= chunkSize {
		if trimmed := strings.TrimSpace(text); trimmed != "" {
			return []string{trimmed}
		}
		return nil
	}

	var chunks []string
	start := 0

	for start < len(runes) {
		end := start + chunkSize

		if end >= len(runes) {
			if trimmed := strings.TrimSpace(string(runes[start:])); trimmed != "" {
				chunks = append(chunks, trimmed)
			}
			break
		}

		// 优先在段落边界切分，其次是句子边界
		if nl := lastIndexRune(runes, '\n', start, end); nl > start && nl-start > chunkSize/2 {
			end = nl + 1
		} else if period := lastSentenceEnd(runes, start, end); period > start && period-start > chunkSize/2 {
			end = period + 1
		}

		if trimmed := strings.TrimSpace(string(runes[start:end])); trimmed != "" {
			chunks = append(chunks, trimmed)
		}

		// 按重叠量回退窗口起点；无法前进时强制跳到窗口末尾，保证终止
		next := end - overlap
		if next <= start {
			next = end
		}
		start = next
	}

	return chunks
}

// lastIndexRune returns the index of the last occurrence of r in
// runes[start:end), or -1.
func lastIndexRune(runes []rune, r rune, start, end int) int {
	for i := end - 1; i >= start; i-- {
		if runes[i] == r {
			return i
		}
	}
	return -1
}

// lastSentenceEnd returns the index of the last ". " sequence in
// runes[start:end), or -1. The index points at the period.
func lastSentenceEnd(runes []rune, start, end int) int {
	for i := end - 2; i >= start; i-- {
		if runes[i] == '.' && runes[i+1] == ' ' {
			return i
		}
	}
	return -1
}

// DocumentID 基于来源与内容生成确定性的文档 ID。
// The digest folds a cheap length pre-check into one hash so identical
// (source, content) pairs always map to the same id.
func DocumentID(source, text string) string {
	content := md5.Sum([]byte(text))
	unique := fmt.Sprintf("%s:%d:%s", source, len(text), hex.EncodeToString(content[:]))
	sum := sha256.Sum256([]byte(unique))
	return hex.EncodeToString(sum[:])
}

// HashString 计算字符串的 SHA-256 哈希值。
func HashString(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// CosineSimilarity 计算两个向量的余弦相似度。
// 返回值范围为 [-1, 1]，长度不一致或空向量返回 0。
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}
