package llm

import "math"

// Normalize 将每个向量除以其欧几里得范数，返回单位长度向量。
// 零范数向量按范数 1 处理，保持原样。输入不被修改。
func Normalize(vectors [][]float32) [][]float32 {
	if len(vectors) == 0 {
		return vectors
	}

	out := make([][]float32, len(vectors))
	for i, v := range vectors {
		out[i] = NormalizeVector(v)
	}
	return out
}

// NormalizeVector 归一化单个向量。
func NormalizeVector(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}

	norm := math.Sqrt(sum)
	if norm == 0 {
		norm = 1
	}

	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}
