package rag

import (
	"strings"
	"unicode"
)

// Chunk 表示分块后的文本结构
type Chunk struct {
	Index int
	Text  string
}

// Chunker 固定窗口+重叠的文本分块器
// 在窗口内优先选择段落/句子/词边界，找不到时按字符硬切
type Chunker struct {
	chunkSize    int
	chunkOverlap int
}

// NewChunker 创建分块器
func NewChunker(chunkSize, overlap int) *Chunker {
	if chunkSize <= 0 {
		chunkSize = 1000
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= chunkSize {
		overlap = chunkSize / 5
	}
	return &Chunker{
		chunkSize:    chunkSize,
		chunkOverlap: overlap,
	}
}

// Split 将文本切分为多个chunk，纯函数，顺序即chunk_index
func (c *Chunker) Split(text string) []Chunk {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	runes := []rune(text)
	var chunks []Chunk

	start := 0
	for start < len(runes) {
		end := start + c.chunkSize
		if end >= len(runes) {
			end = len(runes)
		} else {
			end = c.splitPoint(runes, start, end)
		}

		chunkText := strings.TrimSpace(string(runes[start:end]))
		if chunkText != "" {
			chunks = append(chunks, Chunk{
				Index: len(chunks),
				Text:  chunkText,
			})
		}

		if end == len(runes) {
			break
		}
		// 下一块从end-overlap开始，复用上一块的尾部
		next := end - c.chunkOverlap
		if next <= start {
			next = start + 1
		}
		start = next
	}

	return chunks
}

// splitPoint 在[start+size/2, end]内从后向前找自然边界
// 优先级：空行 > 句末标点 > 换行 > 空白；均未命中则返回end（硬切）
func (c *Chunker) splitPoint(runes []rune, start, end int) int {
	floor := start + c.chunkSize/2

	for i := end - 1; i > floor; i-- {
		if runes[i] == '\n' && i > 0 && runes[i-1] == '\n' {
			return i + 1
		}
	}
	for i := end - 1; i > floor; i-- {
		if isSentenceEnd(runes[i]) && i+1 < len(runes) && unicode.IsSpace(runes[i+1]) {
			return i + 1
		}
	}
	for i := end - 1; i > floor; i-- {
		if runes[i] == '\n' {
			return i + 1
		}
	}
	for i := end - 1; i > floor; i-- {
		if unicode.IsSpace(runes[i]) {
			return i + 1
		}
	}
	return end
}

func isSentenceEnd(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}
