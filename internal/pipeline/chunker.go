// Package pipeline 定义了转写稿摄取的核心流程。
package pipeline

import (
	"strings"

	"courseqa-go/internal/model"
)

// Chunker 将带时间戳的转写稿切分为有界且语义连续的分块。
// 策略：沿分段边界贪心累积，词数预算或时长上限任一先触发即封块；
// 分段永远不被拆开，相邻分块之间没有重叠。
type Chunker struct {
	wordBudget      int
	maxChunkSeconds float64
}

// NewChunker 创建一个新的 Chunker。
func NewChunker(wordBudget int, maxChunkSeconds float64) *Chunker {
	if wordBudget <= 0 {
		wordBudget = 220
	}
	if maxChunkSeconds <= 0 {
		maxChunkSeconds = 120
	}
	return &Chunker{wordBudget: wordBudget, maxChunkSeconds: maxChunkSeconds}
}

// Split 输出按序编号的分块，不携带租户/视频信息（由持久化方赋值）。
// 空转写稿返回零个分块；超出预算的单个分段独立成块，绝不丢弃。
func (c *Chunker) Split(transcript model.Transcript) []model.Chunk {
	var chunks []model.Chunk

	var (
		texts     []string
		words     int
		startTime float64
		endTime   float64
		open      bool
	)

	flush := func() {
		if !open {
			return
		}
		chunks = append(chunks, model.Chunk{
			ChunkIndex:     len(chunks),
			TextContent:    strings.Join(texts, " "),
			StartTimestamp: startTime,
			EndTimestamp:   endTime,
			WordCount:      words,
		})
		texts = nil
		words = 0
		open = false
	}

	for _, segment := range transcript.Segments {
		text := strings.TrimSpace(segment.Text)
		if text == "" {
			continue
		}
		segmentWords := len(strings.Fields(text))

		// 加入当前分段会越过词数预算或时长上限时，先封块再开新块
		if open && (words+segmentWords > c.wordBudget || segment.EndTimestamp-startTime > c.maxChunkSeconds) {
			flush()
		}

		if !open {
			startTime = segment.StartTimestamp
			open = true
		}
		texts = append(texts, text)
		words += segmentWords
		if segment.EndTimestamp > endTime || len(texts) == 1 {
			endTime = segment.EndTimestamp
		}
	}
	flush()

	return chunks
}
