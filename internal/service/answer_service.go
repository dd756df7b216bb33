package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"courseqa-go/internal/apperr"
	"courseqa-go/internal/config"
	"courseqa-go/internal/model"
	"courseqa-go/pkg/llm"
	"courseqa-go/pkg/log"
)

// 提示词中上下文区的包裹符与来源声明行的前缀。
const (
	refStart      = "<<REF>>"
	refEnd        = "<<END>>"
	sourcesPrefix = "SOURCES:"
)

const defaultRules = "你是一名课程内容助手。只依据参考资料回答学生的问题，" +
	"资料中没有的内容明确说明不知道，不要编造。回答末尾单独一行输出 " +
	"“SOURCES: ” 加上实际用到的资料编号（如 SOURCES: 1,3）；一条都没用到时输出 SOURCES: none。"

// AnswerService 定义了基于检索结果生成有据回答的接口。
type AnswerService interface {
	// Generate 产出回答文本、[0,1] 置信度与引用列表。
	// 引用只会来自 retrieved 集合：模型仅能引用已提供的编号，无从捏造。
	Generate(ctx context.Context, question string, retrieved []model.RetrievedChunk, history []model.ChatMessage) (*model.GeneratedAnswer, error)
}

type answerService struct {
	llmClient     llm.Client
	promptCfg     config.LLMPromptConfig
	historyWindow int
}

// NewAnswerService 创建一个新的 AnswerService 实例。
func NewAnswerService(llmClient llm.Client, promptCfg config.LLMPromptConfig, historyWindow int) AnswerService {
	if historyWindow <= 0 {
		historyWindow = 10
	}
	return &answerService{llmClient: llmClient, promptCfg: promptCfg, historyWindow: historyWindow}
}

func (s *answerService) Generate(ctx context.Context, question string, retrieved []model.RetrievedChunk, history []model.ChatMessage) (*model.GeneratedAnswer, error) {
	if strings.TrimSpace(question) == "" {
		return nil, apperr.Validationf("question is required")
	}
	if len(retrieved) == 0 {
		return nil, apperr.Validationf("retrieved chunks are required for generation")
	}

	messages := s.composeMessages(question, retrieved, history)
	raw, err := s.llmClient.ChatMessages(ctx, messages, nil)
	if err != nil {
		return nil, err
	}

	answerText, cited := extractCitations(raw, retrieved)
	confidence := computeConfidence(retrieved, cited)

	citations := make([]model.Citation, 0, len(cited))
	for _, chunk := range cited {
		citations = append(citations, model.Citation{
			VideoID:   chunk.VideoID,
			Timestamp: chunk.StartTimestamp,
			Snippet:   snippet(chunk.TextContent, 120),
		})
	}

	log.Infof("[AnswerService] 生成完成, 引用 %d/%d 个分块, 置信度 %.3f", len(cited), len(retrieved), confidence)
	return &model.GeneratedAnswer{
		Text:       answerText,
		Confidence: confidence,
		Citations:  citations,
	}, nil
}

// composeMessages 组装 system 规则 + 编号上下文 + 有界历史 + 当前问题。
func (s *answerService) composeMessages(question string, retrieved []model.RetrievedChunk, history []model.ChatMessage) []llm.Message {
	rules := s.promptCfg.Rules
	if rules == "" {
		rules = defaultRules
	}

	var sys strings.Builder
	sys.WriteString(rules)
	sys.WriteString("\n\n")
	sys.WriteString(refStart)
	sys.WriteString("\n")
	for i, chunk := range retrieved {
		sys.WriteString(fmt.Sprintf("[%d] (video=%s start=%.1fs) %s\n", i+1, chunk.VideoID, chunk.StartTimestamp, chunk.TextContent))
	}
	sys.WriteString(refEnd)

	// 历史只保留最近 N 条，控制上下文长度
	if len(history) > s.historyWindow {
		history = history[len(history)-s.historyWindow:]
	}

	messages := make([]llm.Message, 0, len(history)+2)
	messages = append(messages, llm.Message{Role: "system", Content: sys.String()})
	for _, m := range history {
		role := "user"
		if m.Role == model.RoleAnswer {
			role = "assistant"
		}
		messages = append(messages, llm.Message{Role: role, Content: m.Content})
	}
	messages = append(messages, llm.Message{Role: "user", Content: question})
	return messages
}

// extractCitations 解析回答末尾的 SOURCES 行，返回去掉该行的回答文本
// 与实际引用的分块。编号越界或重复的一律丢弃。
func extractCitations(raw string, retrieved []model.RetrievedChunk) (string, []model.RetrievedChunk) {
	lines := strings.Split(strings.TrimSpace(raw), "\n")

	sourcesLine := ""
	lastIdx := -1
	for i := len(lines) - 1; i >= 0; i-- {
		trimmed := strings.TrimSpace(lines[i])
		if trimmed == "" {
			continue
		}
		if strings.HasPrefix(strings.ToUpper(trimmed), sourcesPrefix) {
			sourcesLine = trimmed
			lastIdx = i
		}
		break
	}

	answerText := strings.TrimSpace(raw)
	if lastIdx >= 0 {
		answerText = strings.TrimSpace(strings.Join(lines[:lastIdx], "\n"))
	}

	var cited []model.RetrievedChunk
	if sourcesLine != "" {
		seen := make(map[int]struct{})
		payload := strings.TrimSpace(sourcesLine[len(sourcesPrefix):])
		for _, part := range strings.Split(payload, ",") {
			num, err := strconv.Atoi(strings.TrimSpace(part))
			if err != nil {
				continue
			}
			if num < 1 || num > len(retrieved) {
				continue
			}
			if _, ok := seen[num]; ok {
				continue
			}
			seen[num] = struct{}{}
			cited = append(cited, retrieved[num-1])
		}
	}
	return answerText, cited
}

// computeConfidence 由检索质量推导置信度：
// 有引用时取被引分块的平均相似度；模型未引用任何资料时取全部检索结果
// 平均相似度的一半。两条路径都随平均相似度单调上升，最终截断到 [0,1]。
func computeConfidence(retrieved, cited []model.RetrievedChunk) float64 {
	avg := func(chunks []model.RetrievedChunk) float64 {
		if len(chunks) == 0 {
			return 0
		}
		var sum float64
		for _, c := range chunks {
			sum += c.Similarity
		}
		return sum / float64(len(chunks))
	}

	var confidence float64
	if len(cited) > 0 {
		confidence = avg(cited)
	} else {
		confidence = 0.5 * avg(retrieved)
	}
	if confidence < 0 {
		return 0
	}
	if confidence > 1 {
		return 1
	}
	return confidence
}

// snippet 截取引用展示用的文本片段。
func snippet(text string, maxRunes int) string {
	runes := []rune(text)
	if len(runes) <= maxRunes {
		return text
	}
	return string(runes[:maxRunes]) + "…"
}
