// internal/services/enrich_service.go
package services

import (
	"context"
	"fmt"
	"strings"

	apperrors "github.com/Corphon/DreamTaleMCP/internal/errors"
	"github.com/Corphon/DreamTaleMCP/internal/utils"
)

// EnrichService 把孩子的只言片语扩写成完整的故事前提
type EnrichService struct {
	llm *LLMService
}

// NewEnrichService 创建想法润色服务
func NewEnrichService(llm *LLMService) *EnrichService {
	return &EnrichService{llm: llm}
}

// EnrichIdea 扩写故事想法
// 模型不可用或调用失败时退回到模板化的兜底文案，不向上抛错
func (s *EnrichService) EnrichIdea(ctx context.Context, rawIdea string) (string, error) {
	rawIdea = strings.TrimSpace(rawIdea)
	if rawIdea == "" {
		return "", apperrors.NewInvalidInputError("故事想法不能为空")
	}

	enriched, err := s.llm.CompleteSimple(ctx, BuildEnrichPrompt(rawIdea), "", 0.5, 0)
	if err != nil {
		utils.GetLogger().Warn("想法润色失败，使用兜底文案", map[string]interface{}{"err": err.Error()})
		return fallbackEnrichedIdea(rawIdea), nil
	}

	enriched = strings.Trim(strings.TrimSpace(enriched), `"'`)
	if enriched == "" {
		return fallbackEnrichedIdea(rawIdea), nil
	}

	return enriched, nil
}

func fallbackEnrichedIdea(rawIdea string) string {
	return fmt.Sprintf("A magical adventure about %s that teaches children about friendship and courage.", rawIdea)
}
