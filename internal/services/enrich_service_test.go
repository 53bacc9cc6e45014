// internal/services/enrich_service_test.go
package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	apperrors "github.com/Corphon/DreamTaleMCP/internal/errors"
	"github.com/Corphon/DreamTaleMCP/internal/llm"
)

// TestEnrichIdea 测试想法润色
func TestEnrichIdea(t *testing.T) {
	llmService, _ := newTestLLM(t, func(req llm.CompletionRequest) (string, error) {
		if !strings.Contains(req.Prompt, "a turtle") {
			t.Errorf("提示词应该包含原始想法，实际: %q", req.Prompt)
		}
		return ` "A shy turtle discovers a hidden lagoon and learns to be brave." `, nil
	})
	svc := NewEnrichService(llmService)

	enriched, err := svc.EnrichIdea(context.Background(), "a turtle")
	if err != nil {
		t.Fatalf("润色失败: %v", err)
	}
	if enriched != "A shy turtle discovers a hidden lagoon and learns to be brave." {
		t.Errorf("模型回复应该去掉首尾引号和空白，实际: %q", enriched)
	}
}

// TestEnrichIdeaEmptyInput 测试空想法报错
func TestEnrichIdeaEmptyInput(t *testing.T) {
	llmService, provider := newTestLLM(t, func(req llm.CompletionRequest) (string, error) {
		return "unused", nil
	})
	svc := NewEnrichService(llmService)

	if _, err := svc.EnrichIdea(context.Background(), "   "); !apperrors.IsValidationError(err) {
		t.Errorf("空想法应该返回validation_error，实际: %v", err)
	}
	if provider.callCount() != 0 {
		t.Error("空想法不应调用模型")
	}
}

// TestEnrichIdeaFallback 测试模型失败时的兜底文案
func TestEnrichIdeaFallback(t *testing.T) {
	llmService, _ := newTestLLM(t, func(req llm.CompletionRequest) (string, error) {
		return "", errors.New("model down")
	})
	svc := NewEnrichService(llmService)

	enriched, err := svc.EnrichIdea(context.Background(), "a turtle")
	if err != nil {
		t.Fatalf("模型失败不应让润色整体失败: %v", err)
	}
	if !strings.Contains(enriched, "a turtle") {
		t.Errorf("兜底文案应该包含原始想法，实际: %q", enriched)
	}
}

// TestEnrichIdeaEmptyReply 测试模型返回空内容时的兜底文案
func TestEnrichIdeaEmptyReply(t *testing.T) {
	llmService, _ := newTestLLM(t, func(req llm.CompletionRequest) (string, error) {
		return `""`, nil
	})
	svc := NewEnrichService(llmService)

	enriched, err := svc.EnrichIdea(context.Background(), "a turtle")
	if err != nil {
		t.Fatalf("润色失败: %v", err)
	}
	if enriched == "" || !strings.Contains(enriched, "a turtle") {
		t.Errorf("模型返回空时应该用兜底文案，实际: %q", enriched)
	}
}
