// internal/services/llm_service_test.go
package services

import (
	"context"
	"errors"
	"testing"

	"github.com/Corphon/DreamTaleMCP/internal/llm"
	"github.com/Corphon/DreamTaleMCP/internal/utils"
)

// TestCompleteSimple 测试单条提示词补全
func TestCompleteSimple(t *testing.T) {
	svc, provider := newTestLLM(t, func(req llm.CompletionRequest) (string, error) {
		if req.SystemPrompt != "be nice" {
			t.Errorf("系统提示词不匹配: %q", req.SystemPrompt)
		}
		return "Once upon a time.", nil
	})

	text, err := svc.CompleteSimple(context.Background(), "tell a story", "be nice", 0.4, 100)
	if err != nil {
		t.Fatalf("补全失败: %v", err)
	}
	if text != "Once upon a time." {
		t.Errorf("补全结果不匹配: %q", text)
	}
	if provider.callCount() != 1 {
		t.Errorf("应该调用一次提供者，实际 %d 次", provider.callCount())
	}
}

// TestCompleteSimpleNotReady 测试未就绪的服务报错
func TestCompleteSimpleNotReady(t *testing.T) {
	svc := NewEmptyLLMService()

	_, err := svc.CompleteSimple(context.Background(), "hello", "", 0, 0)
	if !errors.Is(err, ErrLLMNotReady) {
		t.Errorf("待命服务应该返回ErrLLMNotReady，实际: %v", err)
	}
}

// TestChatCompletionCached 测试相同提示词命中缓存
func TestChatCompletionCached(t *testing.T) {
	svc, provider := newTestLLM(t, func(req llm.CompletionRequest) (string, error) {
		return "cached reply", nil
	})
	ctx := context.Background()

	if _, err := svc.CompleteSimple(ctx, "same prompt", "", 0, 0); err != nil {
		t.Fatalf("第一次补全失败: %v", err)
	}
	if _, err := svc.CompleteSimple(ctx, "same prompt", "", 0, 0); err != nil {
		t.Fatalf("第二次补全失败: %v", err)
	}
	if provider.callCount() != 1 {
		t.Errorf("相同提示词应该命中缓存，实际调用 %d 次", provider.callCount())
	}

	hits, misses := svc.CacheStats()
	if hits != 1 || misses != 1 {
		t.Errorf("缓存统计应该是1命中1未命中，实际 %d/%d", hits, misses)
	}
}

// TestUpdateProviderClearsCache 测试换提供商后旧缓存作废
func TestUpdateProviderClearsCache(t *testing.T) {
	svc, provider := newTestLLM(t, func(req llm.CompletionRequest) (string, error) {
		return "reply", nil
	})
	ctx := context.Background()

	if _, err := svc.CompleteSimple(ctx, "prompt", "", 0, 0); err != nil {
		t.Fatalf("补全失败: %v", err)
	}

	if err := svc.UpdateProvider(svc.GetProviderName(), map[string]string{"default_model": "fake-model"}); err != nil {
		t.Fatalf("更新提供商失败: %v", err)
	}

	if _, err := svc.CompleteSimple(ctx, "prompt", "", 0, 0); err != nil {
		t.Fatalf("更新后补全失败: %v", err)
	}
	if provider.callCount() != 2 {
		t.Errorf("换提供商后应该重新请求，实际调用 %d 次", provider.callCount())
	}
}

// TestUpdateProviderUnknown 测试未注册的提供商报错
func TestUpdateProviderUnknown(t *testing.T) {
	svc := NewEmptyLLMService()

	if err := svc.UpdateProvider("no-such-provider", nil); err == nil {
		t.Error("未注册的提供商应该报错")
	}
	if svc.GetProviderName() != "empty" {
		t.Errorf("失败后提供商名不应该改变: %q", svc.GetProviderName())
	}
}

// TestChatCompletionRecordsMetrics 测试真实请求计入LLM指标、缓存命中不计
func TestChatCompletionRecordsMetrics(t *testing.T) {
	svc, _ := newTestLLM(t, func(req llm.CompletionRequest) (string, error) {
		return "metered reply", nil
	})
	ctx := context.Background()

	before := utils.GetMetricsCollector().GetCounterValue("llm_requests_total")

	if _, err := svc.CompleteSimple(ctx, "metered prompt", "", 0, 0); err != nil {
		t.Fatalf("第一次补全失败: %v", err)
	}
	if _, err := svc.CompleteSimple(ctx, "metered prompt", "", 0, 0); err != nil {
		t.Fatalf("第二次补全失败: %v", err)
	}

	after := utils.GetMetricsCollector().GetCounterValue("llm_requests_total")
	if after-before != 1 {
		t.Errorf("只有真实的提供者调用应该计入指标，增量 %d", after-before)
	}
}
