// internal/services/fakes_test.go
package services

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/Corphon/DreamTaleMCP/internal/imagen"
	"github.com/Corphon/DreamTaleMCP/internal/llm"
	"github.com/Corphon/DreamTaleMCP/internal/tts"
)

// fakeProvider 是测试用的LLM提供者，回复由respond函数决定
type fakeProvider struct {
	mu      sync.Mutex
	calls   int
	respond func(req llm.CompletionRequest) (string, error)
}

func (p *fakeProvider) Initialize(config map[string]string) error { return nil }

func (p *fakeProvider) GetName() string { return "fake" }

func (p *fakeProvider) GetSupportedModels() []string { return []string{"fake-model"} }

func (p *fakeProvider) CompleteText(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()

	text, err := p.respond(req)
	if err != nil {
		return nil, err
	}
	return &llm.CompletionResponse{
		Text:         text,
		FinishReason: "stop",
		TokensUsed:   len(text) / 4,
		ModelName:    "fake-model",
		ProviderName: "fake",
	}, nil
}

func (p *fakeProvider) StreamCompletion(ctx context.Context, req llm.CompletionRequest) (<-chan llm.StreamResponse, error) {
	ch := make(chan llm.StreamResponse)
	close(ch)
	return ch, nil
}

func (p *fakeProvider) FetchAvailableModels(ctx context.Context) error { return nil }

func (p *fakeProvider) SetCustomModels(models []string) {}

func (p *fakeProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// 提供者注册表是包级别的，每个测试用唯一名字注册避免互相覆盖
var fakeProviderSeq int64

// newTestLLM 创建一个由respond驱动的就绪LLM服务
func newTestLLM(t *testing.T, respond func(req llm.CompletionRequest) (string, error)) (*LLMService, *fakeProvider) {
	t.Helper()

	provider := &fakeProvider{respond: respond}
	name := fmt.Sprintf("fake-%d", atomic.AddInt64(&fakeProviderSeq, 1))
	llm.Register(name, func() llm.Provider { return provider })

	service := NewEmptyLLMService()
	if err := service.UpdateProvider(name, map[string]string{"default_model": "fake-model"}); err != nil {
		t.Fatalf("配置测试提供者失败: %v", err)
	}
	return service, provider
}

// fakeSynthesizer 是测试用的语音合成器
type fakeSynthesizer struct {
	mu    sync.Mutex
	calls int
	fail  error
}

func (s *fakeSynthesizer) Initialize(config map[string]string) error { return nil }

func (s *fakeSynthesizer) GetName() string { return "fake-tts" }

func (s *fakeSynthesizer) GetSupportedVoices() []string {
	return []string{"fable", "shimmer", "nova", "alloy"}
}

func (s *fakeSynthesizer) Synthesize(ctx context.Context, req tts.SpeechRequest) (*tts.SpeechResponse, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()

	if s.fail != nil {
		return nil, s.fail
	}
	return &tts.SpeechResponse{
		Audio:        []byte("mp3:" + req.Text),
		Format:       "mp3",
		Voice:        req.Voice,
		ProviderName: "fake-tts",
	}, nil
}

func (s *fakeSynthesizer) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// fakeIllustrator 是测试用的插画生成器
type fakeIllustrator struct {
	mu    sync.Mutex
	calls int
	fail  error
}

func (f *fakeIllustrator) Initialize(config map[string]string) error { return nil }

func (f *fakeIllustrator) GetName() string { return "fake-imagen" }

func (f *fakeIllustrator) Illustrate(ctx context.Context, req imagen.ImageRequest) (*imagen.ImageResponse, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	if f.fail != nil {
		return nil, f.fail
	}
	return &imagen.ImageResponse{
		URL:          "https://example.com/poster.png",
		ProviderName: "fake-imagen",
	}, nil
}

func (f *fakeIllustrator) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}
