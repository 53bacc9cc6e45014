// internal/services/learn_service_test.go
package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	apperrors "github.com/Corphon/DreamTaleMCP/internal/errors"
	"github.com/Corphon/DreamTaleMCP/internal/llm"
	"github.com/Corphon/DreamTaleMCP/internal/models"
	"github.com/Corphon/DreamTaleMCP/internal/storage"
)

func newTestLearnService(t *testing.T, respond func(req llm.CompletionRequest) (string, error)) (*LearnService, *SessionService, *fakeProvider, *fakeSynthesizer) {
	t.Helper()

	llmService, provider := newTestLLM(t, respond)
	sessions := NewSessionService()
	cache := storage.NewResponseCache(0, 0)
	t.Cleanup(cache.Stop)

	synth := &fakeSynthesizer{}
	narrator := NewNarratorService(synth, sessions, cache)

	return NewLearnService(llmService, sessions, narrator, cache), sessions, provider, synth
}

// TestHeuristicTerm 测试启发式选词规则
func TestHeuristicTerm(t *testing.T) {
	cases := []struct {
		name  string
		story string
		want  string
	}{
		{
			// 出现次数并列时先比长度再比字典序
			name:  "最稀有并列取字典序靠前的长词",
			story: "The brave little turtle swam slowly across the lagoon. The turtle loved the lagoon.",
			want:  "across",
		},
		{
			// "Milo"大写占比100%被当作人名过滤
			name:  "过滤专有名词",
			story: "Milo went to the market. Milo found a shiny marble at the market.",
			want:  "marble",
		},
		{
			name:  "过滤副词和过去式",
			story: "The fox quietly jumped over a meadow",
			want:  "meadow",
		},
		{
			name:  "没有候选词",
			story: "Zed zoomed loudly. Zed zipped happily.",
			want:  "",
		},
		{
			name:  "空故事",
			story: "",
			want:  "",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := heuristicTerm(tc.story); got != tc.want {
				t.Errorf("heuristicTerm(%q) = %q, 期望 %q", tc.story, got, tc.want)
			}
		})
	}
}

// TestExtractLearningTermHeuristic 测试启发式命中时不调用模型
func TestExtractLearningTermHeuristic(t *testing.T) {
	svc, _, provider, _ := newTestLearnService(t, func(req llm.CompletionRequest) (string, error) {
		return "should not be called", nil
	})

	term, err := svc.ExtractLearningTerm(context.Background(), "The curious octopus explored the reef.")
	if err != nil {
		t.Fatalf("提取关键词失败: %v", err)
	}
	if term == "" {
		t.Fatal("启发式应该选出一个词")
	}
	if provider.callCount() != 0 {
		t.Errorf("启发式命中时不应调用模型，实际调用 %d 次", provider.callCount())
	}
}

// TestExtractLearningTermLLMFallback 测试启发式失败时退回模型选词
func TestExtractLearningTermLLMFallback(t *testing.T) {
	svc, _, provider, _ := newTestLearnService(t, func(req llm.CompletionRequest) (string, error) {
		return `  "Lagoon!"  `, nil
	})

	term, err := svc.ExtractLearningTerm(context.Background(), "Zed zoomed loudly. Zed zipped happily.")
	if err != nil {
		t.Fatalf("提取关键词失败: %v", err)
	}
	if term != "lagoon" {
		t.Errorf("模型回复应该去掉引号标点并转小写，实际: %q", term)
	}
	if provider.callCount() != 1 {
		t.Errorf("应该调用一次模型，实际 %d 次", provider.callCount())
	}
}

// TestExtractLearningTermDefault 测试模型也答不出来时用默认词
func TestExtractLearningTermDefault(t *testing.T) {
	svc, _, _, _ := newTestLearnService(t, func(req llm.CompletionRequest) (string, error) {
		return "   ", nil
	})

	term, err := svc.ExtractLearningTerm(context.Background(), "Zed zoomed loudly. Zed zipped happily.")
	if err != nil {
		t.Fatalf("提取关键词失败: %v", err)
	}
	if term != defaultLearningTerm {
		t.Errorf("模型返回空时应该用默认词 %q，实际: %q", defaultLearningTerm, term)
	}
}

// TestExtractLearningTermExhausted 测试兜底失败映射为提取耗尽
func TestExtractLearningTermExhausted(t *testing.T) {
	svc, _, _, _ := newTestLearnService(t, func(req llm.CompletionRequest) (string, error) {
		return "", errors.New("model down")
	})

	_, err := svc.ExtractLearningTerm(context.Background(), "Zed zoomed loudly. Zed zipped happily.")
	if !apperrors.IsType(err, apperrors.ErrorTypeExtractionExhausted) {
		t.Errorf("应该返回extraction_exhausted，实际: %v", err)
	}
}

// TestFetchChildFactCached 测试科普内容按词缓存
func TestFetchChildFactCached(t *testing.T) {
	svc, _, provider, _ := newTestLearnService(t, func(req llm.CompletionRequest) (string, error) {
		return "Octopuses have three hearts.\nThey can change color.\nThey are very smart.", nil
	})
	ctx := context.Background()

	first, err := svc.FetchChildFact(ctx, "octopus")
	if err != nil {
		t.Fatalf("获取科普内容失败: %v", err)
	}
	second, err := svc.FetchChildFact(ctx, "octopus")
	if err != nil {
		t.Fatalf("第二次获取科普内容失败: %v", err)
	}

	if first != second {
		t.Error("两次结果应该一致")
	}
	if provider.callCount() != 1 {
		t.Errorf("相同的词应该命中缓存，实际调用 %d 次", provider.callCount())
	}
}

// TestLearnFromSession 测试完整学习环节
func TestLearnFromSession(t *testing.T) {
	svc, sessions, _, synth := newTestLearnService(t, func(req llm.CompletionRequest) (string, error) {
		return "A lagoon is a shallow pool of sea water.", nil
	})

	session, err := sessions.CreateSession("a lagoon adventure", "", "")
	if err != nil {
		t.Fatalf("创建会话失败: %v", err)
	}
	if _, err := sessions.Update(session.ID, func(s *models.StorySession) error {
		s.State = models.StateAwaitingChoice
		s.Scenes = []models.SceneRecord{{Index: 1, Text: "The brave little turtle swam slowly across the lagoon. The turtle loved the lagoon."}}
		return nil
	}); err != nil {
		t.Fatalf("构造会话失败: %v", err)
	}

	result, err := svc.LearnFromSession(context.Background(), session.ID)
	if err != nil {
		t.Fatalf("学习环节失败: %v", err)
	}

	if result.Note == nil || result.Note.Term != "across" {
		t.Fatalf("学习词不匹配: %+v", result.Note)
	}
	if !strings.Contains(result.Note.Fact, "lagoon") {
		t.Errorf("科普内容不完整: %q", result.Note.Fact)
	}
	if result.Audio == nil || len(result.Audio.Audio) == 0 {
		t.Error("应该附带科普语音")
	}
	if synth.callCount() != 1 {
		t.Errorf("应该合成一次语音，实际 %d 次", synth.callCount())
	}

	stored, err := sessions.GetSession(session.ID)
	if err != nil {
		t.Fatalf("获取会话失败: %v", err)
	}
	if stored.Learning == nil || stored.Learning.Term != "across" {
		t.Error("学习笔记应该写回会话")
	}
}

// TestLearnFromSessionAudioFailure 测试语音失败不影响文字结果
func TestLearnFromSessionAudioFailure(t *testing.T) {
	svc, sessions, _, synth := newTestLearnService(t, func(req llm.CompletionRequest) (string, error) {
		return "A meadow is a field of grass and flowers.", nil
	})
	synth.fail = errors.New("tts down")

	session, err := sessions.CreateSession("a meadow story", "", "")
	if err != nil {
		t.Fatalf("创建会话失败: %v", err)
	}
	if _, err := sessions.Update(session.ID, func(s *models.StorySession) error {
		s.State = models.StateAwaitingChoice
		s.Scenes = []models.SceneRecord{{Index: 1, Text: "The fox quietly jumped over a meadow"}}
		return nil
	}); err != nil {
		t.Fatalf("构造会话失败: %v", err)
	}

	result, err := svc.LearnFromSession(context.Background(), session.ID)
	if err != nil {
		t.Fatalf("语音失败不应该让学习环节整体失败: %v", err)
	}
	if result.Note == nil || result.Note.Term != "meadow" {
		t.Fatalf("学习词不匹配: %+v", result.Note)
	}
	if result.Audio != nil {
		t.Error("语音失败时Audio应该为空")
	}
}

// TestLearnFromSessionRequiresScenes 测试故事未开始时报错
func TestLearnFromSessionRequiresScenes(t *testing.T) {
	svc, sessions, _, _ := newTestLearnService(t, func(req llm.CompletionRequest) (string, error) {
		return "unused", nil
	})

	session, err := sessions.CreateSession("an idea", "", "")
	if err != nil {
		t.Fatalf("创建会话失败: %v", err)
	}

	if _, err := svc.LearnFromSession(context.Background(), session.ID); !apperrors.IsValidationError(err) {
		t.Errorf("没有场景时应该返回validation_error，实际: %v", err)
	}
}
