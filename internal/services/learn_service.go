// internal/services/learn_service.go
package services

import (
	"context"
	"regexp"
	"sort"
	"strings"
	"time"

	apperrors "github.com/Corphon/DreamTaleMCP/internal/errors"
	"github.com/Corphon/DreamTaleMCP/internal/models"
	"github.com/Corphon/DreamTaleMCP/internal/storage"
	"github.com/Corphon/DreamTaleMCP/internal/tts"
	"github.com/Corphon/DreamTaleMCP/internal/utils"
)

// 找不到任何可教的词时的最终兜底
const defaultLearningTerm = "rainbow"

// 科普朗读固定用Mom的音色，语速稍慢一些
var factVoiceProfile = models.VoiceProfile{ID: "shimmer", Label: "Mom", Speed: 0.95}

var tokenRe = regexp.MustCompile(`\b[A-Za-z']{4,}\b`)

// LearnService 从故事中挑出一个值得学的词并生成科普小知识
type LearnService struct {
	llm      *LLMService
	sessions *SessionService
	narrator *NarratorService
	cache    *storage.ResponseCache
}

// NewLearnService 创建"学点东西"服务
func NewLearnService(llm *LLMService, sessions *SessionService, narrator *NarratorService, cache *storage.ResponseCache) *LearnService {
	return &LearnService{
		llm:      llm,
		sessions: sessions,
		narrator: narrator,
		cache:    cache,
	}
}

// LearnResult 一次学习环节的完整产出
type LearnResult struct {
	Note  *models.LearningNote
	Audio *tts.SpeechResponse
}

// LearnFromSession 对会话中已生成的故事执行学习环节
// 故事未开始时报错，音频合成失败不影响文字结果
func (s *LearnService) LearnFromSession(ctx context.Context, sessionID string) (*LearnResult, error) {
	session, err := s.sessions.GetSession(sessionID)
	if err != nil {
		return nil, err
	}

	if session.SceneCount() == 0 {
		return nil, apperrors.NewInvalidInputError("故事尚未开始，没有可学习的内容")
	}

	if err := s.sessions.BeginAction(sessionID); err != nil {
		return nil, err
	}
	defer s.sessions.EndAction(sessionID)

	story := session.FullText()

	term, err := s.ExtractLearningTerm(ctx, story)
	if err != nil {
		return nil, err
	}

	fact, err := s.FetchChildFact(ctx, term)
	if err != nil {
		return nil, err
	}

	note := &models.LearningNote{
		Term:      term,
		Fact:      fact,
		CreatedAt: time.Now(),
	}

	if _, err := s.sessions.Update(sessionID, func(session *models.StorySession) error {
		session.Learning = note
		return nil
	}); err != nil {
		return nil, err
	}

	result := &LearnResult{Note: note}

	// 语音失败只记录日志，文字内容照常返回
	audio, err := s.narrator.Narrate(ctx, fact, factVoiceProfile)
	if err != nil {
		utils.GetLogger().Warn("科普语音合成失败", map[string]interface{}{"err": err.Error()})
	} else {
		result.Audio = audio
	}

	return result, nil
}

// ExtractLearningTerm 用启发式规则挑出故事里最值得学的词
// 规则：
//   - 只看4个字母以上的词
//   - 丢弃-ly副词和-ed过去式
//   - 大写出现占比超过一半的词视为人名丢弃
//   - 剩下的按(出现次数升序, 长度降序)排序取第一个
//
// 没有候选词时退回LLM，再不行用默认词
func (s *LearnService) ExtractLearningTerm(ctx context.Context, story string) (string, error) {
	if strings.TrimSpace(story) == "" {
		return "", apperrors.NewInvalidInputError("故事文本不能为空")
	}

	if term := heuristicTerm(story); term != "" {
		return term, nil
	}

	// 启发式失败，请模型挑一个词
	raw, err := s.llm.CompleteSimple(ctx, BuildTermFallbackPrompt(story), "", 0, TermMaxTokens)
	if err != nil {
		return "", apperrors.NewExtractionExhaustedError("启发式和模型兜底都未能选出关键词", err)
	}

	term := strings.ToLower(strings.Trim(strings.TrimSpace(raw), "\"'.,;:!?()[]{} "))
	if term == "" {
		term = defaultLearningTerm
	}

	return term, nil
}

// FetchChildFact 获取关于term的三行科普，按词缓存
func (s *LearnService) FetchChildFact(ctx context.Context, term string) (string, error) {
	key := storage.Key("fact", term)

	value, _, err := s.cache.GetOrCompute(ctx, key, func(ctx context.Context) (interface{}, error) {
		fact, err := s.llm.CompleteSimple(ctx, BuildFactPrompt(term), "", FactTemperature, FactMaxTokens)
		if err != nil {
			return nil, apperrors.NewProviderError("科普小知识生成失败", err)
		}
		return strings.TrimSpace(fact), nil
	})
	if err != nil {
		return "", err
	}

	fact, ok := value.(string)
	if !ok {
		return "", apperrors.NewProviderError("缓存中的科普内容类型不匹配", nil)
	}

	return fact, nil
}

// heuristicTerm 执行纯文本启发式抽取，失败时返回空串
func heuristicTerm(story string) string {
	tokens := tokenRe.FindAllString(story, -1)
	if len(tokens) == 0 {
		return ""
	}

	counts := make(map[string]int)
	capsCounts := make(map[string]int)
	for _, tok := range tokens {
		lower := strings.ToLower(tok)
		counts[lower]++
		if tok[0] >= 'A' && tok[0] <= 'Z' {
			capsCounts[lower]++
		}
	}

	var cands []string
	for tok, count := range counts {
		if strings.HasSuffix(tok, "ly") || strings.HasSuffix(tok, "ed") {
			continue
		}
		// 大写占比过半的词多半是专有名词
		if float64(capsCounts[tok])/float64(count) > 0.5 {
			continue
		}
		cands = append(cands, tok)
	}

	if len(cands) == 0 {
		return ""
	}

	// 越稀有越有趣，并列时取更长的词
	sort.Slice(cands, func(i, j int) bool {
		if counts[cands[i]] != counts[cands[j]] {
			return counts[cands[i]] < counts[cands[j]]
		}
		if len(cands[i]) != len(cands[j]) {
			return len(cands[i]) > len(cands[j])
		}
		return cands[i] < cands[j]
	})

	return cands[0]
}
