// internal/services/judge_service.go
package services

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/Corphon/DreamTaleMCP/internal/errors"
	"github.com/Corphon/DreamTaleMCP/internal/models"
	"github.com/Corphon/DreamTaleMCP/internal/storage"
)

// JudgeService 用LLM评审完结的故事
// 三项指标各1-10分，总分取平均
type JudgeService struct {
	llm      *LLMService
	sessions *SessionService
	cache    *storage.ResponseCache
}

// NewJudgeService 创建评审服务
func NewJudgeService(llm *LLMService, sessions *SessionService, cache *storage.ResponseCache) *JudgeService {
	return &JudgeService{
		llm:      llm,
		sessions: sessions,
		cache:    cache,
	}
}

// JudgeSession 评审会话中的完整故事
// 只有三幕全部完成后才允许评审
func (s *JudgeService) JudgeSession(ctx context.Context, sessionID string) (*models.JudgeResult, error) {
	session, err := s.sessions.GetSession(sessionID)
	if err != nil {
		return nil, err
	}

	if !session.IsComplete() {
		return nil, apperrors.NewInvalidInputError("故事尚未完结，无法评审")
	}

	if err := s.sessions.BeginAction(sessionID); err != nil {
		return nil, err
	}
	defer s.sessions.EndAction(sessionID)

	result, err := s.JudgeStory(ctx, session.FullText())
	if err != nil {
		return nil, err
	}

	// 把评审结果写回会话
	if _, err := s.sessions.Update(sessionID, func(session *models.StorySession) error {
		session.Judge = result
		return nil
	}); err != nil {
		return nil, err
	}

	return result, nil
}

// JudgeStory 评审任意故事文本，结果按内容缓存
func (s *JudgeService) JudgeStory(ctx context.Context, story string) (*models.JudgeResult, error) {
	story = strings.TrimSpace(story)
	if story == "" {
		return nil, apperrors.NewInvalidInputError("故事文本不能为空")
	}

	key := storage.Key("judge", story)

	value, _, err := s.cache.GetOrCompute(ctx, key, func(ctx context.Context) (interface{}, error) {
		text, err := s.llm.CompleteSimple(ctx, BuildJudgePrompt(story), judgeSystemPrompt, JudgeTemperature, JudgeMaxTokens)
		if err != nil {
			return nil, apperrors.NewJudgeUnavailableError("评审调用失败", err)
		}

		result, err := ParseJudgeResponse(text)
		if err != nil {
			return nil, err
		}

		return result, nil
	})
	if err != nil {
		return nil, err
	}

	result, ok := value.(*models.JudgeResult)
	if !ok {
		return nil, apperrors.NewJudgeUnavailableError("缓存中的评审结果类型不匹配", nil)
	}

	return result, nil
}

var (
	scoreSlashRe = regexp.MustCompile(`(\d{1,2})\s*/\s*10`)
	scoreLabelRe = regexp.MustCompile(`(?i)Score\s*\**\s*[:：]?\s*\**\s*(\d{1,2})`)
	overallRe    = regexp.MustCompile(`(?i)Overall\s+Score[^0-9]*([0-9]+(?:\.[0-9]+)?)`)
	verdictRe    = regexp.MustCompile(`(?is)Final\s+Verdict\s*(?:\*\*)?\s*[:：]?\s*(.+)$`)
)

// 每项指标在评审文本中的标题
var judgeCriteria = []string{
	"Age Appropriateness",
	"Ease of Reading",
	"Clarity of Moral",
}

// ParseJudgeResponse 从评审的自由文本中解析结构化结果
// 任一指标解析失败都视为评审不可用
func ParseJudgeResponse(text string) (*models.JudgeResult, error) {
	cleaned := strings.TrimSpace(text)
	if cleaned == "" {
		return nil, apperrors.NewJudgeUnavailableError("评审返回了空内容", nil)
	}

	metrics := make([]models.JudgeMetric, 0, len(judgeCriteria))
	for _, criterion := range judgeCriteria {
		metric, err := parseMetric(cleaned, criterion)
		if err != nil {
			return nil, err
		}
		metrics = append(metrics, metric)
	}

	result := &models.JudgeResult{
		AgeAppropriateness: metrics[0],
		EaseOfReading:      metrics[1],
		ClarityOfMoral:     metrics[2],
		RawText:            cleaned,
		CreatedAt:          time.Now(),
	}

	// 总分优先取评审自己给出的Overall Score，否则取三项平均
	if m := overallRe.FindStringSubmatch(cleaned); m != nil {
		if overall, err := strconv.ParseFloat(m[1], 64); err == nil && overall >= 1 && overall <= 10 {
			result.Overall = overall
		}
	}
	if result.Overall == 0 {
		sum := metrics[0].Score + metrics[1].Score + metrics[2].Score
		result.Overall = float64(sum) / 3
	}

	if m := verdictRe.FindStringSubmatch(cleaned); m != nil {
		verdict := strings.TrimSpace(m[1])
		verdict = strings.Trim(verdict, "*- \n")
		result.Verdict = verdict
	}

	return result, nil
}

// parseMetric 在指标标题之后查找1-10的分数和解释
func parseMetric(text, criterion string) (models.JudgeMetric, error) {
	idx := strings.Index(strings.ToLower(text), strings.ToLower(criterion))
	if idx == -1 {
		return models.JudgeMetric{}, apperrors.NewJudgeUnavailableError("评审结果缺少指标: "+criterion, nil)
	}

	rest := text[idx+len(criterion):]

	// 限制搜索窗口，避免越过后面的指标
	window := rest
	if len(window) > 400 {
		window = window[:400]
	}

	// 优先匹配"9/10"形式，其次匹配"Score: 9"形式
	m := scoreSlashRe.FindStringSubmatch(window)
	loc := scoreSlashRe.FindStringIndex(window)
	if m == nil {
		m = scoreLabelRe.FindStringSubmatch(window)
		loc = scoreLabelRe.FindStringIndex(window)
	}
	if m == nil {
		return models.JudgeMetric{}, apperrors.NewJudgeUnavailableError("无法解析指标分数: "+criterion, nil)
	}

	score, err := strconv.Atoi(m[1])
	if err != nil || score < 1 || score > 10 {
		return models.JudgeMetric{}, apperrors.NewJudgeUnavailableError("指标分数超出范围: "+criterion, nil)
	}

	// 解释取分数之后到下一个空行为止的文本
	explanation := ""
	if loc != nil {
		tail := strings.TrimSpace(window[loc[1]:])
		if cut := strings.Index(tail, "\n\n"); cut != -1 {
			tail = tail[:cut]
		}
		explanation = strings.Trim(strings.TrimSpace(tail), "*-: \n")
	}

	return models.JudgeMetric{
		Score:       score,
		Explanation: explanation,
	}, nil
}
