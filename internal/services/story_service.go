// internal/services/story_service.go
package services

import (
	"context"
	"regexp"
	"strings"
	"time"

	apperrors "github.com/Corphon/DreamTaleMCP/internal/errors"
	"github.com/Corphon/DreamTaleMCP/internal/models"
)

// 选项解析失败时的兜底选项
var fallbackOptions = []string{
	"1. Continue bravely 🌟",
	"2. Take a quiet turn 💤",
}

var (
	optionMarkupRe  = regexp.MustCompile("[*_`]+")
	earlyEndingRe   = regexp.MustCompile(`(?im)^\s*(The\s+end\.?)(\s*)$`)
	trailingSpaceRe = regexp.MustCompile(`\n{3,}`)
)

// StoryService 负责三幕故事的生成与推进
type StoryService struct {
	llm      *LLMService
	sessions *SessionService
}

// NewStoryService 创建故事服务
func NewStoryService(llm *LLMService, sessions *SessionService) *StoryService {
	return &StoryService{
		llm:      llm,
		sessions: sessions,
	}
}

// StartStory 创建会话并生成开场场景
// 开场时last_choice固定为"N/A"
func (s *StoryService) StartStory(ctx context.Context, idea, category, voiceID string) (*models.StorySession, error) {
	session, err := s.sessions.CreateSession(idea, category, voiceID)
	if err != nil {
		return nil, err
	}

	if err := s.sessions.BeginAction(session.ID); err != nil {
		return nil, err
	}
	defer s.sessions.EndAction(session.ID)

	prompt := BuildScenePrompt(1, session.Category, session.Idea, "", "N/A")
	text, err := s.generateScene(ctx, prompt, 1)
	if err != nil {
		// 生成失败时不留下半成品会话
		s.sessions.DeleteSession(session.ID)
		return nil, err
	}

	return s.sessions.Update(session.ID, func(session *models.StorySession) error {
		session.Scenes = append(session.Scenes, models.SceneRecord{
			Index:     1,
			Text:      text,
			Options:   ExtractOptions(text),
			CreatedAt: time.Now(),
		})
		session.State = models.StateAwaitingChoice
		return nil
	})
}

// Choose 应用读者的选择并生成下一幕
// choice 可以是选项序号("1"/"2")或完整的选项文本
func (s *StoryService) Choose(ctx context.Context, sessionID, choice string) (*models.StorySession, error) {
	session, err := s.sessions.GetSession(sessionID)
	if err != nil {
		return nil, err
	}

	if session.State != models.StateAwaitingChoice {
		return nil, apperrors.NewInvalidChoiceError("当前状态不接受选择: " + string(session.State))
	}

	scene := session.CurrentScene()
	optionText, err := resolveChoice(choice, scene.Options)
	if err != nil {
		return nil, err
	}

	if err := s.sessions.BeginAction(sessionID); err != nil {
		return nil, err
	}
	defer s.sessions.EndAction(sessionID)

	sceneNo := session.SceneCount() + 1
	prompt := BuildScenePrompt(sceneNo, session.Category, session.Idea, session.FullText(), optionText)
	text, err := s.generateScene(ctx, prompt, sceneNo)
	if err != nil {
		return nil, err
	}

	return s.sessions.Update(sessionID, func(session *models.StorySession) error {
		// 选择已被采纳，记录到当前幕
		session.Scenes[len(session.Scenes)-1].Choice = optionText

		record := models.SceneRecord{
			Index:     sceneNo,
			Text:      text,
			CreatedAt: time.Now(),
		}

		if sceneNo < models.TotalScenes {
			record.Options = ExtractOptions(text)
			session.State = models.StateAwaitingChoice
		} else {
			record.Options = []string{}
			session.State = models.StateComplete
		}

		session.Scenes = append(session.Scenes, record)
		return nil
	})
}

// Revise 根据读者反馈重写当前幕
// 状态保持不变，末幕完结后同样可以修订
func (s *StoryService) Revise(ctx context.Context, sessionID, feedback string) (*models.StorySession, error) {
	feedback = strings.TrimSpace(feedback)
	if feedback == "" {
		return nil, apperrors.NewInvalidInputError("反馈内容不能为空")
	}

	session, err := s.sessions.GetSession(sessionID)
	if err != nil {
		return nil, err
	}

	if session.State == models.StateIdle {
		return nil, apperrors.NewInvalidInputError("故事尚未开始，无法修订")
	}

	scene := session.CurrentScene()

	if err := s.sessions.BeginAction(sessionID); err != nil {
		return nil, err
	}
	defer s.sessions.EndAction(sessionID)

	prompt := BuildRevisionPrompt(scene.Index, feedback, scene.Text)
	text, err := s.generateScene(ctx, prompt, scene.Index)
	if err != nil {
		return nil, err
	}

	return s.sessions.Update(sessionID, func(session *models.StorySession) error {
		idx := len(session.Scenes) - 1
		session.Scenes[idx].Text = text
		if session.State == models.StateAwaitingChoice {
			session.Scenes[idx].Options = ExtractOptions(text)
		}
		// 修订后此前的评审和插画已过时
		session.Judge = nil
		session.PosterURL = ""
		return nil
	})
}

// Reset 丢弃已生成的故事，会话回到初始状态
func (s *StoryService) Reset(sessionID string) (*models.StorySession, error) {
	if err := s.sessions.BeginAction(sessionID); err != nil {
		return nil, err
	}
	defer s.sessions.EndAction(sessionID)

	return s.sessions.ResetSession(sessionID)
}

// generateScene 调用LLM生成一幕并做清理
func (s *StoryService) generateScene(ctx context.Context, prompt string, sceneNo int) (string, error) {
	text, err := s.llm.CompleteSimple(ctx, prompt, "", StoryTemperature, StoryMaxTokens)
	if err != nil {
		return "", apperrors.NewProviderError("场景生成失败", err)
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return "", apperrors.NewProviderError("模型返回了空场景", nil)
	}

	return StripEarlyEnding(text, sceneNo), nil
}

// resolveChoice 把读者输入匹配到当前幕的选项
func resolveChoice(choice string, options []string) (string, error) {
	choice = strings.TrimSpace(choice)
	if choice == "" {
		return "", apperrors.NewInvalidChoiceError("选择不能为空")
	}

	switch choice {
	case "1":
		if len(options) > 0 {
			return options[0], nil
		}
	case "2":
		if len(options) > 1 {
			return options[1], nil
		}
	default:
		for _, opt := range options {
			if strings.EqualFold(strings.TrimSpace(opt), choice) {
				return opt, nil
			}
		}
	}

	return "", apperrors.NewInvalidChoiceError("选择必须匹配当前幕的两个选项之一: " + choice)
}

// ExtractOptions 从场景文本中提取恰好两个编号选项
// 找不到一对干净的选项时返回兜底选项
func ExtractOptions(sceneText string) []string {
	var opts []string
	for _, line := range strings.Split(sceneText, "\n") {
		clean := optionMarkupRe.ReplaceAllString(strings.TrimSpace(line), "")
		if strings.HasPrefix(clean, "1.") || strings.HasPrefix(clean, "2.") {
			opts = append(opts, clean)
		}
	}

	if len(opts) == 2 {
		return opts
	}

	out := make([]string, len(fallbackOptions))
	copy(out, fallbackOptions)
	return out
}

// StripEarlyEnding 移除末幕之前出现的"The end."
func StripEarlyEnding(text string, sceneNo int) string {
	if sceneNo < models.TotalScenes {
		text = earlyEndingRe.ReplaceAllString(text, "")
		text = trailingSpaceRe.ReplaceAllString(text, "\n\n")
		text = strings.TrimSpace(text)
	}
	return text
}
