// internal/services/poster_service.go
package services

import (
	"context"
	"strings"

	apperrors "github.com/Corphon/DreamTaleMCP/internal/errors"
	"github.com/Corphon/DreamTaleMCP/internal/imagen"
	"github.com/Corphon/DreamTaleMCP/internal/models"
	"github.com/Corphon/DreamTaleMCP/internal/storage"
)

// PosterService 为完结的故事生成一张总结插画
type PosterService struct {
	illustrator imagen.Illustrator
	sessions    *SessionService
	cache       *storage.ResponseCache
}

// NewPosterService 创建插画服务
func NewPosterService(illustrator imagen.Illustrator, sessions *SessionService, cache *storage.ResponseCache) *PosterService {
	return &PosterService{
		illustrator: illustrator,
		sessions:    sessions,
		cache:       cache,
	}
}

// GeneratePoster 为会话中的故事生成插画并记录URL
// 只有三幕全部完成后才允许生成
func (s *PosterService) GeneratePoster(ctx context.Context, sessionID string) (*imagen.ImageResponse, error) {
	session, err := s.sessions.GetSession(sessionID)
	if err != nil {
		return nil, err
	}

	if !session.IsComplete() {
		return nil, apperrors.NewInvalidInputError("故事尚未完结，无法生成插画")
	}

	if err := s.sessions.BeginAction(sessionID); err != nil {
		return nil, err
	}
	defer s.sessions.EndAction(sessionID)

	resp, err := s.IllustrateStory(ctx, session.FullText())
	if err != nil {
		return nil, err
	}

	if _, err := s.sessions.Update(sessionID, func(session *models.StorySession) error {
		session.PosterURL = resp.URL
		return nil
	}); err != nil {
		return nil, err
	}

	return resp, nil
}

// IllustrateStory 生成任意故事文本的插画，结果按内容缓存
func (s *PosterService) IllustrateStory(ctx context.Context, story string) (*imagen.ImageResponse, error) {
	if s.illustrator == nil {
		return nil, apperrors.NewProviderError("插画生成服务未配置", nil)
	}

	story = strings.TrimSpace(story)
	if story == "" {
		return nil, apperrors.NewInvalidInputError("故事文本不能为空")
	}

	key := storage.Key("poster", story)

	value, _, err := s.cache.GetOrCompute(ctx, key, func(ctx context.Context) (interface{}, error) {
		resp, err := s.illustrator.Illustrate(ctx, imagen.ImageRequest{
			Prompt: BuildPosterPrompt(story),
		})
		if err != nil {
			return nil, apperrors.NewProviderError("插画生成失败", err)
		}
		return resp, nil
	})
	if err != nil {
		return nil, err
	}

	resp, ok := value.(*imagen.ImageResponse)
	if !ok {
		return nil, apperrors.NewProviderError("缓存中的插画结果类型不匹配", nil)
	}

	return resp, nil
}
