// internal/services/narrator_service.go
package services

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	apperrors "github.com/Corphon/DreamTaleMCP/internal/errors"
	"github.com/Corphon/DreamTaleMCP/internal/models"
	"github.com/Corphon/DreamTaleMCP/internal/storage"
	"github.com/Corphon/DreamTaleMCP/internal/tts"
)

// 朗读文本的最大长度，超出部分截断
const maxNarrationChars = 4096

var ttsMarkupRe = regexp.MustCompile("[*_`#🌟]")

// NarratorService 把故事场景转成语音
// 相同文本和音色的合成结果按内容缓存，重复朗读不会再次计费
type NarratorService struct {
	synth    tts.Synthesizer
	sessions *SessionService
	cache    *storage.ResponseCache
}

// NewNarratorService 创建朗读服务
func NewNarratorService(synth tts.Synthesizer, sessions *SessionService, cache *storage.ResponseCache) *NarratorService {
	return &NarratorService{
		synth:    synth,
		sessions: sessions,
		cache:    cache,
	}
}

// NarrateScene 朗读会话的最新一幕
// voiceID为空时使用会话创建时选定的角色
func (s *NarratorService) NarrateScene(ctx context.Context, sessionID, voiceID string) (*tts.SpeechResponse, error) {
	session, err := s.sessions.GetSession(sessionID)
	if err != nil {
		return nil, err
	}

	scene := session.CurrentScene()
	if scene == nil {
		return nil, apperrors.NewInvalidInputError("故事尚未开始，没有可朗读的场景")
	}

	if voiceID == "" {
		voiceID = session.VoiceID
	}
	if !models.IsValidVoice(voiceID) {
		return nil, apperrors.NewInvalidInputError("未知的朗读角色: " + voiceID)
	}

	profile := models.GetVoiceProfile(voiceID)
	return s.Narrate(ctx, scene.Text, profile)
}

// Narrate 合成任意文本的语音
func (s *NarratorService) Narrate(ctx context.Context, text string, profile models.VoiceProfile) (*tts.SpeechResponse, error) {
	if s.synth == nil {
		return nil, apperrors.NewProviderError("语音合成服务未配置", nil)
	}

	clean := CleanForTTS(text)
	if clean == "" {
		return nil, apperrors.NewInvalidInputError("清理后的朗读文本为空")
	}

	// 缓存键由清理后的文本、音色和语速共同决定
	key := storage.Key("audio", profile.ID, fmt.Sprintf("%.2f", profile.Speed), clean)

	value, _, err := s.cache.GetOrCompute(ctx, key, func(ctx context.Context) (interface{}, error) {
		resp, err := s.synth.Synthesize(ctx, tts.SpeechRequest{
			Text:  clean,
			Voice: profile.ID,
			Speed: profile.Speed,
		})
		if err != nil {
			return nil, apperrors.NewProviderError("语音合成失败", err)
		}
		return resp, nil
	})
	if err != nil {
		return nil, err
	}

	resp, ok := value.(*tts.SpeechResponse)
	if !ok {
		return nil, apperrors.NewProviderError("缓存中的音频类型不匹配", nil)
	}

	return resp, nil
}

// CleanForTTS 去掉Markdown标记并删除编号选项行，截断到合成接口上限
func CleanForTTS(raw string) string {
	noMarkup := ttsMarkupRe.ReplaceAllString(raw, "")

	var lines []string
	for _, line := range strings.Split(noMarkup, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "1.") || strings.HasPrefix(trimmed, "2.") {
			continue
		}
		lines = append(lines, line)
	}

	clean := strings.TrimSpace(strings.Join(lines, "\n"))

	runes := []rune(clean)
	if len(runes) > maxNarrationChars {
		clean = string(runes[:maxNarrationChars])
	}
	return clean
}
