// internal/services/session_service.go
package services

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/Corphon/DreamTaleMCP/internal/errors"
	"github.com/Corphon/DreamTaleMCP/internal/models"
	"github.com/Corphon/DreamTaleMCP/internal/storage"
	"github.com/Corphon/DreamTaleMCP/internal/utils"
)

// SessionService 管理全部故事会话
// 会话保存在内存中，互相完全隔离；busy标记保证同一会话
// 同时只有一个外部模型调用在进行
// 配置了store时，变更会同步落盘，重启后会话可恢复
type SessionService struct {
	mu       sync.RWMutex
	sessions map[string]*models.StorySession
	busy     map[string]bool
	store    *storage.SessionStore
}

// NewSessionService 创建纯内存的会话服务
func NewSessionService() *SessionService {
	return &SessionService{
		sessions: make(map[string]*models.StorySession),
		busy:     make(map[string]bool),
	}
}

// NewPersistentSessionService 创建带文件持久化的会话服务
// 启动时恢复已保存的会话
func NewPersistentSessionService(store *storage.SessionStore) *SessionService {
	s := &SessionService{
		sessions: make(map[string]*models.StorySession),
		busy:     make(map[string]bool),
		store:    store,
	}

	if store != nil {
		saved, err := store.LoadAll()
		if err != nil {
			utils.GetLogger().Warnf("恢复已保存的会话失败: %v", err)
			return s
		}
		for _, session := range saved {
			s.sessions[session.ID] = session
		}
		if len(saved) > 0 {
			utils.GetLogger().Infof("已恢复 %d 个故事会话", len(saved))
		}
	}

	return s
}

// persist 把会话写入存储，持久化失败只记录日志
// 内存状态是唯一权威，落盘是尽力而为
func (s *SessionService) persist(session *models.StorySession) {
	if s.store == nil {
		return
	}
	if err := s.store.Save(session); err != nil {
		utils.GetLogger().Warnf("持久化会话 %s 失败: %v", session.ID, err)
	}
}

// CreateSession 创建一个新的故事会话
func (s *SessionService) CreateSession(rawIdea, category, voiceID string) (*models.StorySession, error) {
	rawIdea = strings.TrimSpace(rawIdea)
	if rawIdea == "" {
		return nil, apperrors.NewInvalidInputError("故事想法不能为空")
	}

	if category == "" {
		category = models.StoryCategories[0]
	}
	if !models.IsValidCategory(category) {
		return nil, apperrors.NewInvalidInputError("未知的故事类别: " + category)
	}

	if voiceID == "" {
		voiceID = models.DefaultVoiceID
	}
	if !models.IsValidVoice(voiceID) {
		return nil, apperrors.NewInvalidInputError("未知的朗读角色: " + voiceID)
	}

	now := time.Now()
	session := &models.StorySession{
		ID:        uuid.NewString(),
		RawIdea:   rawIdea,
		Idea:      rawIdea,
		Category:  category,
		VoiceID:   voiceID,
		State:     models.StateIdle,
		Scenes:    []models.SceneRecord{},
		CreatedAt: now,
		UpdatedAt: now,
	}

	s.mu.Lock()
	s.sessions[session.ID] = session
	s.mu.Unlock()

	s.persist(session)

	return session, nil
}

// GetSession 按ID获取会话的副本
func (s *SessionService) GetSession(id string) (*models.StorySession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, exists := s.sessions[id]
	if !exists {
		return nil, apperrors.NewNotFoundError("故事会话不存在: "+id, nil)
	}

	return cloneSession(session), nil
}

// BeginAction 为会话标记一个进行中的模型调用
// 同一会话并发的第二个调用立即失败，而不是排队
func (s *SessionService) BeginAction(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[id]; !exists {
		return apperrors.NewNotFoundError("故事会话不存在: "+id, nil)
	}

	if s.busy[id] {
		return apperrors.NewConflictError("该会话已有操作在进行中")
	}

	s.busy[id] = true
	return nil
}

// EndAction 清除会话的进行中标记
func (s *SessionService) EndAction(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.busy, id)
}

// Update 在写锁内对会话执行变更
// fn返回错误时会话保持原样，不会留下部分修改
func (s *SessionService) Update(id string, fn func(session *models.StorySession) error) (*models.StorySession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, exists := s.sessions[id]
	if !exists {
		return nil, apperrors.NewNotFoundError("故事会话不存在: "+id, nil)
	}

	// 在副本上执行变更，成功后才替换原会话
	updated := cloneSession(session)
	if err := fn(updated); err != nil {
		return nil, err
	}

	updated.UpdatedAt = time.Now()
	s.sessions[id] = updated

	s.persist(updated)

	return cloneSession(updated), nil
}

// ResetSession 将会话重置回初始状态，保留想法和类别
func (s *SessionService) ResetSession(id string) (*models.StorySession, error) {
	return s.Update(id, func(session *models.StorySession) error {
		session.State = models.StateIdle
		session.Scenes = []models.SceneRecord{}
		session.Judge = nil
		session.Learning = nil
		session.PosterURL = ""
		return nil
	})
}

// DeleteSession 删除会话
func (s *SessionService) DeleteSession(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[id]; !exists {
		return apperrors.NewNotFoundError("故事会话不存在: "+id, nil)
	}

	delete(s.sessions, id)
	delete(s.busy, id)

	if s.store != nil {
		if err := s.store.Delete(id); err != nil {
			utils.GetLogger().Warnf("删除持久化会话 %s 失败: %v", id, err)
		}
	}

	return nil
}

// Count 返回当前会话数
func (s *SessionService) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.sessions)
}

// cloneSession 深拷贝一个会话，避免调用方拿到内部指针
func cloneSession(session *models.StorySession) *models.StorySession {
	clone := *session

	clone.Scenes = make([]models.SceneRecord, len(session.Scenes))
	copy(clone.Scenes, session.Scenes)
	for i := range clone.Scenes {
		options := make([]string, len(session.Scenes[i].Options))
		copy(options, session.Scenes[i].Options)
		clone.Scenes[i].Options = options
	}

	if session.Judge != nil {
		judge := *session.Judge
		clone.Judge = &judge
	}
	if session.Learning != nil {
		learning := *session.Learning
		clone.Learning = &learning
	}

	return &clone
}
