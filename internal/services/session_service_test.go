// internal/services/session_service_test.go
package services

import (
	"errors"
	"path/filepath"
	"testing"

	apperrors "github.com/Corphon/DreamTaleMCP/internal/errors"
	"github.com/Corphon/DreamTaleMCP/internal/models"
	"github.com/Corphon/DreamTaleMCP/internal/storage"
)

// TestCreateSessionDefaults 测试创建会话时的默认值
func TestCreateSessionDefaults(t *testing.T) {
	svc := NewSessionService()

	session, err := svc.CreateSession("a dragon who bakes", "", "")
	if err != nil {
		t.Fatalf("创建会话失败: %v", err)
	}

	if session.ID == "" {
		t.Error("会话应该有ID")
	}
	if session.State != models.StateIdle {
		t.Errorf("新会话状态应该是IDLE，实际 %s", session.State)
	}
	if session.Category != models.StoryCategories[0] {
		t.Errorf("空类别应该落到默认类别，实际 %s", session.Category)
	}
	if session.VoiceID != models.DefaultVoiceID {
		t.Errorf("空音色应该落到默认音色，实际 %s", session.VoiceID)
	}
	if session.RawIdea != "a dragon who bakes" || session.Idea != "a dragon who bakes" {
		t.Error("原始想法和润色想法初始应该一致")
	}
}

// TestCreateSessionValidation 测试创建会话的输入校验
func TestCreateSessionValidation(t *testing.T) {
	svc := NewSessionService()

	if _, err := svc.CreateSession("   ", "", ""); !apperrors.IsValidationError(err) {
		t.Errorf("空想法应该返回validation_error，实际: %v", err)
	}
	if _, err := svc.CreateSession("idea", "Nonexistent Category", ""); !apperrors.IsValidationError(err) {
		t.Errorf("未知类别应该返回validation_error，实际: %v", err)
	}
	if _, err := svc.CreateSession("idea", "", "unknown-voice"); !apperrors.IsValidationError(err) {
		t.Errorf("未知音色应该返回validation_error，实际: %v", err)
	}
}

// TestSessionIsolation 测试会话之间完全隔离
func TestSessionIsolation(t *testing.T) {
	svc := NewSessionService()

	s1, err := svc.CreateSession("idea one", "", "")
	if err != nil {
		t.Fatalf("创建会话1失败: %v", err)
	}
	s2, err := svc.CreateSession("idea two", "", "")
	if err != nil {
		t.Fatalf("创建会话2失败: %v", err)
	}

	if _, err := svc.Update(s1.ID, func(s *models.StorySession) error {
		s.State = models.StateAwaitingChoice
		s.Scenes = append(s.Scenes, models.SceneRecord{Index: 1, Text: "scene"})
		return nil
	}); err != nil {
		t.Fatalf("更新会话1失败: %v", err)
	}

	other, err := svc.GetSession(s2.ID)
	if err != nil {
		t.Fatalf("获取会话2失败: %v", err)
	}
	if other.State != models.StateIdle || other.SceneCount() != 0 {
		t.Error("会话1的变更不应该影响会话2")
	}
}

// TestGetSessionReturnsCopy 测试返回的会话是副本
func TestGetSessionReturnsCopy(t *testing.T) {
	svc := NewSessionService()

	created, err := svc.CreateSession("idea", "", "")
	if err != nil {
		t.Fatalf("创建会话失败: %v", err)
	}
	if _, err := svc.Update(created.ID, func(s *models.StorySession) error {
		s.Scenes = append(s.Scenes, models.SceneRecord{Index: 1, Text: "original", Options: []string{"1. a", "2. b"}})
		return nil
	}); err != nil {
		t.Fatalf("更新会话失败: %v", err)
	}

	copy1, _ := svc.GetSession(created.ID)
	copy1.Scenes[0].Text = "mutated"
	copy1.Scenes[0].Options[0] = "mutated"

	copy2, _ := svc.GetSession(created.ID)
	if copy2.Scenes[0].Text != "original" || copy2.Scenes[0].Options[0] != "1. a" {
		t.Error("修改返回的副本不应该影响存储中的会话")
	}
}

// TestUpdateAtomicity 测试变更函数失败时会话保持原样
func TestUpdateAtomicity(t *testing.T) {
	svc := NewSessionService()

	created, err := svc.CreateSession("idea", "", "")
	if err != nil {
		t.Fatalf("创建会话失败: %v", err)
	}

	boom := errors.New("halfway failure")
	_, err = svc.Update(created.ID, func(s *models.StorySession) error {
		s.State = models.StateComplete
		s.Scenes = append(s.Scenes, models.SceneRecord{Index: 1, Text: "partial"})
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("应该返回变更函数的错误，实际: %v", err)
	}

	after, _ := svc.GetSession(created.ID)
	if after.State != models.StateIdle || after.SceneCount() != 0 {
		t.Error("变更失败后会话不应该有部分修改")
	}
}

// TestBusyMarker 测试同一会话同时只允许一个进行中的操作
func TestBusyMarker(t *testing.T) {
	svc := NewSessionService()

	created, err := svc.CreateSession("idea", "", "")
	if err != nil {
		t.Fatalf("创建会话失败: %v", err)
	}

	if err := svc.BeginAction(created.ID); err != nil {
		t.Fatalf("第一个操作应该被允许: %v", err)
	}
	if err := svc.BeginAction(created.ID); !apperrors.IsConflictError(err) {
		t.Errorf("并发的第二个操作应该返回conflict，实际: %v", err)
	}

	// 其他会话不受影响
	other, _ := svc.CreateSession("other idea", "", "")
	if err := svc.BeginAction(other.ID); err != nil {
		t.Errorf("其他会话的操作不应该被阻塞: %v", err)
	}

	svc.EndAction(created.ID)
	if err := svc.BeginAction(created.ID); err != nil {
		t.Errorf("操作结束后应该可以再次开始: %v", err)
	}

	if err := svc.BeginAction("missing"); !apperrors.IsNotFoundError(err) {
		t.Errorf("不存在的会话应该返回not_found，实际: %v", err)
	}
}

// TestResetSession 测试重置保留想法、清空生成内容
func TestResetSession(t *testing.T) {
	svc := NewSessionService()

	created, err := svc.CreateSession("idea", "Fantasy & Magic", "nova")
	if err != nil {
		t.Fatalf("创建会话失败: %v", err)
	}
	if _, err := svc.Update(created.ID, func(s *models.StorySession) error {
		s.State = models.StateComplete
		s.Scenes = append(s.Scenes, models.SceneRecord{Index: 1, Text: "scene"})
		s.Judge = &models.JudgeResult{Overall: 7}
		s.Learning = &models.LearningNote{Term: "lagoon"}
		s.PosterURL = "https://example.com/p.png"
		return nil
	}); err != nil {
		t.Fatalf("更新会话失败: %v", err)
	}

	reset, err := svc.ResetSession(created.ID)
	if err != nil {
		t.Fatalf("重置失败: %v", err)
	}
	if reset.State != models.StateIdle || reset.SceneCount() != 0 {
		t.Error("重置后应该回到初始状态")
	}
	if reset.Judge != nil || reset.Learning != nil || reset.PosterURL != "" {
		t.Error("重置后评审、学习和海报应该被清空")
	}
	if reset.Idea != "idea" || reset.Category != "Fantasy & Magic" || reset.VoiceID != "nova" {
		t.Error("重置应该保留想法、类别和音色")
	}
}

// TestDeleteSession 测试删除
func TestDeleteSession(t *testing.T) {
	svc := NewSessionService()

	created, err := svc.CreateSession("idea", "", "")
	if err != nil {
		t.Fatalf("创建会话失败: %v", err)
	}

	if err := svc.DeleteSession(created.ID); err != nil {
		t.Fatalf("删除失败: %v", err)
	}
	if _, err := svc.GetSession(created.ID); !apperrors.IsNotFoundError(err) {
		t.Errorf("删除后获取会话应该返回not_found，实际: %v", err)
	}
	if err := svc.DeleteSession(created.ID); !apperrors.IsNotFoundError(err) {
		t.Errorf("重复删除应该返回not_found，实际: %v", err)
	}
	if svc.Count() != 0 {
		t.Errorf("删除后会话数应该为0，实际 %d", svc.Count())
	}
}

// TestPersistentSessionService 测试会话落盘与重启恢复
func TestPersistentSessionService(t *testing.T) {
	baseDir := filepath.Join(t.TempDir(), "sessions")
	store, err := storage.NewSessionStore(baseDir)
	if err != nil {
		t.Fatalf("创建会话存储失败: %v", err)
	}

	svc := NewPersistentSessionService(store)
	created, err := svc.CreateSession("a persistent idea", "", "")
	if err != nil {
		t.Fatalf("创建会话失败: %v", err)
	}
	if _, err := svc.Update(created.ID, func(s *models.StorySession) error {
		s.State = models.StateAwaitingChoice
		s.Scenes = append(s.Scenes, models.SceneRecord{Index: 1, Text: "scene one"})
		return nil
	}); err != nil {
		t.Fatalf("更新会话失败: %v", err)
	}

	// 用同一个存储新建服务，模拟重启后的恢复
	restarted := NewPersistentSessionService(store)
	restored, err := restarted.GetSession(created.ID)
	if err != nil {
		t.Fatalf("重启后应该能恢复会话: %v", err)
	}
	if restored.State != models.StateAwaitingChoice || restored.SceneCount() != 1 {
		t.Error("恢复的会话应该包含落盘时的状态和场景")
	}

	// 删除后持久化数据也被移除
	if err := restarted.DeleteSession(created.ID); err != nil {
		t.Fatalf("删除会话失败: %v", err)
	}
	if store.Exists(created.ID) {
		t.Error("删除会话后持久化文件应该被移除")
	}
}
