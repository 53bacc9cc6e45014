// internal/storage/session_store_test.go
package storage

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Corphon/DreamTaleMCP/internal/models"
)

func newTestStore(t *testing.T) *SessionStore {
	t.Helper()

	store, err := NewSessionStore(filepath.Join(t.TempDir(), "sessions"))
	if err != nil {
		t.Fatalf("创建会话存储失败: %v", err)
	}
	return store
}

func sampleSession(id string) *models.StorySession {
	now := time.Now().Truncate(time.Second)
	return &models.StorySession{
		ID:       id,
		RawIdea:  "a turtle",
		Idea:     "a brave little turtle who explores the lagoon",
		Category: "Animal Adventures",
		VoiceID:  "fable",
		State:    models.StateAwaitingChoice,
		Scenes: []models.SceneRecord{
			{
				Index:     1,
				Text:      "Once upon a time...",
				Options:   []string{"1. Go left", "2. Go right"},
				CreatedAt: now,
			},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// TestSessionStoreRoundTrip 测试保存后能原样读回
func TestSessionStoreRoundTrip(t *testing.T) {
	store := newTestStore(t)

	session := sampleSession("s1")
	if err := store.Save(session); err != nil {
		t.Fatalf("保存会话失败: %v", err)
	}

	loaded, err := store.Load("s1")
	if err != nil {
		t.Fatalf("读取会话失败: %v", err)
	}

	if loaded.ID != session.ID {
		t.Errorf("ID不匹配: %s", loaded.ID)
	}
	if loaded.Idea != session.Idea {
		t.Errorf("Idea不匹配: %s", loaded.Idea)
	}
	if loaded.State != models.StateAwaitingChoice {
		t.Errorf("状态不匹配: %s", loaded.State)
	}
	if len(loaded.Scenes) != 1 || len(loaded.Scenes[0].Options) != 2 {
		t.Errorf("场景数据不完整: %+v", loaded.Scenes)
	}
}

// TestSessionStoreLoadMissing 测试读取不存在的会话
func TestSessionStoreLoadMissing(t *testing.T) {
	store := newTestStore(t)

	if _, err := store.Load("nope"); err == nil {
		t.Error("读取不存在的会话应该返回错误")
	}
	if store.Exists("nope") {
		t.Error("Exists对不存在的会话应该返回false")
	}
}

// TestSessionStoreLoadAll 测试批量恢复并跳过损坏文件
func TestSessionStoreLoadAll(t *testing.T) {
	baseDir := filepath.Join(t.TempDir(), "sessions")
	store, err := NewSessionStore(baseDir)
	if err != nil {
		t.Fatalf("创建会话存储失败: %v", err)
	}

	for _, id := range []string{"a", "b", "c"} {
		if err := store.Save(sampleSession(id)); err != nil {
			t.Fatalf("保存会话 %s 失败: %v", id, err)
		}
	}

	// 写入一个损坏文件和一个无关文件
	if err := os.WriteFile(filepath.Join(baseDir, "broken.json"), []byte("{not json"), 0644); err != nil {
		t.Fatalf("写入损坏文件失败: %v", err)
	}
	if err := os.WriteFile(filepath.Join(baseDir, "notes.txt"), []byte("hello"), 0644); err != nil {
		t.Fatalf("写入无关文件失败: %v", err)
	}

	sessions, err := store.LoadAll()
	if err != nil {
		t.Fatalf("批量读取失败: %v", err)
	}
	if len(sessions) != 3 {
		t.Errorf("应该恢复3个会话并跳过损坏文件，实际 %d", len(sessions))
	}
}

// TestSessionStoreDelete 测试删除
func TestSessionStoreDelete(t *testing.T) {
	store := newTestStore(t)

	if err := store.Save(sampleSession("s1")); err != nil {
		t.Fatalf("保存会话失败: %v", err)
	}

	if err := store.Delete("s1"); err != nil {
		t.Fatalf("删除会话失败: %v", err)
	}
	if store.Exists("s1") {
		t.Error("删除后会话不应该存在")
	}

	// 删除不存在的会话不报错
	if err := store.Delete("s1"); err != nil {
		t.Errorf("重复删除不应该返回错误: %v", err)
	}
}
