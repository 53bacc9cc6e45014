// internal/models/session_test.go
package models

import (
	"testing"
	"time"
)

func threeSceneSession(state SessionState) *StorySession {
	return &StorySession{
		ID:       "sess-1",
		Idea:     "a turtle finds a lagoon",
		Category: StoryCategories[0],
		VoiceID:  DefaultVoiceID,
		State:    state,
		Scenes: []SceneRecord{
			{Index: 1, Text: "Scene one.", Options: []string{"Go left", "Go right"}, Choice: "Go left"},
			{Index: 2, Text: "Scene two.", Options: []string{"Swim", "Climb"}},
		},
		UpdatedAt: time.Now(),
	}
}

// TestFullText 测试场景正文拼接
func TestFullText(t *testing.T) {
	session := threeSceneSession(StateAwaitingChoice)
	if got := session.FullText(); got != "Scene one.\n\nScene two." {
		t.Errorf("全文拼接错误: %q", got)
	}

	empty := &StorySession{}
	if got := empty.FullText(); got != "" {
		t.Errorf("空会话的全文应该是空串，实际: %q", got)
	}
}

// TestCurrentScene 测试最新场景
func TestCurrentScene(t *testing.T) {
	session := threeSceneSession(StateAwaitingChoice)
	scene := session.CurrentScene()
	if scene == nil || scene.Index != 2 {
		t.Fatalf("最新场景应该是第二幕，实际: %+v", scene)
	}

	empty := &StorySession{}
	if empty.CurrentScene() != nil {
		t.Error("没有场景时应该返回nil")
	}
}

// TestViewVisibility 测试各状态下投影字段的可见性
func TestViewVisibility(t *testing.T) {
	cases := []struct {
		name        string
		state       SessionState
		wantOptions int
		canChoose   bool
		canRevise   bool
		canNarrate  bool
		canJudge    bool
		canPoster   bool
		canLearn    bool
	}{
		{"空闲状态", StateIdle, 0, false, false, false, false, false, false},
		{"等待选择", StateAwaitingChoice, 2, true, true, true, false, false, true},
		{"已完结", StateComplete, 0, false, true, true, true, true, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			session := threeSceneSession(tc.state)
			view := session.View()

			if len(view.Options) != tc.wantOptions {
				t.Errorf("选项数量应该是 %d，实际 %d", tc.wantOptions, len(view.Options))
			}
			if view.Options == nil {
				t.Error("选项字段不应该是nil，序列化后必须是数组")
			}
			if view.CanChoose != tc.canChoose {
				t.Errorf("CanChoose应该是 %v", tc.canChoose)
			}
			if view.CanRevise != tc.canRevise {
				t.Errorf("CanRevise应该是 %v", tc.canRevise)
			}
			if view.CanNarrate != tc.canNarrate {
				t.Errorf("CanNarrate应该是 %v", tc.canNarrate)
			}
			if view.CanJudge != tc.canJudge {
				t.Errorf("CanJudge应该是 %v", tc.canJudge)
			}
			if view.CanPoster != tc.canPoster {
				t.Errorf("CanPoster应该是 %v", tc.canPoster)
			}
			if view.CanLearn != tc.canLearn {
				t.Errorf("CanLearn应该是 %v", tc.canLearn)
			}
			if view.SceneText != session.FullText() {
				t.Errorf("投影文本应该是全文，实际: %q", view.SceneText)
			}
			if view.SceneNum != 2 {
				t.Errorf("场景数应该是2，实际 %d", view.SceneNum)
			}
		})
	}
}

// TestIsValidCategory 测试类别校验
func TestIsValidCategory(t *testing.T) {
	for _, c := range StoryCategories {
		if !IsValidCategory(c) {
			t.Errorf("预置类别 %q 应该有效", c)
		}
	}
	if IsValidCategory("Horror") {
		t.Error("未知类别应该无效")
	}
	if IsValidCategory("") {
		t.Error("空类别应该无效")
	}
}

// TestIsComplete 测试完结判断
func TestIsComplete(t *testing.T) {
	if threeSceneSession(StateAwaitingChoice).IsComplete() {
		t.Error("等待选择的会话不应该被视为完结")
	}
	if !threeSceneSession(StateComplete).IsComplete() {
		t.Error("完结状态的会话应该被视为完结")
	}
}
