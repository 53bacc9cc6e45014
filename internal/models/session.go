// internal/models/session.go
package models

import (
	"time"
)

// SessionState 表示故事会话所处的阶段
type SessionState string

const (
	// StateIdle 表示会话尚未开始生成故事
	StateIdle SessionState = "IDLE"
	// StateAwaitingChoice 表示故事正在等待读者做出选择
	StateAwaitingChoice SessionState = "AWAITING_CHOICE"
	// StateComplete 表示三幕故事已经完结
	StateComplete SessionState = "COMPLETE"
)

// 每个故事固定的场景数
const TotalScenes = 3

// StoryCategories 预置的故事类别
var StoryCategories = []string{
	"Animal Adventures",
	"Fantasy & Magic",
	"Friendship & Emotional Growth",
	"Mystery & Problem-Solving",
	"Humor & Silly Situations",
	"Science & Space Exploration",
	"Values & Morals (Fables)",
}

// IsValidCategory 检查类别是否在预置列表中
func IsValidCategory(category string) bool {
	for _, c := range StoryCategories {
		if c == category {
			return true
		}
	}
	return false
}

// SceneRecord 表示故事中已生成的一幕
type SceneRecord struct {
	Index     int       `json:"index"`   // 从1开始
	Text      string    `json:"text"`    // 去掉选项行之后的正文
	Options   []string  `json:"options"` // 末幕为空
	Choice    string    `json:"choice,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// JudgeMetric 表示单项评分
type JudgeMetric struct {
	Score       int    `json:"score"` // 1-10
	Explanation string `json:"explanation"`
}

// JudgeResult 表示评审对完整故事的评价
type JudgeResult struct {
	AgeAppropriateness JudgeMetric `json:"age_appropriateness"`
	EaseOfReading      JudgeMetric `json:"ease_of_reading"`
	ClarityOfMoral     JudgeMetric `json:"clarity_of_moral"`
	Overall            float64     `json:"overall"` // 三项平均分
	Verdict            string      `json:"verdict"`
	RawText            string      `json:"raw_text,omitempty"`
	CreatedAt          time.Time   `json:"created_at"`
}

// LearningNote 表示"学点东西"环节的结果
type LearningNote struct {
	Term      string    `json:"term"`
	Fact      string    `json:"fact"`
	CreatedAt time.Time `json:"created_at"`
}

// StorySession 表示一次完整的睡前故事会话
type StorySession struct {
	ID        string        `json:"id"`
	RawIdea   string        `json:"raw_idea"` // 用户输入的原始想法
	Idea      string        `json:"idea"`     // 润色后的故事想法
	Category  string        `json:"category"`
	VoiceID   string        `json:"voice_id"`
	State     SessionState  `json:"state"`
	Scenes    []SceneRecord `json:"scenes"`
	Judge     *JudgeResult  `json:"judge,omitempty"`
	Learning  *LearningNote `json:"learning,omitempty"`
	PosterURL string        `json:"poster_url,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// SceneCount 返回已生成的场景数
func (s *StorySession) SceneCount() int {
	return len(s.Scenes)
}

// CurrentScene 返回最新的一幕，没有时返回nil
func (s *StorySession) CurrentScene() *SceneRecord {
	if len(s.Scenes) == 0 {
		return nil
	}
	return &s.Scenes[len(s.Scenes)-1]
}

// IsComplete 判断故事是否已完结
func (s *StorySession) IsComplete() bool {
	return s.State == StateComplete
}

// FullText 拼接全部场景正文，用于评审、朗读和插画
func (s *StorySession) FullText() string {
	text := ""
	for i, scene := range s.Scenes {
		if i > 0 {
			text += "\n\n"
		}
		text += scene.Text
	}
	return text
}

// SessionView 是返回给客户端的会话投影
type SessionView struct {
	ID         string        `json:"id"`
	Idea       string        `json:"idea"`
	Category   string        `json:"category"`
	VoiceID    string        `json:"voice_id"`
	State      SessionState  `json:"state"`
	SceneText  string        `json:"scene_text"` // 当前可见的故事文本
	Options    []string      `json:"options"`    // 等待选择时恰好两个，否则为空
	SceneNum   int           `json:"scene_num"`
	CanChoose  bool          `json:"can_choose"`
	CanRevise  bool          `json:"can_revise"`
	CanNarrate bool          `json:"can_narrate"`
	CanJudge   bool          `json:"can_judge"`
	CanPoster  bool          `json:"can_poster"`
	CanLearn   bool          `json:"can_learn"`
	Judge      *JudgeResult  `json:"judge,omitempty"`
	Learning   *LearningNote `json:"learning,omitempty"`
	PosterURL  string        `json:"poster_url,omitempty"`
	UpdatedAt  time.Time     `json:"updated_at"`
}

// View 生成会话的客户端投影
// 选项只在等待选择时可见，故事文本始终是已生成场景的全文
func (s *StorySession) View() *SessionView {
	view := &SessionView{
		ID:        s.ID,
		Idea:      s.Idea,
		Category:  s.Category,
		VoiceID:   s.VoiceID,
		State:     s.State,
		SceneText: s.FullText(),
		Options:   []string{},
		SceneNum:  s.SceneCount(),
		Judge:     s.Judge,
		Learning:  s.Learning,
		PosterURL: s.PosterURL,
		UpdatedAt: s.UpdatedAt,
	}

	if s.State == StateAwaitingChoice {
		if scene := s.CurrentScene(); scene != nil {
			view.Options = scene.Options
		}
		view.CanChoose = true
		view.CanRevise = true
	}

	if s.State == StateComplete {
		// 完结后仍然可以修订末幕
		view.CanRevise = true
		view.CanJudge = true
		view.CanPoster = true
	}

	// 只要已有场景就可以朗读和学习
	if s.State != StateIdle {
		view.CanNarrate = true
		view.CanLearn = true
	}

	return view
}
