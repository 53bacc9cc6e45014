// internal/models/voice.go
package models

// VoiceProfile 表示一个朗读角色
type VoiceProfile struct {
	ID    string  `json:"id"`    // 朗读引擎的音色名
	Label string  `json:"label"` // 展示给用户的角色名
	Speed float64 `json:"speed"` // 朗读语速
}

// VoiceProfiles 预置的家庭朗读角色
var VoiceProfiles = []VoiceProfile{
	{ID: "fable", Label: "Dad", Speed: 0.9},
	{ID: "shimmer", Label: "Mom", Speed: 0.9},
	{ID: "nova", Label: "Sister", Speed: 1.1},
	{ID: "onyx", Label: "Grandad", Speed: 0.8},
}

// DefaultVoiceID 默认朗读角色
const DefaultVoiceID = "fable"

// GetVoiceProfile 按音色名查找朗读角色，找不到时返回默认角色
func GetVoiceProfile(id string) VoiceProfile {
	for _, v := range VoiceProfiles {
		if v.ID == id {
			return v
		}
	}
	return VoiceProfiles[0]
}

// IsValidVoice 检查音色名是否在预置列表中
func IsValidVoice(id string) bool {
	for _, v := range VoiceProfiles {
		if v.ID == id {
			return true
		}
	}
	return false
}
