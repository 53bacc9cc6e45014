// internal/models/voice_test.go
package models

import "testing"

// TestGetVoiceProfile 测试音色查找和默认回退
func TestGetVoiceProfile(t *testing.T) {
	if got := GetVoiceProfile("nova"); got.Label != "Sister" || got.Speed != 1.1 {
		t.Errorf("nova音色查找错误: %+v", got)
	}
	if got := GetVoiceProfile("robot"); got.ID != DefaultVoiceID {
		t.Errorf("未知音色应该回退到默认角色，实际: %+v", got)
	}
}

// TestIsValidVoice 测试音色校验
func TestIsValidVoice(t *testing.T) {
	for _, v := range VoiceProfiles {
		if !IsValidVoice(v.ID) {
			t.Errorf("预置音色 %q 应该有效", v.ID)
		}
	}
	if IsValidVoice("robot") || IsValidVoice("") {
		t.Error("未知音色应该无效")
	}
}
