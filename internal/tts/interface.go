// internal/tts/interface.go
package tts

import (
	"context"
	"errors"
)

// 错误定义
var ErrUnknownSynthesizer = errors.New("未知的语音合成提供者")

// 语音合成请求标准化
type SpeechRequest struct {
	Text   string  `json:"text"`
	Voice  string  `json:"voice,omitempty"`
	Speed  float64 `json:"speed,omitempty"`
	Model  string  `json:"model,omitempty"`
	Format string  `json:"format,omitempty"`
}

// 语音合成结果
type SpeechResponse struct {
	Audio        []byte `json:"-"`
	Format       string `json:"format"`
	Voice        string `json:"voice"`
	ModelName    string `json:"model_name,omitempty"`
	ProviderName string `json:"provider_name,omitempty"`
}

// Synthesizer 定义语音合成提供者必须实现的接口
type Synthesizer interface {
	// 初始化提供者，传入配置
	Initialize(config map[string]string) error

	// 获取提供者名称
	GetName() string

	// 获取支持的音色列表
	GetSupportedVoices() []string

	// 文本转语音，返回完整音频数据
	Synthesize(ctx context.Context, req SpeechRequest) (*SpeechResponse, error)
}

// 注册表和工厂函数类型
type SynthesizerFactory func() Synthesizer

var synthesizers = make(map[string]SynthesizerFactory)

// Register 注册语音合成提供者工厂
func Register(name string, factory SynthesizerFactory) {
	synthesizers[name] = factory
}

// GetSynthesizer 创建指定名称的语音合成提供者实例
func GetSynthesizer(name string, config map[string]string) (Synthesizer, error) {
	factory, exists := synthesizers[name]
	if !exists {
		return nil, ErrUnknownSynthesizer
	}

	synth := factory()
	err := synth.Initialize(config)
	return synth, err
}

// ListSynthesizers 返回所有已注册的语音合成提供者名称
func ListSynthesizers() []string {
	names := make([]string, 0, len(synthesizers))
	for name := range synthesizers {
		names = append(names, name)
	}
	return names
}
