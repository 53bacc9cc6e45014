// internal/imagen/interface.go
package imagen

import (
	"context"
	"errors"
)

// 错误定义
var ErrUnknownIllustrator = errors.New("未知的插画生成提供者")

// 插画生成请求标准化
type ImageRequest struct {
	Prompt string `json:"prompt"`
	Model  string `json:"model,omitempty"`
	Size   string `json:"size,omitempty"`
}

// 插画生成结果
type ImageResponse struct {
	URL           string `json:"url"`
	RevisedPrompt string `json:"revised_prompt,omitempty"`
	ModelName     string `json:"model_name,omitempty"`
	ProviderName  string `json:"provider_name,omitempty"`
}

// Illustrator 定义插画生成提供者必须实现的接口
type Illustrator interface {
	// 初始化提供者，传入配置
	Initialize(config map[string]string) error

	// 获取提供者名称
	GetName() string

	// 根据提示词生成插画，返回图像URL
	Illustrate(ctx context.Context, req ImageRequest) (*ImageResponse, error)
}

// 注册表和工厂函数类型
type IllustratorFactory func() Illustrator

var illustrators = make(map[string]IllustratorFactory)

// Register 注册插画生成提供者工厂
func Register(name string, factory IllustratorFactory) {
	illustrators[name] = factory
}

// GetIllustrator 创建指定名称的插画生成提供者实例
func GetIllustrator(name string, config map[string]string) (Illustrator, error) {
	factory, exists := illustrators[name]
	if !exists {
		return nil, ErrUnknownIllustrator
	}

	ill := factory()
	err := ill.Initialize(config)
	return ill, err
}

// ListIllustrators 返回所有已注册的插画生成提供者名称
func ListIllustrators() []string {
	names := make([]string, 0, len(illustrators))
	for name := range illustrators {
		names = append(names, name)
	}
	return names
}
