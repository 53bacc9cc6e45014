// internal/imagen/openai.go
package imagen

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

func init() {
	Register("openai", func() Illustrator {
		return &OpenAIIllustrator{
			baseURL: "https://api.openai.com/v1",
		}
	})
}

// OpenAIIllustrator 通过OpenAI的图像接口生成插画
type OpenAIIllustrator struct {
	apiKey       string
	baseURL      string
	client       *http.Client
	defaultModel string
	defaultSize  string
}

func (g *OpenAIIllustrator) Initialize(config map[string]string) error {
	apiKey, exists := config["api_key"]
	if !exists || apiKey == "" {
		return errors.New("OpenAI API密钥未提供")
	}

	g.apiKey = apiKey
	g.client = &http.Client{}

	if model, exists := config["image_model"]; exists && model != "" {
		g.defaultModel = model
	} else {
		g.defaultModel = "dall-e-3"
	}

	if size, exists := config["image_size"]; exists && size != "" {
		g.defaultSize = size
	} else {
		g.defaultSize = "1024x1024"
	}

	if baseURL, exists := config["base_url"]; exists && baseURL != "" {
		g.baseURL = baseURL
	}

	return nil
}

func (g *OpenAIIllustrator) GetName() string {
	return "OpenAI"
}

// Illustrate 调用图像生成接口，返回托管图像的URL
func (g *OpenAIIllustrator) Illustrate(ctx context.Context, req ImageRequest) (*ImageResponse, error) {
	if req.Prompt == "" {
		return nil, errors.New("插画提示词不能为空")
	}

	model := req.Model
	if model == "" {
		model = g.defaultModel
	}

	size := req.Size
	if size == "" {
		size = g.defaultSize
	}

	// 构建请求体
	requestBody := map[string]interface{}{
		"model":           model,
		"prompt":          req.Prompt,
		"n":               1,
		"size":            size,
		"response_format": "url",
	}

	jsonData, err := json.Marshal(requestBody)
	if err != nil {
		return nil, err
	}

	// 创建HTTP请求
	httpReq, err := http.NewRequestWithContext(
		ctx,
		"POST",
		g.baseURL+"/images/generations",
		bytes.NewBuffer(jsonData),
	)
	if err != nil {
		return nil, err
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+g.apiKey)

	// 发送请求
	httpResp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	// 检查错误
	if httpResp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(httpResp.Body)
		return nil, fmt.Errorf("OpenAI图像接口错误(%d): %s", httpResp.StatusCode, string(body))
	}

	// 解析响应
	var response struct {
		Created int64 `json:"created"`
		Data    []struct {
			URL           string `json:"url"`
			RevisedPrompt string `json:"revised_prompt"`
		} `json:"data"`
	}

	if err := json.NewDecoder(httpResp.Body).Decode(&response); err != nil {
		return nil, err
	}

	if len(response.Data) == 0 || response.Data[0].URL == "" {
		return nil, errors.New("OpenAI未返回任何图像")
	}

	return &ImageResponse{
		URL:           response.Data[0].URL,
		RevisedPrompt: response.Data[0].RevisedPrompt,
		ModelName:     model,
		ProviderName:  g.GetName(),
	}, nil
}
