// internal/tts/openai.go
package tts

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
	Register("openai", func() Synthesizer {
		return &OpenAISynthesizer{
			baseURL: "https://api.openai.com/v1",
			voices: []string{
				"alloy", "echo", "fable", "nova", "onyx", "shimmer",
			},
		}
	})
}

// OpenAISynthesizer 通过OpenAI的语音接口合成音频
type OpenAISynthesizer struct {
	apiKey       string
	baseURL      string
	client       *http.Client
	defaultModel string
	voices       []string
}

func (s *OpenAISynthesizer) Initialize(config map[string]string) error {
	apiKey, exists := config["api_key"]
	if !exists || apiKey == "" {
		return errors.New("OpenAI API密钥未提供")
	}

	s.apiKey = apiKey
	s.client = &http.Client{}

	if model, exists := config["tts_model"]; exists && model != "" {
		s.defaultModel = model
	} else {
		s.defaultModel = "tts-1"
	}

	if baseURL, exists := config["base_url"]; exists && baseURL != "" {
		s.baseURL = baseURL
	}

	return nil
}

func (s *OpenAISynthesizer) GetName() string {
	return "OpenAI"
}

func (s *OpenAISynthesizer) GetSupportedVoices() []string {
	return s.voices
}

// Synthesize 调用语音接口并读取完整的音频流
func (s *OpenAISynthesizer) Synthesize(ctx context.Context, req SpeechRequest) (*SpeechResponse, error) {
	if req.Text == "" {
		return nil, errors.New("合成文本不能为空")
	}

	model := req.Model
	if model == "" {
		model = s.defaultModel
	}

	voice := req.Voice
	if voice == "" {
		voice = "fable"
	}

	format := req.Format
	if format == "" {
		format = "mp3"
	}

	// 构建请求体
	requestBody := map[string]interface{}{
		"model":           model,
		"voice":           voice,
		"input":           req.Text,
		"response_format": format,
	}

	if req.Speed > 0 {
		requestBody["speed"] = req.Speed
	}

	jsonData, err := json.Marshal(requestBody)
	if err != nil {
		return nil, err
	}

	// 创建HTTP请求
	httpReq, err := http.NewRequestWithContext(
		ctx,
		"POST",
		s.baseURL+"/audio/speech",
		bytes.NewBuffer(jsonData),
	)
	if err != nil {
		return nil, err
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+s.apiKey)

	// 发送请求
	httpResp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	// 检查错误
	if httpResp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(httpResp.Body)
		return nil, fmt.Errorf("OpenAI语音接口错误(%d): %s", httpResp.StatusCode, string(body))
	}

	// 读取完整音频数据
	audio, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, err
	}

	if len(audio) == 0 {
		return nil, errors.New("OpenAI未返回音频数据")
	}

	return &SpeechResponse{
		Audio:        audio,
		Format:       format,
		Voice:        voice,
		ModelName:    model,
		ProviderName: s.GetName(),
	}, nil
}
