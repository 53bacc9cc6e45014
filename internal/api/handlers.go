// internal/api/handlers.go
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/Corphon/DreamTaleMCP/internal/config"
	"github.com/Corphon/DreamTaleMCP/internal/di"
	"github.com/Corphon/DreamTaleMCP/internal/llm"
	"github.com/Corphon/DreamTaleMCP/internal/models"
	"github.com/Corphon/DreamTaleMCP/internal/services"
	"github.com/Corphon/DreamTaleMCP/internal/utils"
	"github.com/gin-gonic/gin"
)

// Handler 处理API请求
type Handler struct {
	// 核心服务
	StoryService     *services.StoryService    // 故事生成服务
	SessionService   *services.SessionService  // 会话状态服务
	EnrichService    *services.EnrichService   // 创意润色服务
	NarratorService  *services.NarratorService // 朗读服务
	JudgeService     *services.JudgeService    // 评审服务
	LearnService     *services.LearnService    // 学习环节服务
	PosterService    *services.PosterService   // 海报服务
	ConfigService    *services.ConfigService   // 配置服务
	StatsService     *services.StatsService    // 统计服务
	WebSocketHandler *WebSocketHandler         // WebSocket 处理器
	Response         *ResponseHelper           // 响应助手
	Metrics          *utils.APIMetrics         // 业务指标
}

// CreateStoryRequest 创建故事会话的请求结构
type CreateStoryRequest struct {
	Idea     string `json:"idea" binding:"required"` // 故事创意
	Category string `json:"category"`                // 故事类别
	VoiceID  string `json:"voice_id"`                // 朗读角色
	Enrich   bool   `json:"enrich"`                  // 是否先润色创意
}

// ChoiceRequest 故事选择的请求结构
type ChoiceRequest struct {
	Choice string `json:"choice" binding:"required"` // 选项序号或完整选项文本
}

// FeedbackRequest 修订反馈的请求结构
type FeedbackRequest struct {
	Feedback string `json:"feedback" binding:"required"` // 修订意见
}

// NarrateRequest 朗读请求结构
type NarrateRequest struct {
	VoiceID string `json:"voice_id"` // 朗读角色，留空时使用会话音色
}

// EnrichRequest 创意润色的请求结构
type EnrichRequest struct {
	Idea string `json:"idea" binding:"required"` // 原始创意
}

// APIResponse 标准API响应格式
type APIResponse struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Error     *APIError   `json:"error,omitempty"`
	Message   string      `json:"message,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	RequestID string      `json:"request_id,omitempty"` // 用于调试和追踪
}

// APIError 标准错误格式
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// ---------------------------------------------------------
// NewHandler 创建API处理器
func NewHandler(
	storyService *services.StoryService,
	sessionService *services.SessionService,
	enrichService *services.EnrichService,
	narratorService *services.NarratorService,
	judgeService *services.JudgeService,
	learnService *services.LearnService,
	posterService *services.PosterService,
	configService *services.ConfigService,
	statsService *services.StatsService) *Handler {

	return &Handler{
		StoryService:     storyService,
		SessionService:   sessionService,
		EnrichService:    enrichService,
		NarratorService:  narratorService,
		JudgeService:     judgeService,
		LearnService:     learnService,
		PosterService:    posterService,
		ConfigService:    configService,
		StatsService:     statsService,
		WebSocketHandler: NewWebSocketHandler(),
		Response:         NewResponseHelper(),
		Metrics:          utils.NewAPIMetrics(),
	}
}

// estimateTokens 粗略估算文本的token数量，用于用量统计
func estimateTokens(text string) int {
	return len(text) / 4
}

// ========================================
// 故事会话处理器
// ========================================

// CreateStory 创建故事会话并生成开场场景
func (h *Handler) CreateStory(c *gin.Context) {
	var req CreateStoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "请求参数错误", err.Error())
		return
	}

	ctx := c.Request.Context()

	idea := req.Idea
	if req.Enrich {
		enriched, err := h.EnrichService.EnrichIdea(ctx, idea)
		if err != nil {
			h.Response.AppError(c, err)
			return
		}
		idea = enriched
	}

	session, err := h.StoryService.StartStory(ctx, idea, req.Category, req.VoiceID)
	if err != nil {
		h.Response.AppError(c, err)
		return
	}

	h.StatsService.RecordEvent(services.StatStoryStarted, estimateTokens(session.FullText()))
	h.Metrics.RecordStoryAction(session.ID, "start")

	h.Response.Created(c, session.View(), "故事会话创建成功")
}

// GetStory 获取故事会话的当前投影
func (h *Handler) GetStory(c *gin.Context) {
	session, err := h.SessionService.GetSession(c.Param("id"))
	if err != nil {
		h.Response.AppError(c, err)
		return
	}

	h.Response.Success(c, session.View(), "故事会话获取成功")
}

// DeleteStory 删除故事会话
func (h *Handler) DeleteStory(c *gin.Context) {
	if err := h.SessionService.DeleteSession(c.Param("id")); err != nil {
		h.Response.AppError(c, err)
		return
	}

	h.Response.Success(c, nil, "故事会话已删除")
}

// MakeChoice 应用读者选择并推进到下一幕
func (h *Handler) MakeChoice(c *gin.Context) {
	var req ChoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "请求参数错误", err.Error())
		return
	}

	session, err := h.StoryService.Choose(c.Request.Context(), c.Param("id"), req.Choice)
	if err != nil {
		h.Response.AppError(c, err)
		return
	}

	h.StatsService.RecordEvent(services.StatSceneGenerated, estimateTokens(session.FullText()))
	h.Metrics.RecordStoryAction(session.ID, "choice")
	BroadcastSessionUpdate(session.ID, "story:scene", session.View())

	h.Response.Success(c, session.View(), "故事已推进")
}

// ReviseScene 按读者反馈重写当前场景
func (h *Handler) ReviseScene(c *gin.Context) {
	var req FeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "请求参数错误", err.Error())
		return
	}

	session, err := h.StoryService.Revise(c.Request.Context(), c.Param("id"), req.Feedback)
	if err != nil {
		h.Response.AppError(c, err)
		return
	}

	h.StatsService.RecordEvent(services.StatSceneRevised, estimateTokens(session.FullText()))
	h.Metrics.RecordStoryAction(session.ID, "revise")
	BroadcastSessionUpdate(session.ID, "story:revised", session.View())

	h.Response.Success(c, session.View(), "场景修订成功")
}

// ResetStory 清空场景记录，回到初始状态
func (h *Handler) ResetStory(c *gin.Context) {
	session, err := h.StoryService.Reset(c.Param("id"))
	if err != nil {
		h.Response.AppError(c, err)
		return
	}

	BroadcastSessionUpdate(session.ID, "story:reset", session.View())

	h.Response.Success(c, session.View(), "故事会话已重置")
}

// NarrateStory 朗读当前场景并返回音频
func (h *Handler) NarrateStory(c *gin.Context) {
	var req NarrateRequest
	// 请求体可以为空，为空时用会话默认音色
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.Response.BadRequest(c, "请求参数错误", err.Error())
			return
		}
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 60*time.Second)
	defer cancel()

	start := time.Now()
	speech, err := h.NarratorService.NarrateScene(ctx, c.Param("id"), req.VoiceID)
	if err != nil {
		h.Response.AppError(c, err)
		return
	}

	h.StatsService.RecordEvent(services.StatNarration, 0)
	h.Metrics.RecordMediaRequest("narration", time.Since(start))

	h.Response.AudioResponse(c, speech.Audio, speech.Format)
}

// JudgeStory 对完结的故事执行评审
func (h *Handler) JudgeStory(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 60*time.Second)
	defer cancel()

	result, err := h.JudgeService.JudgeSession(ctx, c.Param("id"))
	if err != nil {
		h.Response.AppError(c, err)
		return
	}

	h.StatsService.RecordEvent(services.StatJudgement, 0)
	BroadcastSessionUpdate(c.Param("id"), "story:judged", result)

	h.Response.Success(c, result, "故事评审完成")
}

// GeneratePoster 为完结的故事生成海报
func (h *Handler) GeneratePoster(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 120*time.Second)
	defer cancel()

	start := time.Now()
	image, err := h.PosterService.GeneratePoster(ctx, c.Param("id"))
	if err != nil {
		h.Response.AppError(c, err)
		return
	}

	h.StatsService.RecordEvent(services.StatPoster, 0)
	h.Metrics.RecordMediaRequest("poster", time.Since(start))
	BroadcastSessionUpdate(c.Param("id"), "story:poster", image)

	h.Response.Success(c, image, "故事海报生成成功")
}

// LearnSomething 从故事中挑选生词并讲解
func (h *Handler) LearnSomething(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 60*time.Second)
	defer cancel()

	result, err := h.LearnService.LearnFromSession(ctx, c.Param("id"))
	if err != nil {
		h.Response.AppError(c, err)
		return
	}

	h.StatsService.RecordEvent(services.StatLearnSession, estimateTokens(result.Note.Fact))

	data := gin.H{
		"term":       result.Note.Term,
		"fact":       result.Note.Fact,
		"created_at": result.Note.CreatedAt,
		"has_audio":  result.Audio != nil,
	}
	h.Response.Success(c, data, "学习环节完成")
}

// LearnAudio 获取学习环节的朗读音频
func (h *Handler) LearnAudio(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 60*time.Second)
	defer cancel()

	result, err := h.LearnService.LearnFromSession(ctx, c.Param("id"))
	if err != nil {
		h.Response.AppError(c, err)
		return
	}

	if result.Audio == nil {
		h.Response.Error(c, http.StatusServiceUnavailable, ErrorLLMServiceUnavailable,
			"学习音频暂时不可用", "语音合成失败，文字讲解仍然可用")
		return
	}

	h.Response.AudioResponse(c, result.Audio.Audio, result.Audio.Format)
}

// EnrichIdea 润色故事创意（不创建会话）
func (h *Handler) EnrichIdea(c *gin.Context) {
	var req EnrichRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "请求参数错误", err.Error())
		return
	}

	enriched, err := h.EnrichService.EnrichIdea(c.Request.Context(), req.Idea)
	if err != nil {
		h.Response.AppError(c, err)
		return
	}

	h.Response.Success(c, gin.H{"idea": req.Idea, "enriched": enriched}, "创意润色成功")
}

// GetCategories 获取预置故事类别
func (h *Handler) GetCategories(c *gin.Context) {
	h.Response.Success(c, models.StoryCategories, "故事类别获取成功")
}

// GetVoices 获取预置朗读角色
func (h *Handler) GetVoices(c *gin.Context) {
	h.Response.Success(c, models.VoiceProfiles, "朗读角色获取成功")
}

// ========================================
// WebSocket 处理器入口
// ========================================

// StoryWebSocket 处理故事会话 WebSocket 连接
func (h *Handler) StoryWebSocket(c *gin.Context) {
	h.WebSocketHandler.StoryWebSocket(c)
}

// GetWebSocketStatus 获取 WebSocket 连接状态（调试用）
func (h *Handler) GetWebSocketStatus(c *gin.Context) {
	status := wsManager.GetStatus()
	status["ping_timeout_seconds"] = int(wsManager.pingTimeout.Seconds())
	status["timestamp"] = time.Now().Format(time.RFC3339)

	c.JSON(http.StatusOK, status)
}

// CleanupWebSocketConnections 手动触发连接清理
func (h *Handler) CleanupWebSocketConnections(c *gin.Context) {
	wsManager.cleanupExpiredConnections()
	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"message":   "连接清理已执行",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// ========================================
// 设置与LLM配置处理器
// ========================================

// GetSettings 获取当前设置，作为前端 API.getSettings() 的对应接口
func (h *Handler) GetSettings(c *gin.Context) {
	cfg := config.GetCurrentConfig()

	llmConfig := make(map[string]interface{})
	if cfg.LLMConfig != nil {
		llmConfig["model"] = cfg.LLMConfig["default_model"]
		llmConfig["has_api_key"] = cfg.LLMConfig["api_key"] != ""
	}

	data := map[string]interface{}{
		"llm_provider":  cfg.LLMProvider,
		"debug_mode":    cfg.DebugMode,
		"port":          cfg.Port,
		"llm_config":    llmConfig,
		"tts_model":     cfg.TTSModel,
		"default_voice": cfg.DefaultVoice,
		"image_model":   cfg.ImageModel,
		"image_size":    cfg.ImageSize,
	}

	h.Response.Success(c, data, "设置获取成功")
}

// SaveSettings 保存设置
func (h *Handler) SaveSettings(c *gin.Context) {
	var request struct {
		LLMProvider string            `json:"llm_provider"`
		LLMConfig   map[string]string `json:"llm_config"`
		DebugMode   bool              `json:"debug_mode"`
	}

	if err := c.ShouldBindJSON(&request); err != nil {
		h.Response.BadRequest(c, "无效的请求数据", err.Error())
		return
	}

	// 保存LLM配置
	if request.LLMProvider != "" && request.LLMConfig != nil {
		err := h.ConfigService.UpdateLLMConfig(request.LLMProvider, request.LLMConfig, "web_ui")
		if err != nil {
			h.Response.InternalError(c, "保存LLM配置失败", err.Error())
			return
		}

		// 同步更新运行中的 LLM 服务
		container := di.GetContainer()
		if llmService, ok := container.Get("llm").(*services.LLMService); ok {
			if err := llmService.UpdateProvider(request.LLMProvider, request.LLMConfig); err != nil {
				h.Response.Error(c, http.StatusPartialContent, "CONFIG_UPDATED_LLM_FAILED",
					"配置已保存，但LLM服务更新失败", err.Error())
				return
			}
		}
	}

	h.Response.Success(c, nil, "设置保存成功")
}

// TestConnection 测试LLM端点连通性
func (h *Handler) TestConnection(c *gin.Context) {
	container := di.GetContainer()
	llmService, ok := container.Get("llm").(*services.LLMService)
	if !ok {
		h.Response.InternalError(c, "无法获取LLM服务实例")
		return
	}

	if !llmService.IsReady() {
		h.Response.Error(c, http.StatusServiceUnavailable, ErrorConnectionFailed,
			"LLM服务未就绪", llmService.GetReadyState())
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	// 简单的连接测试
	request := services.ChatCompletionRequest{
		Messages: []services.ChatCompletionMessage{
			{
				Role:    services.RoleSystem,
				Content: "You are a helpful assistant.",
			},
			{
				Role:    services.RoleUser,
				Content: "Hello",
			},
		},
		Model:       "", // 使用默认模型
		Temperature: 0.1,
		MaxTokens:   5,
	}

	if _, err := llmService.CreateChatCompletion(ctx, request); err != nil {
		h.Response.Error(c, http.StatusServiceUnavailable, "CONNECTION_TEST_FAILED",
			"连接测试失败", err.Error())
		return
	}

	data := map[string]interface{}{
		"provider": llmService.GetProviderName(),
		"status":   "connected",
		"test":     "passed",
	}
	h.Response.Success(c, data, "连接测试成功")
}

// GetLLMStatus 获取LLM服务状态
func (h *Handler) GetLLMStatus(c *gin.Context) {
	container := di.GetContainer()
	llmService, ok := container.Get("llm").(*services.LLMService)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "无法获取LLM服务实例",
		})
		return
	}

	cfg := config.GetCurrentConfig()

	status := map[string]interface{}{
		"ready":    llmService.IsReady(),
		"status":   llmService.GetReadyState(),
		"provider": llmService.GetProviderName(),
		"config": map[string]interface{}{
			"provider":    cfg.LLMProvider,
			"has_api_key": cfg.LLMConfig != nil && cfg.LLMConfig["api_key"] != "",
		},
	}

	// 添加模型信息
	if cfg.LLMConfig != nil {
		if model, ok := cfg.LLMConfig["default_model"]; ok {
			status["config"].(map[string]interface{})["model"] = model
		}
	}

	c.JSON(http.StatusOK, status)
}

// UpdateLLMConfig 更新LLM配置
func (h *Handler) UpdateLLMConfig(c *gin.Context) {
	var req struct {
		Provider string            `json:"provider" binding:"required"`
		Config   map[string]string `json:"config" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "无效的请求格式", err.Error())
		return
	}

	if err := h.ConfigService.UpdateLLMConfig(req.Provider, req.Config, "web_api"); err != nil {
		h.Response.Error(c, http.StatusBadRequest, ErrorLLMConfigInvalid,
			"配置验证失败", err.Error())
		return
	}

	// 更新 LLMService
	container := di.GetContainer()
	if llmService, ok := container.Get("llm").(*services.LLMService); ok {
		if err := llmService.UpdateProvider(req.Provider, req.Config); err != nil {
			// 配置已保存，但 LLM 服务更新失败
			h.Response.Error(c, http.StatusPartialContent, "CONFIG_UPDATED_LLM_FAILED",
				"配置已保存，但LLM服务更新失败", err.Error())
			return
		}
	} else {
		h.Response.Error(c, http.StatusPartialContent, "CONFIG_UPDATED_LLM_UNAVAILABLE",
			"配置已保存，但无法获取LLM服务", "请重启应用以使配置生效")
		return
	}

	h.Response.Success(c, nil, "LLM配置更新成功")
}

// GetLLMModels 获取指定LLM提供商支持的模型列表
func (h *Handler) GetLLMModels(c *gin.Context) {
	provider := c.Query("provider")
	if provider == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "缺少提供商参数"})
		return
	}

	modelList := llm.GetSupportedModelsForProvider(provider)

	// 检查提供商是否存在
	if len(modelList) == 0 {
		availableProviders := llm.ListProviders()
		providerExists := false
		for _, p := range availableProviders {
			if p == provider {
				providerExists = true
				break
			}
		}

		if !providerExists {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "不支持的LLM提供商: " + provider,
			})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"provider": provider,
		"models":   modelList,
		"count":    len(modelList),
	})
}

// GetConfigHealth 获取配置健康状态
func (h *Handler) GetConfigHealth(c *gin.Context) {
	cfg := h.ConfigService.GetCurrentConfig()

	issues := make([]string, 0)
	if cfg.LLMProvider == "" {
		issues = append(issues, ErrorLLMProviderMissing)
	}
	if cfg.LLMConfig == nil || cfg.LLMConfig["api_key"] == "" {
		issues = append(issues, ErrorAPIKeyMissing)
	}

	health := map[string]interface{}{
		"status":        "healthy",
		"provider":      cfg.LLMProvider,
		"issues":        issues,
		"session_count": h.SessionService.Count(),
	}

	if len(issues) > 0 {
		health["status"] = "unhealthy"
		h.Response.Error(c, http.StatusServiceUnavailable, ErrorConfigUnhealthy,
			"配置健康状态异常", "请检查配置详情")
		return
	}

	h.Response.Success(c, health, "配置健康状态正常")
}

// ========================================
// 统计处理器
// ========================================

// GetStats 获取用量统计
func (h *Handler) GetStats(c *gin.Context) {
	stats := h.StatsService.GetUsageStats()

	container := di.GetContainer()
	data := gin.H{
		"today_requests": stats.TodayRequests,
		"monthly_tokens": stats.MonthlyTokens,
		"event_counts":   stats.EventCounts,
		"session_count":  h.SessionService.Count(),
	}

	if llmService, ok := container.Get("llm").(*services.LLMService); ok {
		hits, misses := llmService.CacheStats()
		data["cache_hits"] = hits
		data["cache_misses"] = misses
	}

	data["metrics"] = utils.GetMetricsCollector().GetMetrics()

	h.Response.Success(c, data, "统计获取成功")
}
