// internal/api/router.go
package api

import (
	"fmt"
	"net/http"

	"github.com/Corphon/DreamTaleMCP/internal/config"
	"github.com/Corphon/DreamTaleMCP/internal/di"
	"github.com/Corphon/DreamTaleMCP/internal/services"
	"github.com/gin-gonic/gin"
)

// SetupRouter 配置HTTP路由
func SetupRouter() (*gin.Engine, error) {
	// 获取配置
	cfg := config.GetCurrentConfig()

	// 获取依赖注入容器
	container := di.GetContainer()

	// 只从容器获取服务，不再创建新实例
	storyService, ok := container.Get("story").(*services.StoryService)
	if !ok {
		return nil, fmt.Errorf("故事服务未正确初始化")
	}

	sessionService, ok := container.Get("session").(*services.SessionService)
	if !ok {
		return nil, fmt.Errorf("会话服务未正确初始化")
	}

	enrichService, ok := container.Get("enrich").(*services.EnrichService)
	if !ok {
		return nil, fmt.Errorf("创意润色服务未正确初始化")
	}

	narratorService, ok := container.Get("narrator").(*services.NarratorService)
	if !ok {
		return nil, fmt.Errorf("朗读服务未正确初始化")
	}

	judgeService, ok := container.Get("judge").(*services.JudgeService)
	if !ok {
		return nil, fmt.Errorf("评审服务未正确初始化")
	}

	learnService, ok := container.Get("learn").(*services.LearnService)
	if !ok {
		return nil, fmt.Errorf("学习服务未正确初始化")
	}

	posterService, ok := container.Get("poster").(*services.PosterService)
	if !ok {
		return nil, fmt.Errorf("海报服务未正确初始化")
	}

	configService, ok := container.Get("config").(*services.ConfigService)
	if !ok {
		return nil, fmt.Errorf("配置服务未正确初始化")
	}

	statsService, ok := container.Get("stats").(*services.StatsService)
	if !ok {
		return nil, fmt.Errorf("统计服务未正确初始化")
	}

	// 创建API处理器 - 只传递从容器获取的服务
	handler := NewHandler(
		storyService,
		sessionService,
		enrichService,
		narratorService,
		judgeService,
		learnService,
		posterService,
		configService,
		statsService,
	)

	// 创建路由
	r := gin.Default()

	// 启用CORS与请求指标
	r.Use(corsMiddleware())
	r.Use(MetricsMiddleware())

	// HTTPS重定向（生产环境）
	if !cfg.DebugMode {
		r.Use(func(c *gin.Context) {
			if c.Request.Header.Get("X-Forwarded-Proto") != "https" {
				c.Redirect(http.StatusPermanentRedirect,
					"https://"+c.Request.Host+c.Request.URL.Path)
				return
			}
			c.Next()
		})
	}

	// 静态文件服务
	r.Static("/static", cfg.StaticDir)

	// WebSocket 支持
	r.GET("/ws/stories/:id", handler.StoryWebSocket)

	// ===============================
	// API路由组
	// ===============================
	api := r.Group("/api")
	api.Use(DefaultRateLimit())
	{
		// ===============================
		// 故事会话相关路由
		// ===============================
		storiesGroup := api.Group("/stories")
		{
			storiesGroup.POST("", StoryRateLimit(), handler.CreateStory)
			storiesGroup.POST("/enrich", StoryRateLimit(), handler.EnrichIdea)
			storiesGroup.GET("/:id", handler.GetStory)
			storiesGroup.DELETE("/:id", handler.DeleteStory)
			storiesGroup.POST("/:id/choice", StoryRateLimit(), handler.MakeChoice)
			storiesGroup.POST("/:id/feedback", StoryRateLimit(), handler.ReviseScene)
			storiesGroup.POST("/:id/reset", handler.ResetStory)
			storiesGroup.POST("/:id/narrate", MediaRateLimit(), handler.NarrateStory)
			storiesGroup.POST("/:id/judge", MediaRateLimit(), handler.JudgeStory)
			storiesGroup.POST("/:id/poster", MediaRateLimit(), handler.GeneratePoster)
			storiesGroup.POST("/:id/learn", MediaRateLimit(), handler.LearnSomething)
			storiesGroup.POST("/:id/learn/audio", MediaRateLimit(), handler.LearnAudio)
		}

		// 预置素材
		api.GET("/categories", handler.GetCategories)
		api.GET("/voices", handler.GetVoices)

		// ===============================
		// 设置相关路由
		// ===============================
		settingsGroup := api.Group("/settings")
		{
			settingsGroup.GET("", handler.GetSettings)
			settingsGroup.POST("", handler.SaveSettings)
			settingsGroup.POST("/test-connection", handler.TestConnection)
		}

		// ===============================
		// LLM配置相关路由
		// ===============================
		llmGroup := api.Group("/llm")
		{
			llmGroup.GET("/status", handler.GetLLMStatus)
			llmGroup.GET("/models", handler.GetLLMModels)
			llmGroup.PUT("/config", handler.UpdateLLMConfig)
		}

		// ===============================
		// 配置健康与统计
		// ===============================
		api.GET("/config/health", handler.GetConfigHealth)
		api.GET("/stats", handler.GetStats)

		// WebSocket 管理路由
		wsGroup := api.Group("/ws")
		{
			wsGroup.GET("/status", handler.GetWebSocketStatus)
			wsGroup.POST("/cleanup", handler.CleanupWebSocketConnections)
		}
	}

	return r, nil
}

// corsMiddleware 实现跨域资源共享
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
