// internal/app/app.go
package app

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/Corphon/DreamTaleMCP/internal/api"
	"github.com/Corphon/DreamTaleMCP/internal/config"
	"github.com/Corphon/DreamTaleMCP/internal/di"
	"github.com/Corphon/DreamTaleMCP/internal/imagen"
	_ "github.com/Corphon/DreamTaleMCP/internal/llm/providers/openai"
	_ "github.com/Corphon/DreamTaleMCP/internal/llm/providers/openrouter"
	"github.com/Corphon/DreamTaleMCP/internal/services"
	"github.com/Corphon/DreamTaleMCP/internal/storage"
	"github.com/Corphon/DreamTaleMCP/internal/tts"
	"github.com/Corphon/DreamTaleMCP/internal/utils"
)

// Server 抽象HTTP服务器，便于测试时替换
type Server interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

// App 表示应用程序实例
type App struct {
	config   *config.AppConfig
	router   http.Handler
	server   Server
	stopChan chan os.Signal
}

// 全局应用实例
var instance *App

// GetApp 获取应用单例
func GetApp() *App {
	if instance == nil {
		instance = &App{
			stopChan: make(chan os.Signal, 1),
		}
	}
	return instance
}

// Initialize 初始化应用：配置、日志、服务和路由
func Initialize(dataDir string) error {
	// 加载配置
	if err := config.InitConfig(dataDir); err != nil {
		return fmt.Errorf("初始化配置失败: %w", err)
	}

	cfg := config.GetCurrentConfig()
	GetApp().config = cfg

	// 初始化日志系统
	if err := initLogger(cfg.LogDir); err != nil {
		return fmt.Errorf("初始化日志系统失败: %w", err)
	}

	// 初始化服务
	if err := InitServices(); err != nil {
		return fmt.Errorf("初始化服务失败: %w", err)
	}

	// 设置路由
	router, err := api.SetupRouter()
	if err != nil {
		return fmt.Errorf("设置路由失败: %w", err)
	}
	GetApp().router = router

	return nil
}

// initLogger 初始化日志系统，日志文件按日期命名
func initLogger(logDir string) error {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return fmt.Errorf("创建日志目录失败: %w", err)
	}

	logFile := filepath.Join(logDir, fmt.Sprintf("dreamtale_%s.log", time.Now().Format("2006-01-02")))
	return utils.InitLogger(logFile)
}

// InitServices 按依赖顺序初始化所有服务并注册到容器
func InitServices() error {
	container := di.GetContainer()
	cfg := config.GetCurrentConfig()
	if cfg == nil {
		return fmt.Errorf("配置尚未初始化")
	}

	logger := utils.GetLogger()

	// 配置服务
	configService := services.NewConfigService()
	container.Register("config", configService)

	// 统计服务
	statsService := services.NewStatsService(cfg.DataDir)
	container.Register("stats", statsService)

	// 共享响应缓存：同一内容键的LLM、语音和插画结果只计算一次
	responseCache := storage.NewResponseCache(30*time.Minute, 1000)
	container.Register("cache", responseCache)

	// LLM服务，未配置API密钥时以待命模式启动
	llmService, err := services.NewLLMService(responseCache)
	if err != nil {
		logger.Warnf("LLM服务初始化失败，使用待命服务: %v", err)
		llmService = services.NewEmptyLLMService()
	}
	container.Register("llm", llmService)

	// 会话与故事服务，会话落盘到data/sessions，重启后可恢复
	sessionStore, err := storage.NewSessionStore(filepath.Join(cfg.DataDir, "sessions"))
	var sessionService *services.SessionService
	if err != nil {
		logger.Warnf("会话存储初始化失败，会话仅保存在内存中: %v", err)
		sessionService = services.NewSessionService()
	} else {
		sessionService = services.NewPersistentSessionService(sessionStore)
	}
	container.Register("session", sessionService)

	storyService := services.NewStoryService(llmService, sessionService)
	container.Register("story", storyService)

	enrichService := services.NewEnrichService(llmService)
	container.Register("enrich", enrichService)

	// 语音合成
	apiKey := resolveAPIKey(cfg)
	synth, err := tts.GetSynthesizer("openai", map[string]string{
		"api_key":   apiKey,
		"tts_model": cfg.TTSModel,
	})
	if err != nil {
		return fmt.Errorf("初始化语音合成器失败: %w", err)
	}
	narratorService := services.NewNarratorService(synth, sessionService, responseCache)
	container.Register("narrator", narratorService)

	// 插画生成
	illustrator, err := imagen.GetIllustrator("openai", map[string]string{
		"api_key":     apiKey,
		"image_model": cfg.ImageModel,
		"image_size":  cfg.ImageSize,
	})
	if err != nil {
		return fmt.Errorf("初始化插画生成器失败: %w", err)
	}
	posterService := services.NewPosterService(illustrator, sessionService, responseCache)
	container.Register("poster", posterService)

	// 评审与学习
	judgeService := services.NewJudgeService(llmService, sessionService, responseCache)
	container.Register("judge", judgeService)

	learnService := services.NewLearnService(llmService, sessionService, narratorService, responseCache)
	container.Register("learn", learnService)

	logger.Infof("服务初始化完成，共注册 %d 个服务", len(container.GetNames()))
	return nil
}

// resolveAPIKey 取LLM配置中的API密钥，回退到环境配置
func resolveAPIKey(cfg *config.AppConfig) string {
	if cfg.LLMConfig != nil && cfg.LLMConfig["api_key"] != "" {
		return cfg.LLMConfig["api_key"]
	}
	return cfg.OpenAIAPIKey
}

// Run 启动HTTP服务器并等待停止信号
func Run() error {
	app := GetApp()
	if app.config == nil {
		return fmt.Errorf("应用尚未初始化")
	}

	if app.server == nil {
		app.server = &http.Server{
			Addr:    ":" + app.config.Port,
			Handler: app.router,
		}
	}

	// 周期性输出指标摘要，服务器关闭时停止
	metricsCtx, stopMetrics := context.WithCancel(context.Background())
	defer stopMetrics()
	utils.NewAPIMetrics().StartMetricsCollection(metricsCtx)

	go func() {
		if err := app.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("❌ 启动服务器失败: %v", err)
		}
	}()

	log.Printf("🌐 服务器启动在端口 %s", app.config.Port)

	// 等待中断信号以进行优雅关闭
	signal.Notify(app.stopChan, syscall.SIGINT, syscall.SIGTERM)
	<-app.stopChan

	log.Println("🛑 正在关闭服务器...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("服务器关闭失败: %w", err)
	}

	app.cleanup()

	log.Println("✅ 服务器优雅关闭完成")
	return nil
}

// cleanup 释放服务持有的资源
func (a *App) cleanup() {
	container := di.GetContainer()

	if statsService, ok := container.Get("stats").(*services.StatsService); ok && statsService != nil {
		if err := statsService.Close(); err != nil {
			log.Printf("⚠️ 关闭统计服务失败: %v", err)
		}
	}

	if cache, ok := container.Get("cache").(*storage.ResponseCache); ok && cache != nil {
		cache.Stop()
	}
}

// GetConfig 获取应用配置
func (a *App) GetConfig() *config.AppConfig {
	return a.config
}

// GetDIContainer 获取依赖注入容器
func GetDIContainer() *di.Container {
	return di.GetContainer()
}

// IsDebugMode 检查是否处于调试模式
func IsDebugMode() bool {
	if instance == nil || instance.config == nil {
		return false
	}
	return instance.config.DebugMode
}
