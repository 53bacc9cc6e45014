// cmd/demo/main.go
package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Corphon/DreamTaleMCP/internal/app"
	"github.com/Corphon/DreamTaleMCP/internal/config"
	"github.com/Corphon/DreamTaleMCP/internal/di"
	"github.com/Corphon/DreamTaleMCP/internal/models"
	"github.com/Corphon/DreamTaleMCP/internal/services"
	"github.com/Corphon/DreamTaleMCP/internal/utils"
)

var reader = bufio.NewReader(os.Stdin)

// 当前操作的故事会话ID
var currentSessionID string

func main() {
	fmt.Println("🚀 DreamTaleMCP Console App")
	fmt.Println("=================================")

	// 初始化配置
	baseConfig, err := config.Load()
	if err != nil {
		log.Printf("❌ 加载基础配置失败: %v", err)
		return
	}

	// 初始化日志系统
	os.MkdirAll(baseConfig.LogDir, 0755)
	logFile := filepath.Join(baseConfig.LogDir, fmt.Sprintf("console_%s.log", time.Now().Format("2006-01-02")))
	if err := utils.InitLogger(logFile); err != nil {
		log.Printf("⚠️ 无法初始化结构化日志: %v", err)
		log.Println("继续运行...")
	} else {
		utils.GetLogger().Info("Console app starting", nil)
	}

	// 初始化配置系统和服务
	if err := config.InitConfig(baseConfig.DataDir); err != nil {
		log.Printf("❌ 初始化配置系统失败: %v", err)
		return
	}
	if err := app.InitServices(); err != nil {
		log.Printf("❌ 初始化服务失败: %v", err)
		return
	}

	for {
		showMenu()
		choice := getUserInput("请输入选项: ")

		switch choice {
		case "1", "start":
			startStory()
		case "2", "show":
			showStory()
		case "3", "choose":
			makeChoice()
		case "4", "revise":
			reviseScene()
		case "5", "judge":
			judgeStory()
		case "6", "learn":
			learnSomething()
		case "7", "narrate":
			narrateStory()
		case "8", "poster":
			generatePoster()
		case "9", "stats":
			showStats()
		case "0", "exit", "quit":
			fmt.Println("👋 晚安，下次再讲故事！")
			return
		default:
			fmt.Println("⚠️ 未知选项，请重新输入")
		}
	}
}

func showMenu() {
	fmt.Println()
	fmt.Println("========== DreamTale 菜单 ==========")
	fmt.Println("1. 开始新故事")
	fmt.Println("2. 查看当前故事")
	fmt.Println("3. 做出选择")
	fmt.Println("4. 修订当前场景")
	fmt.Println("5. 故事评审")
	fmt.Println("6. 学点新东西")
	fmt.Println("7. 朗读当前场景")
	fmt.Println("8. 生成故事海报")
	fmt.Println("9. 查看用量统计")
	fmt.Println("0. 退出")
	fmt.Println("====================================")
}

func getUserInput(prompt string) string {
	fmt.Print(prompt)
	input, _ := reader.ReadString('\n')
	return strings.TrimSpace(input)
}

func storyService() *services.StoryService {
	svc, _ := di.GetContainer().Get("story").(*services.StoryService)
	return svc
}

func sessionService() *services.SessionService {
	svc, _ := di.GetContainer().Get("session").(*services.SessionService)
	return svc
}

func startStory() {
	fmt.Println()
	fmt.Println("📖 预置故事类别:")
	for i, category := range models.StoryCategories {
		fmt.Printf("  %d. %s\n", i+1, category)
	}

	idea := getUserInput("请输入故事创意: ")
	if idea == "" {
		fmt.Println("⚠️ 创意不能为空")
		return
	}
	category := getUserInput("请输入故事类别(可留空): ")

	fmt.Println("🎭 可选朗读角色:")
	for _, v := range models.VoiceProfiles {
		fmt.Printf("  %s (%s)\n", v.ID, v.Label)
	}
	voiceID := getUserInput("请选择朗读角色(可留空): ")

	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	fmt.Println("✨ 正在生成开场场景...")
	session, err := storyService().StartStory(ctx, idea, category, voiceID)
	if err != nil {
		fmt.Printf("❌ 开始故事失败: %v\n", err)
		return
	}

	currentSessionID = session.ID
	printSession(session)
}

func showStory() {
	session, ok := requireSession()
	if !ok {
		return
	}
	printSession(session)
}

func makeChoice() {
	if _, ok := requireSession(); !ok {
		return
	}

	choice := getUserInput("请输入选项序号(1/2)或完整选项文本: ")
	if choice == "" {
		fmt.Println("⚠️ 选择不能为空")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	fmt.Println("✨ 正在生成下一幕...")
	session, err := storyService().Choose(ctx, currentSessionID, choice)
	if err != nil {
		fmt.Printf("❌ 推进故事失败: %v\n", err)
		return
	}

	printSession(session)
}

func reviseScene() {
	if _, ok := requireSession(); !ok {
		return
	}

	feedback := getUserInput("请输入修订意见: ")
	if feedback == "" {
		fmt.Println("⚠️ 修订意见不能为空")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	fmt.Println("✨ 正在重写当前场景...")
	session, err := storyService().Revise(ctx, currentSessionID, feedback)
	if err != nil {
		fmt.Printf("❌ 修订场景失败: %v\n", err)
		return
	}

	printSession(session)
}

func judgeStory() {
	if _, ok := requireSession(); !ok {
		return
	}

	judgeSvc, _ := di.GetContainer().Get("judge").(*services.JudgeService)
	if judgeSvc == nil {
		fmt.Println("❌ 评审服务不可用")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	fmt.Println("⚖️ 正在评审故事...")
	result, err := judgeSvc.JudgeSession(ctx, currentSessionID)
	if err != nil {
		fmt.Printf("❌ 评审失败: %v\n", err)
		return
	}

	fmt.Println()
	fmt.Println("========== 评审结果 ==========")
	printMetric("适龄性", result.AgeAppropriateness)
	printMetric("易读性", result.EaseOfReading)
	printMetric("寓意清晰度", result.ClarityOfMoral)
	fmt.Printf("  总分: %.1f/10\n", result.Overall)
	if result.Verdict != "" {
		fmt.Printf("  结语: %s\n", result.Verdict)
	}
}

func printMetric(label string, metric models.JudgeMetric) {
	fmt.Printf("  %s: %d/10\n", label, metric.Score)
	if metric.Explanation != "" {
		fmt.Printf("    %s\n", metric.Explanation)
	}
}

func learnSomething() {
	if _, ok := requireSession(); !ok {
		return
	}

	learnSvc, _ := di.GetContainer().Get("learn").(*services.LearnService)
	if learnSvc == nil {
		fmt.Println("❌ 学习服务不可用")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	fmt.Println("🔍 正在挑选今晚的生词...")
	result, err := learnSvc.LearnFromSession(ctx, currentSessionID)
	if err != nil {
		fmt.Printf("❌ 学习环节失败: %v\n", err)
		return
	}

	fmt.Printf("📚 今晚的词: %s\n", result.Note.Term)
	fmt.Println(result.Note.Fact)

	if result.Audio != nil {
		if path, err := saveAudio(result.Audio.Audio, "learn"); err == nil {
			fmt.Printf("🔊 讲解音频已保存: %s\n", path)
		}
	}
}

func narrateStory() {
	session, ok := requireSession()
	if !ok {
		return
	}

	narratorSvc, _ := di.GetContainer().Get("narrator").(*services.NarratorService)
	if narratorSvc == nil {
		fmt.Println("❌ 朗读服务不可用")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	fmt.Println("🎙️ 正在合成朗读音频...")
	speech, err := narratorSvc.NarrateScene(ctx, session.ID, "")
	if err != nil {
		fmt.Printf("❌ 朗读失败: %v\n", err)
		return
	}

	path, err := saveAudio(speech.Audio, "scene")
	if err != nil {
		fmt.Printf("❌ 保存音频失败: %v\n", err)
		return
	}
	fmt.Printf("🔊 朗读音频已保存: %s (音色: %s)\n", path, speech.Voice)
}

func generatePoster() {
	if _, ok := requireSession(); !ok {
		return
	}

	posterSvc, _ := di.GetContainer().Get("poster").(*services.PosterService)
	if posterSvc == nil {
		fmt.Println("❌ 海报服务不可用")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()

	fmt.Println("🎨 正在生成故事海报...")
	image, err := posterSvc.GeneratePoster(ctx, currentSessionID)
	if err != nil {
		fmt.Printf("❌ 生成海报失败: %v\n", err)
		return
	}

	fmt.Printf("🖼️ 海报已生成: %s\n", image.URL)
}

func showStats() {
	statsSvc, _ := di.GetContainer().Get("stats").(*services.StatsService)
	if statsSvc == nil {
		fmt.Println("❌ 统计服务不可用")
		return
	}

	stats := statsSvc.GetUsageStats()
	fmt.Println()
	fmt.Println("========== 用量统计 ==========")
	fmt.Printf("  今日请求: %d\n", stats.TodayRequests)
	fmt.Printf("  本月Token: %d\n", stats.MonthlyTokens)
	for event, count := range stats.EventCounts {
		fmt.Printf("  %s: %d\n", event, count)
	}
}

// requireSession 获取当前会话，没有时给出提示
func requireSession() (*models.StorySession, bool) {
	if currentSessionID == "" {
		fmt.Println("⚠️ 还没有进行中的故事，请先开始新故事")
		return nil, false
	}

	session, err := sessionService().GetSession(currentSessionID)
	if err != nil {
		fmt.Printf("❌ 获取会话失败: %v\n", err)
		return nil, false
	}
	return session, true
}

func printSession(session *models.StorySession) {
	view := session.View()

	fmt.Println()
	fmt.Printf("========== 故事 (%s) 第%d幕 ==========\n", view.State, view.SceneNum)
	fmt.Println(view.SceneText)

	if len(view.Options) > 0 {
		fmt.Println()
		fmt.Println("接下来会发生什么？")
		for _, option := range view.Options {
			fmt.Println("  " + option)
		}
	}

	if view.State == models.StateComplete {
		fmt.Println()
		fmt.Println("🌟 The End! 🌟")
	}
}

func saveAudio(audio []byte, kind string) (string, error) {
	cfg := config.GetCurrentConfig()
	dir := filepath.Join(cfg.DataDir, "audio")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}

	path := filepath.Join(dir, fmt.Sprintf("%s_%s.mp3", kind, time.Now().Format("150405")))
	if err := os.WriteFile(path, audio, 0644); err != nil {
		return "", err
	}
	return path, nil
}
