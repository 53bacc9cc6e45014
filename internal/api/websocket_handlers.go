// internal/api/websocket_handlers.go
package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/Corphon/DreamTaleMCP/internal/di"
	"github.com/Corphon/DreamTaleMCP/internal/services"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// WebSocketHandler 处理 WebSocket 相关的 HTTP 请求
type WebSocketHandler struct {
	storyService   *services.StoryService
	sessionService *services.SessionService
}

// NewWebSocketHandler 创建 WebSocket 处理器
func NewWebSocketHandler() *WebSocketHandler {
	container := di.GetContainer()

	return &WebSocketHandler{
		storyService:   container.Get("story").(*services.StoryService),
		sessionService: container.Get("session").(*services.SessionService),
	}
}

// StoryWebSocket 处理故事会话 WebSocket 连接
// 客户端通过该连接实时接收会话更新，也可以直接发送选择消息
func (wh *WebSocketHandler) StoryWebSocket(c *gin.Context) {
	sessionID := c.Param("id")
	if sessionID == "" {
		log.Printf("❌ WebSocket 连接失败：会话ID缺失")
		http.Error(c.Writer, "会话ID缺失", http.StatusBadRequest)
		return
	}

	// 会话必须已存在
	if _, err := wh.sessionService.GetSession(sessionID); err != nil {
		log.Printf("❌ WebSocket 连接失败：会话 %s 不存在", sessionID)
		http.Error(c.Writer, "故事会话不存在", http.StatusNotFound)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("❌ 故事 WebSocket 升级失败: %v", err)
		return
	}
	defer conn.Close()

	// 创建客户端
	client := &WebSocketClient{
		conn:      &WebSocketConnWrapper{conn},
		sessionID: sessionID,
		send:      make(chan []byte, 256),
		closed:    0,
		lastPing:  time.Now(),
		createdAt: time.Now(),
	}

	// 注册客户端
	select {
	case wsManager.register <- client:
		// Success
	default:
		log.Printf("❌ 无法注册 WebSocket 客户端，注册通道已满")
		return
	}

	defer func() {
		// Unregister with timeout to prevent blocking
		done := make(chan bool, 1)
		go func() {
			wsManager.unregister <- client
			done <- true
		}()

		select {
		case <-done:
			// Successfully unregistered
		case <-time.After(5 * time.Second):
			log.Printf("⚠️ WebSocket 客户端注销超时")
		}
	}()

	// 启动读写协程
	go wh.handleWebSocketWrites(client)
	go wh.handleWebSocketReads(client)

	// 发送连接确认消息
	wh.sendWelcomeMessage(client, sessionID)

	// 等待连接关闭
	<-c.Request.Context().Done()
	log.Printf("📱 故事会话 %s 的 WebSocket 连接已关闭", sessionID)
}

// handleWebSocketReads 处理 WebSocket 读取
func (wh *WebSocketHandler) handleWebSocketReads(client *WebSocketClient) {
	defer func() {
		if !client.IsClosed() {
			select {
			case wsManager.unregister <- client:
			case <-time.After(1 * time.Second):
				log.Printf("⚠️ 读取协程关闭时注销超时")
			}
		}
	}()

	// 设置读取超时和ping处理
	client.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	client.conn.SetPongHandler(func(string) error {
		client.UpdatePing()
		client.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		if client.IsClosed() {
			break
		}

		client.conn.SetReadDeadline(time.Now().Add(60 * time.Second))

		_, messageBytes, err := client.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("❌ WebSocket 读取错误: %v", err)
			}
			break
		}

		// 解析JSON消息
		var message map[string]interface{}
		if err := json.Unmarshal(messageBytes, &message); err != nil {
			log.Printf("⚠️ JSON解析失败: %v", err)
			continue
		}

		// 更新活跃时间
		client.UpdatePing()

		// 处理收到的消息
		wh.handleMessage(client, message)
	}
}

// handleWebSocketWrites 处理 WebSocket 写入
func (wh *WebSocketHandler) handleWebSocketWrites(client *WebSocketClient) {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		// 安全关闭发送通道，重复关闭时通过 recover 吸收 panic
		atomic.CompareAndSwapInt32(&client.closed, 0, 1)
		func() {
			defer func() {
				recover()
			}()
			close(client.send)
		}()
		client.conn.Close()
	}()

	for {
		select {
		case message, ok := <-client.send:
			if client.IsClosed() {
				return
			}

			client.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				// Channel closed, send close message
				client.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := client.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Printf("❌ WebSocket 写入失败: %v", err)
				return
			}

		case <-ticker.C:
			if client.IsClosed() {
				return
			}

			client.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Printf("❌ WebSocket ping 失败: %v", err)
				return
			}
			client.UpdatePing()
		}
	}
}

// handleMessage 处理收到的 WebSocket 消息
func (wh *WebSocketHandler) handleMessage(client *WebSocketClient, message map[string]interface{}) {
	msgType, ok := message["type"].(string)
	if !ok {
		log.Printf("⚠️ 收到无效的消息类型")
		return
	}

	switch msgType {
	case "story_choice":
		wh.handleStoryChoice(client, message)
	case "story_feedback":
		wh.handleStoryFeedback(client, message)
	case "ping":
		wh.handlePing(client)
	default:
		log.Printf("⚠️ 未知的消息类型: %s", msgType)
	}
}

// handleStoryChoice 处理故事选择消息
func (wh *WebSocketHandler) handleStoryChoice(client *WebSocketClient, message map[string]interface{}) {
	choice, ok := message["choice"].(string)
	if !ok || choice == "" {
		client.SendError("缺少选择内容")
		return
	}

	if wh.storyService == nil {
		client.SendError("故事服务不可用")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	session, err := wh.storyService.Choose(ctx, client.sessionID, choice)
	if err != nil {
		client.SendError("执行故事选择失败: " + err.Error())
		return
	}

	// 向该会话的所有客户端广播更新后的故事状态
	BroadcastSessionUpdate(session.ID, "story:scene", session.View())
}

// handleStoryFeedback 处理故事修订反馈消息
func (wh *WebSocketHandler) handleStoryFeedback(client *WebSocketClient, message map[string]interface{}) {
	feedback, ok := message["feedback"].(string)
	if !ok || feedback == "" {
		client.SendError("缺少修订意见")
		return
	}

	if wh.storyService == nil {
		client.SendError("故事服务不可用")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	session, err := wh.storyService.Revise(ctx, client.sessionID, feedback)
	if err != nil {
		client.SendError("修订故事失败: " + err.Error())
		return
	}

	BroadcastSessionUpdate(session.ID, "story:revised", session.View())
}

// handlePing 处理ping消息
func (wh *WebSocketHandler) handlePing(client *WebSocketClient) {
	pong := map[string]interface{}{
		"type":      "pong",
		"timestamp": time.Now().Unix(),
	}

	client.SendMessage(pong)
}

// sendWelcomeMessage 发送欢迎消息
func (wh *WebSocketHandler) sendWelcomeMessage(client *WebSocketClient, sessionID string) {
	welcomeMsg := map[string]interface{}{
		"type":       "connected",
		"session_id": sessionID,
		"timestamp":  time.Now().Format(time.RFC3339),
		"message":    "WebSocket 连接已建立",
	}

	client.SendMessage(welcomeMsg)
}

// BroadcastSessionUpdate 向指定故事会话广播事件
// HTTP 处理器在会话状态变更后也通过它通知在线客户端
func BroadcastSessionUpdate(sessionID string, eventType string, data interface{}) {
	wsManager.BroadcastToSession(sessionID, map[string]interface{}{
		"type":       eventType,
		"session_id": sessionID,
		"data":       data,
		"timestamp":  time.Now().Format(time.RFC3339),
	})
}
