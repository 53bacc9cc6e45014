// internal/storage/session_store.go
package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/Corphon/DreamTaleMCP/internal/models"
)

// SessionStore 把故事会话持久化为JSON文件
// 每个会话一个文件，文件级别锁保证并发安全
type SessionStore struct {
	baseDir string

	fileLocks sync.Map // path -> *sync.RWMutex
}

// NewSessionStore 创建会话存储
func NewSessionStore(baseDir string) (*SessionStore, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("创建存储目录失败: %w", err)
	}

	return &SessionStore{
		baseDir: baseDir,
	}, nil
}

// 获取文件锁
func (st *SessionStore) getFileLock(fullPath string) *sync.RWMutex {
	value, _ := st.fileLocks.LoadOrStore(fullPath, &sync.RWMutex{})
	return value.(*sync.RWMutex)
}

func (st *SessionStore) sessionPath(id string) string {
	return filepath.Join(st.baseDir, id+".json")
}

// Save 保存会话，写入通过临时文件保证原子性
func (st *SessionStore) Save(session *models.StorySession) error {
	if session == nil || session.ID == "" {
		return fmt.Errorf("会话为空或缺少ID")
	}

	content, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化会话失败: %w", err)
	}

	fullPath := st.sessionPath(session.ID)

	lock := st.getFileLock(fullPath)
	lock.Lock()
	defer lock.Unlock()

	tempPath := fullPath + ".tmp"
	if err := os.WriteFile(tempPath, content, 0644); err != nil {
		return fmt.Errorf("保存临时文件失败: %w", err)
	}

	if err := os.Rename(tempPath, fullPath); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("保存会话文件失败: %w", err)
	}

	return nil
}

// Load 按ID读取会话
func (st *SessionStore) Load(id string) (*models.StorySession, error) {
	fullPath := st.sessionPath(id)

	lock := st.getFileLock(fullPath)
	lock.RLock()
	defer lock.RUnlock()

	content, err := os.ReadFile(fullPath)
	if err != nil {
		return nil, fmt.Errorf("读取会话文件失败: %w", err)
	}

	var session models.StorySession
	if err := json.Unmarshal(content, &session); err != nil {
		return nil, fmt.Errorf("解析会话文件失败: %w", err)
	}

	return &session, nil
}

// LoadAll 读取全部已保存的会话，损坏的文件跳过不报错
func (st *SessionStore) LoadAll() ([]*models.StorySession, error) {
	entries, err := os.ReadDir(st.baseDir)
	if err != nil {
		return nil, fmt.Errorf("读取存储目录失败: %w", err)
	}

	sessions := make([]*models.StorySession, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		id := strings.TrimSuffix(entry.Name(), ".json")
		session, err := st.Load(id)
		if err != nil {
			continue
		}
		sessions = append(sessions, session)
	}

	return sessions, nil
}

// Delete 删除会话文件，文件不存在时不报错
func (st *SessionStore) Delete(id string) error {
	fullPath := st.sessionPath(id)

	lock := st.getFileLock(fullPath)
	lock.Lock()
	defer lock.Unlock()

	if err := os.Remove(fullPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("删除会话文件失败: %w", err)
	}

	st.fileLocks.Delete(fullPath)
	return nil
}

// Exists 检查会话文件是否存在
func (st *SessionStore) Exists(id string) bool {
	_, err := os.Stat(st.sessionPath(id))
	return err == nil
}
