// internal/storage/response_cache.go
package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode"
)

// ResponseCache 以内容为键缓存昂贵的生成结果
// 相同的输入文本总是命中同一个缓存条目，与会话无关
type ResponseCache struct {
	mu       sync.RWMutex
	entries  map[string]*cacheEntry
	inflight map[string]*inflightCall

	ttl        time.Duration
	maxEntries int

	hits   int64
	misses int64

	stopCh   chan struct{}
	stopOnce sync.Once
}

type cacheEntry struct {
	value     interface{}
	createdAt time.Time
}

// inflightCall 标记一个正在计算中的键
// 后到的调用者等待first-caller完成，避免对同一内容重复请求
type inflightCall struct {
	done  chan struct{}
	value interface{}
	err   error
}

// NewResponseCache 创建响应缓存
// ttl<=0表示条目永不过期，maxEntries<=0表示不限制条目数
func NewResponseCache(ttl time.Duration, maxEntries int) *ResponseCache {
	c := &ResponseCache{
		entries:    make(map[string]*cacheEntry),
		inflight:   make(map[string]*inflightCall),
		ttl:        ttl,
		maxEntries: maxEntries,
		stopCh:     make(chan struct{}),
	}

	if ttl > 0 {
		go c.cleanupLoop()
	}

	return c
}

// NormalizeText 规范化用于构造缓存键的文本
// 规则：Unicode小写化，只保留字母、数字和撇号，空白折叠为单个空格，首尾去空白
func NormalizeText(text string) string {
	var b strings.Builder
	b.Grow(len(text))

	lastSpace := true
	for _, r := range strings.ToLower(text) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '\'':
			b.WriteRune(r)
			lastSpace = false
		case unicode.IsSpace(r):
			if !lastSpace {
				b.WriteRune(' ')
				lastSpace = true
			}
		default:
			// 其他标点视为分隔
			if !lastSpace {
				b.WriteRune(' ')
				lastSpace = true
			}
		}
	}

	return strings.TrimSpace(b.String())
}

// Key 根据规范化文本和区分前缀构造缓存键
// 例如 Key("audio", "fable", "0.9", text) 和 Key("judge", text) 永不冲突
func Key(parts ...string) string {
	normalized := make([]string, 0, len(parts))
	for _, p := range parts {
		normalized = append(normalized, NormalizeText(p))
	}

	sum := sha256.Sum256([]byte(strings.Join(normalized, ":::")))
	return hex.EncodeToString(sum[:])
}

// Get 查询缓存
func (c *ResponseCache) Get(key string) (interface{}, bool) {
	c.mu.RLock()
	entry, exists := c.entries[key]
	c.mu.RUnlock()

	if !exists {
		atomic.AddInt64(&c.misses, 1)
		return nil, false
	}

	if c.ttl > 0 && time.Since(entry.createdAt) > c.ttl {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		atomic.AddInt64(&c.misses, 1)
		return nil, false
	}

	atomic.AddInt64(&c.hits, 1)
	return entry.value, true
}

// Set 写入缓存
func (c *ResponseCache) Set(key string, value interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = &cacheEntry{
		value:     value,
		createdAt: time.Now(),
	}

	if c.maxEntries > 0 && len(c.entries) > c.maxEntries {
		c.evictOldest()
	}
}

// GetOrCompute 查询缓存，未命中时调用compute计算并写入
// 同一个键上并发的调用只会触发一次compute，其余调用者共享结果
// compute返回错误时不缓存，下次调用会重新计算
// 每次调用恰好记一次命中或未命中，触发compute的那次记未命中
func (c *ResponseCache) GetOrCompute(ctx context.Context, key string, compute func(ctx context.Context) (interface{}, error)) (interface{}, bool, error) {
	// 快路径：已有缓存
	c.mu.RLock()
	entry, exists := c.entries[key]
	c.mu.RUnlock()
	if exists && (c.ttl <= 0 || time.Since(entry.createdAt) <= c.ttl) {
		atomic.AddInt64(&c.hits, 1)
		return entry.value, true, nil
	}

	c.mu.Lock()

	// 加锁后再查一次，避免写入和查询之间的竞争
	if entry, exists := c.entries[key]; exists {
		if c.ttl <= 0 || time.Since(entry.createdAt) <= c.ttl {
			c.mu.Unlock()
			atomic.AddInt64(&c.hits, 1)
			return entry.value, true, nil
		}
		delete(c.entries, key)
	}

	// 已有同键计算在进行中，等待它完成
	if call, exists := c.inflight[key]; exists {
		c.mu.Unlock()

		select {
		case <-call.done:
			if call.err != nil {
				return nil, false, call.err
			}
			atomic.AddInt64(&c.hits, 1)
			return call.value, true, nil
		case <-ctx.Done():
			return nil, false, ctx.Err()
		}
	}

	// 登记本次计算
	call := &inflightCall{done: make(chan struct{})}
	c.inflight[key] = call
	c.mu.Unlock()

	atomic.AddInt64(&c.misses, 1)

	value, err := compute(ctx)

	c.mu.Lock()
	delete(c.inflight, key)
	if err == nil {
		c.entries[key] = &cacheEntry{
			value:     value,
			createdAt: time.Now(),
		}
		if c.maxEntries > 0 && len(c.entries) > c.maxEntries {
			c.evictOldest()
		}
	}
	c.mu.Unlock()

	call.value = value
	call.err = err
	close(call.done)

	return value, false, err
}

// Delete 删除指定键
func (c *ResponseCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, key)
}

// Clear 清空全部缓存
func (c *ResponseCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*cacheEntry)
}

// Len 返回当前条目数
func (c *ResponseCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.entries)
}

// Stats 返回命中和未命中计数
func (c *ResponseCache) Stats() (hits, misses int64) {
	return atomic.LoadInt64(&c.hits), atomic.LoadInt64(&c.misses)
}

// Stop 停止后台清理
func (c *ResponseCache) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopCh)
	})
}

// evictOldest 淘汰最旧的条目，调用方必须持有写锁
func (c *ResponseCache) evictOldest() {
	var oldestKey string
	var oldestTime time.Time

	for key, entry := range c.entries {
		if oldestKey == "" || entry.createdAt.Before(oldestTime) {
			oldestKey = key
			oldestTime = entry.createdAt
		}
	}

	if oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}

// cleanupLoop 定期清理过期条目
func (c *ResponseCache) cleanupLoop() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			now := time.Now()
			c.mu.Lock()
			for key, entry := range c.entries {
				if now.Sub(entry.createdAt) > c.ttl {
					delete(c.entries, key)
				}
			}
			c.mu.Unlock()
		case <-c.stopCh:
			return
		}
	}
}
