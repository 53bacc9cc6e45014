// internal/storage/response_cache_test.go
package storage

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// TestNormalizeText 测试缓存键文本规范化
func TestNormalizeText(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  string
	}{
		{"小写化", "Hello World", "hello world"},
		{"空白折叠", "a   dragon\t\nstory", "a dragon story"},
		{"标点视为分隔", "Hello, world! (really)", "hello world really"},
		{"保留撇号", "Don't stop", "don't stop"},
		{"保留数字", "3 little pigs", "3 little pigs"},
		{"首尾去空白", "  a cat  ", "a cat"},
		{"空字符串", "", ""},
		{"纯标点", "!!!???", ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := NormalizeText(tc.input)
			if got != tc.want {
				t.Errorf("NormalizeText(%q) = %q, 期望 %q", tc.input, got, tc.want)
			}
		})
	}
}

// TestKey 测试缓存键的稳定性和区分性
func TestKey(t *testing.T) {
	// 规范化后相同的文本必须产生相同的键
	k1 := Key("judge", "A Brave  Little, Turtle!")
	k2 := Key("judge", "a brave little turtle")
	if k1 != k2 {
		t.Error("规范化后等价的文本应该产生相同的缓存键")
	}

	// 不同前缀的键永不冲突
	if Key("judge", "hello") == Key("poster", "hello") {
		t.Error("不同用途前缀的键不应该冲突")
	}

	// 多段参数参与键的计算
	if Key("audio", "fable", "1.00", "hello") == Key("audio", "shimmer", "1.00", "hello") {
		t.Error("音色不同的音频键不应该冲突")
	}
}

// TestCacheGetSet 测试基础读写
func TestCacheGetSet(t *testing.T) {
	cache := NewResponseCache(0, 0)
	defer cache.Stop()

	if _, ok := cache.Get("missing"); ok {
		t.Error("不存在的键不应该命中")
	}

	cache.Set("k", "v")
	value, ok := cache.Get("k")
	if !ok {
		t.Fatal("写入后的键应该命中")
	}
	if value.(string) != "v" {
		t.Errorf("缓存值不匹配: %v", value)
	}

	hits, misses := cache.Stats()
	if hits != 1 || misses != 1 {
		t.Errorf("统计计数错误: hits=%d misses=%d", hits, misses)
	}
}

// TestCacheTTL 测试条目过期
func TestCacheTTL(t *testing.T) {
	cache := NewResponseCache(20*time.Millisecond, 0)
	defer cache.Stop()

	cache.Set("k", "v")
	if _, ok := cache.Get("k"); !ok {
		t.Fatal("TTL内的键应该命中")
	}

	time.Sleep(50 * time.Millisecond)
	if _, ok := cache.Get("k"); ok {
		t.Error("过期的键不应该命中")
	}
}

// TestCacheEviction 测试条目数上限
func TestCacheEviction(t *testing.T) {
	cache := NewResponseCache(0, 2)
	defer cache.Stop()

	cache.Set("a", 1)
	time.Sleep(time.Millisecond)
	cache.Set("b", 2)
	time.Sleep(time.Millisecond)
	cache.Set("c", 3)

	if cache.Len() != 2 {
		t.Errorf("超出上限后应该淘汰到2个条目，实际 %d", cache.Len())
	}
	if _, ok := cache.Get("a"); ok {
		t.Error("最旧的条目应该被淘汰")
	}
}

// TestGetOrComputeIdempotent 测试同一键只计算一次
func TestGetOrComputeIdempotent(t *testing.T) {
	cache := NewResponseCache(0, 0)
	defer cache.Stop()

	var computeCount int32
	compute := func(ctx context.Context) (interface{}, error) {
		atomic.AddInt32(&computeCount, 1)
		return "result", nil
	}

	ctx := context.Background()

	value, cached, err := cache.GetOrCompute(ctx, "k", compute)
	if err != nil {
		t.Fatalf("首次计算不应该出错: %v", err)
	}
	if cached {
		t.Error("首次计算不应该标记为缓存命中")
	}
	if value.(string) != "result" {
		t.Errorf("计算结果不匹配: %v", value)
	}

	value, cached, err = cache.GetOrCompute(ctx, "k", compute)
	if err != nil {
		t.Fatalf("第二次调用不应该出错: %v", err)
	}
	if !cached {
		t.Error("第二次调用应该命中缓存")
	}
	if value.(string) != "result" {
		t.Errorf("缓存结果不匹配: %v", value)
	}

	if atomic.LoadInt32(&computeCount) != 1 {
		t.Errorf("compute应该只执行一次，实际 %d 次", computeCount)
	}
}

// TestGetOrComputeStats 测试冷调用恰好记一次未命中、热调用记一次命中
func TestGetOrComputeStats(t *testing.T) {
	cache := NewResponseCache(0, 0)
	defer cache.Stop()

	ctx := context.Background()
	compute := func(ctx context.Context) (interface{}, error) {
		return "result", nil
	}

	if _, _, err := cache.GetOrCompute(ctx, "k", compute); err != nil {
		t.Fatalf("首次计算不应该出错: %v", err)
	}
	hits, misses := cache.Stats()
	if hits != 0 || misses != 1 {
		t.Errorf("冷调用后统计错误: hits=%d misses=%d", hits, misses)
	}

	if _, _, err := cache.GetOrCompute(ctx, "k", compute); err != nil {
		t.Fatalf("第二次调用不应该出错: %v", err)
	}
	hits, misses = cache.Stats()
	if hits != 1 || misses != 1 {
		t.Errorf("热调用后统计错误: hits=%d misses=%d", hits, misses)
	}
}

// TestGetOrComputeCoalescing 测试并发调用合并为一次计算
func TestGetOrComputeCoalescing(t *testing.T) {
	cache := NewResponseCache(0, 0)
	defer cache.Stop()

	var computeCount int32
	compute := func(ctx context.Context) (interface{}, error) {
		atomic.AddInt32(&computeCount, 1)
		time.Sleep(50 * time.Millisecond)
		return "shared", nil
	}

	const workers = 10
	var wg sync.WaitGroup
	results := make([]interface{}, workers)
	errs := make([]error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			results[idx], _, errs[idx] = cache.GetOrCompute(context.Background(), "k", compute)
		}(i)
	}
	wg.Wait()

	if got := atomic.LoadInt32(&computeCount); got != 1 {
		t.Errorf("并发调用应该只触发一次计算，实际 %d 次", got)
	}
	for i := 0; i < workers; i++ {
		if errs[i] != nil {
			t.Fatalf("第%d个调用者出错: %v", i, errs[i])
		}
		if results[i].(string) != "shared" {
			t.Errorf("第%d个调用者结果不匹配: %v", i, results[i])
		}
	}
}

// TestGetOrComputeErrorNotCached 测试失败结果不进入缓存
func TestGetOrComputeErrorNotCached(t *testing.T) {
	cache := NewResponseCache(0, 0)
	defer cache.Stop()

	var computeCount int32
	boom := errors.New("provider down")

	_, _, err := cache.GetOrCompute(context.Background(), "k", func(ctx context.Context) (interface{}, error) {
		atomic.AddInt32(&computeCount, 1)
		return nil, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("应该返回计算错误，实际: %v", err)
	}

	// 失败不缓存，下次调用重新计算并成功
	value, cached, err := cache.GetOrCompute(context.Background(), "k", func(ctx context.Context) (interface{}, error) {
		atomic.AddInt32(&computeCount, 1)
		return "recovered", nil
	})
	if err != nil {
		t.Fatalf("重试不应该出错: %v", err)
	}
	if cached {
		t.Error("失败后的重试不应该命中缓存")
	}
	if value.(string) != "recovered" {
		t.Errorf("重试结果不匹配: %v", value)
	}
	if atomic.LoadInt32(&computeCount) != 2 {
		t.Errorf("失败后应该重新计算，总计算次数 %d", computeCount)
	}
}

// TestGetOrComputeWaiterContextCancel 测试等待者在上下文取消时退出
func TestGetOrComputeWaiterContextCancel(t *testing.T) {
	cache := NewResponseCache(0, 0)
	defer cache.Stop()

	started := make(chan struct{})
	go func() {
		cache.GetOrCompute(context.Background(), "slow", func(ctx context.Context) (interface{}, error) {
			close(started)
			time.Sleep(200 * time.Millisecond)
			return "late", nil
		})
	}()

	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, _, err := cache.GetOrCompute(ctx, "slow", func(ctx context.Context) (interface{}, error) {
		return "never", nil
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("等待者应该因上下文超时返回，实际: %v", err)
	}
}
