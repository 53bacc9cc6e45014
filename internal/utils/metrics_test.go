// internal/utils/metrics_test.go
package utils

import (
	"sync"
	"testing"
	"time"
)

// 指标收集器是全局单例，每个测试用独立的指标名避免互相干扰

// TestCounter 测试计数器
func TestCounter(t *testing.T) {
	m := GetMetricsCollector()

	m.IncrementCounter("test_counter_basic")
	m.IncrementCounter("test_counter_basic")
	m.AddCounter("test_counter_basic", 3)

	if got := m.GetCounterValue("test_counter_basic"); got != 5 {
		t.Errorf("计数器应该是5，实际 %d", got)
	}
	if got := m.GetCounterValue("test_counter_missing"); got != 0 {
		t.Errorf("不存在的计数器应该返回0，实际 %d", got)
	}
}

// TestCounterConcurrent 测试并发计数
func TestCounterConcurrent(t *testing.T) {
	m := GetMetricsCollector()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				m.IncrementCounter("test_counter_concurrent")
			}
		}()
	}
	wg.Wait()

	if got := m.GetCounterValue("test_counter_concurrent"); got != 1000 {
		t.Errorf("并发计数应该是1000，实际 %d", got)
	}
}

// TestGauge 测试仪表盘
func TestGauge(t *testing.T) {
	m := GetMetricsCollector()

	m.SetGauge("test_gauge_basic", 10)
	m.IncGauge("test_gauge_basic")
	m.IncGauge("test_gauge_basic")
	m.DecGauge("test_gauge_basic")

	if got := m.GetGauge("test_gauge_basic"); got != 11 {
		t.Errorf("仪表盘应该是11，实际 %d", got)
	}

	// 不存在的仪表盘经过Inc/Dec后从0开始累计
	m.IncGauge("test_gauge_fresh")
	if got := m.GetGauge("test_gauge_fresh"); got != 1 {
		t.Errorf("新仪表盘Inc后应该是1，实际 %d", got)
	}
	if got := m.GetGauge("test_gauge_missing"); got != 0 {
		t.Errorf("不存在的仪表盘应该返回0，实际 %d", got)
	}
}

// TestHistogram 测试直方图统计
func TestHistogram(t *testing.T) {
	m := GetMetricsCollector()

	m.RecordHistogram("test_histogram_basic", 10)
	m.RecordHistogram("test_histogram_basic", 30)
	m.RecordHistogram("test_histogram_basic", 20)

	metrics := m.GetMetrics()
	histograms, ok := metrics["histograms"].(map[string]map[string]int64)
	if !ok {
		t.Fatal("直方图快照类型不匹配")
	}

	h, ok := histograms["test_histogram_basic"]
	if !ok {
		t.Fatal("直方图快照中缺少指标")
	}
	if h["count"] != 3 {
		t.Errorf("count应该是3，实际 %d", h["count"])
	}
	if h["sum"] != 60 {
		t.Errorf("sum应该是60，实际 %d", h["sum"])
	}
	if h["min"] != 10 {
		t.Errorf("min应该是10，实际 %d", h["min"])
	}
	if h["max"] != 30 {
		t.Errorf("max应该是30，实际 %d", h["max"])
	}
}

// TestGetMetricsSnapshot 测试快照包含三类指标
func TestGetMetricsSnapshot(t *testing.T) {
	m := GetMetricsCollector()
	m.IncrementCounter("test_snapshot_counter")
	m.SetGauge("test_snapshot_gauge", 7)

	metrics := m.GetMetrics()

	counters, ok := metrics["counters"].(map[string]int64)
	if !ok {
		t.Fatal("计数器快照类型不匹配")
	}
	if counters["test_snapshot_counter"] != 1 {
		t.Errorf("快照中计数器值不对: %d", counters["test_snapshot_counter"])
	}

	gauges, ok := metrics["gauges"].(map[string]int64)
	if !ok {
		t.Fatal("仪表盘快照类型不匹配")
	}
	if gauges["test_snapshot_gauge"] != 7 {
		t.Errorf("快照中仪表盘值不对: %d", gauges["test_snapshot_gauge"])
	}
}

// TestRecordAPIRequest 测试API请求指标
func TestRecordAPIRequest(t *testing.T) {
	am := NewAPIMetrics()
	m := GetMetricsCollector()

	before := m.GetCounterValue("api_responses_2xx")
	am.RecordAPIRequest("/api/story/start", "POST", 201, 50*time.Millisecond)

	if got := m.GetCounterValue("api_responses_2xx"); got != before+1 {
		t.Errorf("2xx计数应该增加1，实际从 %d 到 %d", before, got)
	}
	if m.GetCounterValue("api_requests_POST_/api/story/start") == 0 {
		t.Error("按端点的请求计数应该被记录")
	}
}

// TestRecordStoryAction 测试故事动作指标
func TestRecordStoryAction(t *testing.T) {
	am := NewAPIMetrics()
	m := GetMetricsCollector()

	before := m.GetCounterValue("story_actions_choice")
	am.RecordStoryAction("sess-1", "choice")

	if got := m.GetCounterValue("story_actions_choice"); got != before+1 {
		t.Errorf("choice动作计数应该增加1，实际从 %d 到 %d", before, got)
	}
}

// TestRecordMediaRequest 测试媒体合成指标
func TestRecordMediaRequest(t *testing.T) {
	am := NewAPIMetrics()
	m := GetMetricsCollector()

	before := m.GetCounterValue("media_requests_narration")
	am.RecordMediaRequest("narration", 120*time.Millisecond)

	if got := m.GetCounterValue("media_requests_narration"); got != before+1 {
		t.Errorf("朗读合成计数应该增加1，实际从 %d 到 %d", before, got)
	}
}

// TestRecordError 测试错误指标
func TestRecordError(t *testing.T) {
	am := NewAPIMetrics()
	m := GetMetricsCollector()

	before := m.GetCounterValue("errors_provider_error")
	am.RecordError("provider_error", "api")

	if got := m.GetCounterValue("errors_provider_error"); got != before+1 {
		t.Errorf("错误计数应该增加1，实际从 %d 到 %d", before, got)
	}
}
