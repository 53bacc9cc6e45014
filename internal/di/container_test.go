// internal/di/container_test.go
package di

import (
	"sort"
	"testing"
)

// TestRegisterAndGet 测试服务注册和获取
func TestRegisterAndGet(t *testing.T) {
	c := NewContainer()

	c.Register("config", "config-value")
	c.Register("session", 42)

	if got := c.Get("config"); got != "config-value" {
		t.Errorf("获取config失败: %v", got)
	}
	if got := c.Get("session"); got != 42 {
		t.Errorf("获取session失败: %v", got)
	}
	if got := c.Get("missing"); got != nil {
		t.Errorf("不存在的服务应该返回nil，实际: %v", got)
	}
}

// TestRegisterOverwrite 测试重复注册覆盖旧值
func TestRegisterOverwrite(t *testing.T) {
	c := NewContainer()

	c.Register("svc", "old")
	c.Register("svc", "new")

	if got := c.Get("svc"); got != "new" {
		t.Errorf("重复注册应该覆盖旧值，实际: %v", got)
	}
}

// TestHasAndRemove 测试存在性检查和移除
func TestHasAndRemove(t *testing.T) {
	c := NewContainer()
	c.Register("svc", struct{}{})

	if !c.Has("svc") {
		t.Error("已注册的服务应该存在")
	}

	c.Remove("svc")
	if c.Has("svc") {
		t.Error("移除后的服务不应该存在")
	}

	// 移除不存在的服务不应该panic
	c.Remove("missing")
}

// TestGetNames 测试服务名列表
func TestGetNames(t *testing.T) {
	c := NewContainer()
	c.Register("a", 1)
	c.Register("b", 2)
	c.Register("c", 3)

	names := c.GetNames()
	sort.Strings(names)

	want := []string{"a", "b", "c"}
	if len(names) != len(want) {
		t.Fatalf("服务名数量应该是 %d，实际 %d", len(want), len(names))
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("服务名不匹配: %v", names)
			break
		}
	}
}

// TestClear 测试清空容器
func TestClear(t *testing.T) {
	c := NewContainer()
	c.Register("a", 1)
	c.Register("b", 2)

	c.Clear()

	if len(c.GetNames()) != 0 {
		t.Error("清空后容器应该为空")
	}
	if c.Get("a") != nil {
		t.Error("清空后不应该能获取服务")
	}
}

// TestGetContainerSingleton 测试全局容器单例
func TestGetContainerSingleton(t *testing.T) {
	first := GetContainer()
	second := GetContainer()

	if first != second {
		t.Error("全局容器应该是同一个实例")
	}
}
