package pipeline

import (
	"fmt"
	"time"
)

// 默认按键
const (
	KeyEsc = 27
	KeyTab = 9
)

// Keymap 按键映射, 值为 PollKey 返回的键码
type Keymap struct {
	Exit     int
	Toggle   int
	Snapshot int
}

// DefaultKeymap Esc 退出, Tab 切换模式, s 截图
func DefaultKeymap() Keymap {
	return Keymap{
		Exit:     KeyEsc,
		Toggle:   KeyTab,
		Snapshot: 's',
	}
}

// Config 帧循环参数
type Config struct {
	PersonLabel  int           // 人像类别 ID
	Effect       Effect        // 初始模式
	Keymap       Keymap        // 按键映射
	PollInterval time.Duration // 每帧等待按键的时长 (默认 1ms)
	ShowMetrics  bool          // 是否在画面上绘制 FPS 等信息
	SnapshotDir  string        // 截图保存目录
}

// DefaultConfig 默认配置
//
// # Params:
//
//	personLabel: 人像类别 ID, 由所用模型决定
func DefaultConfig(personLabel int) Config {
	return Config{
		PersonLabel:  personLabel,
		Effect:       EffectRemove,
		Keymap:       DefaultKeymap(),
		PollInterval: time.Millisecond,
		ShowMetrics:  true,
		SnapshotDir:  ".",
	}
}

func (c Config) validate() error {
	if !c.Effect.Valid() {
		return fmt.Errorf("初始模式非法: %s", c.Effect)
	}
	if c.PollInterval < 0 {
		return fmt.Errorf("PollInterval 不能为负: %s", c.PollInterval)
	}
	return nil
}
