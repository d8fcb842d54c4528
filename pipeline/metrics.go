package pipeline

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Metrics 帧率与延迟统计, 按固定时间窗口刷新
type Metrics struct {
	window time.Duration

	windowStart   time.Time
	windowFrames  int
	windowLatency time.Duration

	fps     float64
	latency time.Duration

	Frames  int // 成功输出的帧数
	Dropped int // 被跳过的帧数
}

// NewMetrics 创建统计器
//
// # Params:
//
//	window: 统计窗口, <= 0 时为 1s
func NewMetrics(window time.Duration) *Metrics {
	if window <= 0 {
		window = time.Second
	}
	return &Metrics{window: window}
}

// Update 记录一帧, latency 为该帧从读取到合成完成的耗时
func (m *Metrics) Update(now time.Time, latency time.Duration) {
	m.Frames++
	if m.windowStart.IsZero() {
		// 第一帧只作为窗口起点
		m.windowStart = now
		m.latency = latency
		return
	}
	m.windowFrames++
	m.windowLatency += latency

	elapsed := now.Sub(m.windowStart)
	if elapsed >= m.window {
		m.fps = float64(m.windowFrames) / elapsed.Seconds()
		m.latency = m.windowLatency / time.Duration(m.windowFrames)
		m.windowStart = now
		m.windowFrames = 0
		m.windowLatency = 0
	}
}

// Drop 记录一次跳帧
func (m *Metrics) Drop() {
	m.Dropped++
}

// FPS 最近一个窗口的帧率
func (m *Metrics) FPS() float64 {
	return m.fps
}

// Latency 最近一个窗口的平均延迟
func (m *Metrics) Latency() time.Duration {
	return m.latency
}

// Lines 绘制到画面上的文本
func (m *Metrics) Lines(effect Effect) []string {
	return []string{
		fmt.Sprintf("Latency: %.1f ms", float64(m.latency.Microseconds())/1000),
		fmt.Sprintf("FPS: %.1f", m.fps),
		fmt.Sprintf("Effect: %s", effect),
	}
}

func (m *Metrics) MarshalZerologObject(e *zerolog.Event) {
	e.Float64("fps", m.fps).
		Dur("latency", m.latency).
		Int("frames", m.Frames).
		Int("dropped", m.Dropped)
}
