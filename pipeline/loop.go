package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"
	"sync/atomic"
	"time"

	"github.com/getcharzp/go-backdrop/composite"
	"github.com/getcharzp/go-backdrop/mask"
	"github.com/getcharzp/go-backdrop/overlay"
	"github.com/rs/zerolog"
)

// Frame 每帧完成后传给 OnFrame 的信息
type Frame struct {
	Index   int
	Effect  Effect // 实际使用的模式 (替换不可用时为 Remove)
	Output  *image.RGBA
	Latency time.Duration
}

// Deps 帧循环依赖的组件
type Deps struct {
	Open       Opener
	Segmenter  Segmenter
	Compositor *composite.Compositor
	Display    Display
	Drawer     *overlay.TextDrawer // (可选) 为 nil 时不绘制统计信息
	Logger     zerolog.Logger
	OnFrame    func(Frame) // (可选) 每帧输出后回调
}

// Loop 采集 -> 推理 -> 合成 -> 显示 的状态机
//
// 状态: Idle -> CameraOpen -> Running -> Stopped | Failed。单个 goroutine 内顺序执行。
type Loop struct {
	cfg  Config
	deps Deps
	log  zerolog.Logger

	state   atomic.Int32
	effect  atomic.Int32
	metrics *Metrics

	src              Source
	frames           int
	warnedBackground bool
}

// NewLoop 创建帧循环
//
// Segmenter 实现了 NumClasses() 时会校验人像类别是否在范围内。
func NewLoop(cfg Config, deps Deps) (*Loop, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if deps.Open == nil || deps.Segmenter == nil || deps.Compositor == nil || deps.Display == nil {
		return nil, errors.New("Open, Segmenter, Compositor, Display 均不能为空")
	}
	if cc, ok := deps.Segmenter.(interface{ NumClasses() int }); ok {
		if err := mask.ValidateLabel(cfg.PersonLabel, cc.NumClasses()); err != nil {
			return nil, err
		}
	}

	l := &Loop{
		cfg:     cfg,
		deps:    deps,
		log:     deps.Logger.With().Str("component", "loop").Logger(),
		metrics: NewMetrics(time.Second),
	}
	l.effect.Store(int32(cfg.Effect))
	return l, nil
}

// State 当前状态
func (l *Loop) State() State {
	return State(l.state.Load())
}

// Effect 当前模式
func (l *Loop) Effect() Effect {
	return Effect(l.effect.Load())
}

// Metrics 统计信息, 只应在 Run 返回后读取
func (l *Loop) Metrics() *Metrics {
	return l.metrics
}

func (l *Loop) setState(s State) {
	prev := State(l.state.Swap(int32(s)))
	l.log.Debug().Stringer("from", prev).Stringer("to", s).Msg("状态切换")
}

// Run 运行帧循环直到退出键、来源结束、窗口关闭或 ctx 取消
//
// 视频源打开失败时返回包装了 ErrDeviceOpen 的错误, 视频源失效或显示出错时返回对应错误,
// 状态均为 Failed; 正常结束返回 nil。
// 无论哪种情况, 视频源和显示都会被释放。
func (l *Loop) Run(ctx context.Context) error {
	if l.State() != StateIdle {
		return fmt.Errorf("循环已运行过, 当前状态 %s", l.State())
	}
	defer func() {
		if err := l.deps.Display.Close(); err != nil {
			l.log.Warn().Err(err).Msg("关闭显示失败")
		}
	}()

	l.setState(StateCameraOpen)
	src, err := l.deps.Open(ctx)
	if err != nil {
		l.setState(StateFailed)
		return fmt.Errorf("%w: %w", ErrDeviceOpen, err)
	}
	l.src = src
	defer func() {
		if err := src.Close(); err != nil {
			l.log.Warn().Err(err).Msg("关闭视频源失败")
		}
	}()

	l.setState(StateRunning)
	l.log.Info().Stringer("effect", l.Effect()).Int("person_label", l.cfg.PersonLabel).Msg("开始处理")

	for {
		if ctx.Err() != nil {
			l.stop("ctx canceled")
			return nil
		}

		stop, err := l.tick()
		if err != nil && ctx.Err() != nil {
			// ctx 取消会杀掉解码进程
			l.stop("ctx canceled")
			return nil
		}
		if err != nil {
			l.setState(StateFailed)
			return err
		}
		if stop {
			l.stop("exit")
			return nil
		}
	}
}

func (l *Loop) stop(reason string) {
	l.setState(StateStopped)
	l.log.Info().Str("reason", reason).Object("metrics", l.metrics).Msg("处理结束")
}

// tick 处理一帧, 返回是否应当结束循环
func (l *Loop) tick() (bool, error) {
	start := time.Now()

	frame, err := l.src.Read()
	if errors.Is(err, io.EOF) {
		return true, nil
	}
	if errors.Is(err, ErrSourceFailed) {
		return false, err
	}

	var out *image.RGBA
	if err != nil {
		l.metrics.Drop()
		l.log.Warn().Err(fmt.Errorf("%w: %w", ErrFrameRead, err)).Msg("跳过当前帧")
	} else {
		var used Effect
		out, used = l.process(frame)
		if out != nil {
			now := time.Now()
			latency := now.Sub(start)
			l.metrics.Update(now, latency)
			l.drawMetrics(out)

			if err := l.deps.Display.Show(out); err != nil {
				if errors.Is(err, ErrDisplayClosed) {
					return true, nil
				}
				return false, fmt.Errorf("显示失败: %w", err)
			}

			if l.deps.OnFrame != nil {
				l.deps.OnFrame(Frame{Index: l.frames, Effect: used, Output: out, Latency: latency})
			}
			l.frames++
			if l.frames%100 == 0 {
				l.log.Debug().Object("metrics", l.metrics).Msg("统计")
			}
		}
	}

	return l.handleKey(l.deps.Display.PollKey(l.cfg.PollInterval), out), nil
}

// process 推理并合成, 失败时返回 nil 并记录日志
func (l *Loop) process(frame image.Image) (*image.RGBA, Effect) {
	effect := l.Effect()

	labels, err := l.deps.Segmenter.Predict(frame)
	if err != nil {
		l.metrics.Drop()
		l.log.Warn().Err(err).Msg("推理失败, 跳过当前帧")
		return nil, effect
	}
	if err := labels.Validate(); err != nil {
		l.metrics.Drop()
		l.log.Warn().Err(err).Msg("标签图非法, 跳过当前帧")
		return nil, effect
	}
	if labels.Bounds().Size() != frame.Bounds().Size() {
		l.metrics.Drop()
		l.log.Warn().
			Err(fmt.Errorf("标签图 %v 与帧 %v 尺寸不一致: %w", labels.Bounds().Size(), frame.Bounds().Size(), mask.ErrInvalidInput)).
			Msg("跳过当前帧")
		return nil, effect
	}

	m, err := mask.ExtractPersonMask(labels, l.cfg.PersonLabel)
	if err != nil {
		l.metrics.Drop()
		l.log.Warn().Err(err).Msg("提取 Mask 失败, 跳过当前帧")
		return nil, effect
	}

	out, used, err := l.composite(effect, frame, m)
	if err != nil {
		l.metrics.Drop()
		l.log.Warn().Err(err).Stringer("effect", effect).Msg("合成失败, 跳过当前帧")
		return nil, used
	}
	return out, used
}

// composite 按模式合成, 背景不可用时替换模式退化为移除
func (l *Loop) composite(effect Effect, frame image.Image, m *image.Gray) (*image.RGBA, Effect, error) {
	c := l.deps.Compositor
	switch effect {
	case EffectReplace:
		out, err := c.Replace(frame, m)
		if !errors.Is(err, composite.ErrBackgroundUnavailable) {
			return out, effect, err
		}
		if !l.warnedBackground {
			l.warnedBackground = true
			l.log.Warn().Err(err).Msg("背景图不可用, 替换模式改为移除背景")
		}
		out, err = c.Remove(frame, m)
		return out, EffectRemove, err
	case EffectBlur:
		out, err := c.Blur(frame, m)
		return out, effect, err
	default:
		out, err := c.Remove(frame, m)
		return out, EffectRemove, err
	}
}

var (
	overlayText  = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	overlayPanel = color.RGBA{A: 128}
)

func (l *Loop) drawMetrics(out *image.RGBA) {
	if !l.cfg.ShowMetrics || l.deps.Drawer == nil {
		return
	}
	l.deps.Drawer.DrawPanel(out, l.metrics.Lines(l.Effect()), image.Pt(10, 10), overlayText, overlayPanel)
}

// handleKey 处理按键, 返回是否退出
func (l *Loop) handleKey(key int, out *image.RGBA) bool {
	if key < 0 {
		return false
	}
	km := l.cfg.Keymap
	switch key {
	case km.Exit:
		return true
	case km.Toggle:
		next := l.Effect().Next()
		l.effect.Store(int32(next))
		l.log.Info().Stringer("effect", next).Msg("切换模式")
	case km.Snapshot:
		if out == nil {
			l.log.Warn().Msg("当前帧不可用, 忽略截图")
			return false
		}
		path, err := SaveSnapshot(l.cfg.SnapshotDir, out)
		if err != nil {
			l.log.Warn().Err(err).Msg("截图失败")
			return false
		}
		l.log.Info().Str("path", path).Msg("已保存截图")
	}
	return false
}
