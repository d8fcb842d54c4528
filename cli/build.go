package cli

import (
	"fmt"
	"image"
	"os"
	"strings"
	"time"

	"github.com/getcharzp/go-backdrop"
	"github.com/getcharzp/go-backdrop/composite"
	"github.com/getcharzp/go-backdrop/deeplab"
	"github.com/getcharzp/go-backdrop/mask"
	"github.com/getcharzp/go-backdrop/overlay"
	"github.com/getcharzp/go-backdrop/pipeline"
	"github.com/getcharzp/go-backdrop/yoloseg"
	"github.com/rs/zerolog"
)

// newLogger 创建输出到 stderr 的日志
func newLogger(level string) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("日志级别非法 %q: %w", level, err)
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}).
		Level(lvl).
		With().Timestamp().Logger(), nil
}

// engine deeplab.Engine 与 yoloseg.Engine 的公共方法
type engine interface {
	Predict(img image.Image) (*mask.LabelMap, error)
	NumClasses() int
	Destroy()
}

// segmenter 带有模型元信息的分割引擎
type segmenter struct {
	engine
	name        string
	personLabel int
}

// modelInfo 模型类型对应的默认值
type modelInfo struct {
	name        string
	modelPath   string
	personLabel int
	numClasses  int
}

func resolveModel(o Options) (modelInfo, error) {
	var info modelInfo
	switch strings.ToLower(o.ModelType) {
	case "deeplab", "deeplabv3":
		cfg := deeplab.DefaultConfig()
		info = modelInfo{name: "deeplabv3", modelPath: cfg.ModelPath, personLabel: deeplab.PersonLabel, numClasses: cfg.NumClasses}
	case "yolo", "yolo11", "yolov11":
		cfg := yoloseg.DefaultV11Config()
		info = modelInfo{name: "yolo11-seg", modelPath: cfg.ModelPath, personLabel: yoloseg.PersonLabel, numClasses: cfg.NumClasses}
	case "yolo26":
		cfg := yoloseg.Default26Config()
		info = modelInfo{name: "yolo26-seg", modelPath: cfg.ModelPath, personLabel: yoloseg.PersonLabel, numClasses: cfg.NumClasses}
	default:
		return info, fmt.Errorf("未知的模型类型 %q (可选 deeplab, yolo11, yolo26)", o.ModelType)
	}

	if o.ModelPath != "" {
		info.modelPath = o.ModelPath
	}
	if o.PersonLabel >= 0 {
		info.personLabel = o.PersonLabel
	}
	if err := mask.ValidateLabel(info.personLabel, info.numClasses); err != nil {
		return info, err
	}
	return info, nil
}

// newSegmenter 按模型类型创建分割引擎
func newSegmenter(o Options) (*segmenter, error) {
	info, err := resolveModel(o)
	if err != nil {
		return nil, err
	}
	lib := o.OrtLib
	if lib == "" {
		lib = backdrop.DefaultLibraryPath()
	}

	var e engine
	switch info.name {
	case "deeplabv3":
		cfg := deeplab.DefaultConfig()
		cfg.ModelPath = info.modelPath
		cfg.OnnxRuntimeLibPath = lib
		cfg.UseCuda = o.UseCuda
		cfg.NumThreads = o.NumThreads
		e, err = deeplab.NewEngine(cfg)
	default:
		cfg := yoloseg.DefaultV11Config()
		if info.name == "yolo26-seg" {
			cfg = yoloseg.Default26Config()
		}
		cfg.ModelPath = info.modelPath
		cfg.OnnxRuntimeLibPath = lib
		cfg.UseCuda = o.UseCuda
		cfg.NumThreads = o.NumThreads
		e, err = yoloseg.NewEngine(cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("加载模型 %s 失败: %w", info.modelPath, err)
	}
	return &segmenter{engine: e, name: info.name, personLabel: info.personLabel}, nil
}

// compositeOptions 合成参数
func compositeOptions(o Options) (composite.Options, error) {
	opts := composite.DefaultOptions()
	border, err := composite.ParseBorder(o.BlurBorder)
	if err != nil {
		return opts, err
	}
	policy, err := composite.ParseBlurPolicy(o.BlurPolicy)
	if err != nil {
		return opts, err
	}
	if o.BlurKernel < 1 || o.BlurKernel%2 == 0 {
		return opts, fmt.Errorf("模糊核必须为正奇数: %d", o.BlurKernel)
	}
	opts.Blur = composite.BlurOptions{Kernel: o.BlurKernel, Border: border, Policy: policy}
	return opts, nil
}

// newCompositor 创建合成器, 背景图读取失败时只记录警告
func newCompositor(o Options, logger zerolog.Logger) (*composite.Compositor, error) {
	opts, err := compositeOptions(o)
	if err != nil {
		return nil, err
	}

	var bg image.Image
	if o.BackgroundPath != "" {
		bg, err = composite.LoadBackground(o.BackgroundPath)
		if err != nil {
			logger.Warn().Err(err).Msg("背景图不可用, 替换模式将退化为移除背景")
			bg = nil
		}
	}
	return composite.NewCompositor(bg, opts), nil
}

func newDrawer(o Options) (*overlay.TextDrawer, error) {
	if o.NoOverlay {
		return nil, nil
	}
	return overlay.NewTextDrawer(o.FontPath)
}

// loopConfig 帧循环参数
func loopConfig(o Options, personLabel int) (pipeline.Config, error) {
	effect, err := pipeline.ParseEffect(o.Effect)
	if err != nil {
		return pipeline.Config{}, err
	}
	cfg := pipeline.DefaultConfig(personLabel)
	cfg.Effect = effect
	cfg.ShowMetrics = !o.NoOverlay
	if o.SnapshotDir != "" {
		cfg.SnapshotDir = o.SnapshotDir
	}
	return cfg, nil
}
