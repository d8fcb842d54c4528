package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/getcharzp/go-backdrop/device"
	"github.com/getcharzp/go-backdrop/pipeline"
	"github.com/getcharzp/go-backdrop/stream"
	"github.com/spf13/cobra"
)

// Options 命令行参数, live 与 render 共用
type Options struct {
	// 位置参数
	CameraIndex    int
	BackgroundPath string
	ModelPath      string

	// 模型
	ModelType   string
	PersonLabel int // < 0 时使用模型的默认值
	OrtLib      string
	UseCuda     bool
	NumThreads  int

	// 合成
	Effect      string
	BlurKernel  int
	BlurBorder  string
	BlurPolicy  string
	FontPath    string
	NoOverlay   bool
	SnapshotDir string

	// 采集
	Source     string // gocv 或 ffmpeg
	Device     string // ffmpeg 输入设备, 如 /dev/video0
	Format     string // ffmpeg 输入格式, 如 v4l2
	Width      int
	Height     int
	BufferSize int
	AutoFocus  bool
	FourCC     string

	// render
	InputPath  string
	OutputPath string

	LogLevel string
}

// Version 版本号
const Version = "0.1.0"

var opts Options

var rootCmd = &cobra.Command{
	Use:   "backdrop [camera-index] [background-path] [model-path]",
	Short: "实时摄像头背景移除、替换与模糊",
	Long: `从摄像头读取画面, 使用语义分割模型识别人像, 并对背景进行处理。

按键:
  Esc  退出
  Tab  切换模式 (remove -> replace -> blur)
  s    保存当前画面`,
	Version:       Version,
	Args:          cobra.MaximumNArgs(3),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := applyPositional(&opts, args); err != nil {
			return err
		}
		return runLive(cmd.Context(), opts)
	},
}

// Execute 执行命令, 出错时以状态码 1 退出
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&opts.ModelType, "model-type", "deeplab", "模型类型: deeplab, yolo11, yolo26")
	pf.StringVar(&opts.ModelPath, "model", "", "ONNX 模型路径 (默认取决于 --model-type)")
	pf.IntVar(&opts.PersonLabel, "person-label", -1, "人像类别 ID (默认: deeplab 15, yolo 0)")
	pf.StringVar(&opts.OrtLib, "ort-lib", "", "ONNX Runtime 动态库路径 (默认 ./lib 下按平台选择)")
	pf.BoolVar(&opts.UseCuda, "cuda", false, "使用 CUDA 推理")
	pf.IntVar(&opts.NumThreads, "threads", 0, "ONNX 线程数 (0 为自动)")

	pf.StringVar(&opts.BackgroundPath, "background", "./background.jpg", "替换模式使用的背景图")
	pf.StringVarP(&opts.Effect, "effect", "e", "remove", "初始模式: remove, replace, blur")
	pf.IntVar(&opts.BlurKernel, "blur-kernel", 21, "模糊核大小 (奇数)")
	pf.StringVar(&opts.BlurBorder, "blur-border", "reflect101", "模糊边界: reflect101, replicate")
	pf.StringVar(&opts.BlurPolicy, "blur-policy", "zero-foreground", "模糊策略: zero-foreground, full-frame")
	pf.StringVar(&opts.FontPath, "font", "", "叠加信息使用的字体 (默认内置字体)")
	pf.BoolVar(&opts.NoOverlay, "no-overlay", false, "不绘制 FPS 等信息")
	pf.StringVar(&opts.LogLevel, "log-level", "info", "日志级别: debug, info, warn, error")

	f := rootCmd.Flags()
	f.StringVar(&opts.Source, "source", "gocv", "采集方式: gocv, ffmpeg")
	f.StringVar(&opts.Device, "device", "/dev/video0", "ffmpeg 采集设备 (仅 --source ffmpeg)")
	f.StringVar(&opts.Format, "format", "v4l2", "ffmpeg 输入格式 (仅 --source ffmpeg)")
	f.IntVar(&opts.Width, "width", 640, "采集宽度")
	f.IntVar(&opts.Height, "height", 480, "采集高度")
	f.IntVar(&opts.BufferSize, "buffer", 1, "摄像头缓冲帧数")
	f.BoolVar(&opts.AutoFocus, "autofocus", true, "自动对焦")
	f.StringVar(&opts.FourCC, "fourcc", "MJPG", "摄像头像素格式")
	f.StringVar(&opts.SnapshotDir, "snapshot-dir", ".", "截图保存目录")
}

// applyPositional 解析位置参数 [camera-index] [background-path] [model-path]
func applyPositional(o *Options, args []string) error {
	if len(args) > 0 {
		idx, err := strconv.Atoi(args[0])
		if err != nil || idx < 0 {
			return fmt.Errorf("摄像头编号非法: %q", args[0])
		}
		o.CameraIndex = idx
	}
	if len(args) > 1 {
		o.BackgroundPath = args[1]
	}
	if len(args) > 2 {
		o.ModelPath = args[2]
	}
	return nil
}

// runLive 实时处理摄像头画面
func runLive(ctx context.Context, o Options) error {
	logger, err := newLogger(o.LogLevel)
	if err != nil {
		return err
	}

	seg, err := newSegmenter(o)
	if err != nil {
		return err
	}
	defer seg.Destroy()

	comp, err := newCompositor(o, logger)
	if err != nil {
		return err
	}
	drawer, err := newDrawer(o)
	if err != nil {
		return err
	}
	if drawer != nil {
		defer drawer.Close()
	}

	cfg, err := loopConfig(o, seg.personLabel)
	if err != nil {
		return err
	}
	logger.Info().
		Str("model", seg.name).
		Int("person_label", seg.personLabel).
		Str("source", o.Source).
		Int("camera", o.CameraIndex).
		Msg("初始化完成")

	window := device.NewWindow("backdrop")
	loop, err := pipeline.NewLoop(cfg, pipeline.Deps{
		Open:       liveOpener(o),
		Segmenter:  seg,
		Compositor: comp,
		Display:    window,
		Drawer:     drawer,
		Logger:     logger,
	})
	if err != nil {
		window.Close()
		return err
	}
	return loop.Run(ctx)
}

// liveOpener 按 --source 选择采集方式
func liveOpener(o Options) pipeline.Opener {
	return func(ctx context.Context) (pipeline.Source, error) {
		switch o.Source {
		case "ffmpeg":
			cfg := stream.SourceConfig{
				Input:  o.Device,
				Format: o.Format,
				Width:  o.Width,
				Height: o.Height,
			}
			src, err := stream.OpenMJPEG(ctx, cfg)
			if err != nil {
				return nil, err
			}
			return src, nil
		case "gocv", "":
			cfg := device.DefaultCameraConfig(o.CameraIndex)
			cfg.Width = o.Width
			cfg.Height = o.Height
			cfg.BufferSize = o.BufferSize
			cfg.AutoFocus = o.AutoFocus
			cfg.FourCC = o.FourCC
			cam, err := device.OpenCamera(cfg)
			if err != nil {
				return nil, err
			}
			return cam, nil
		default:
			return nil, fmt.Errorf("未知的采集方式 %q", o.Source)
		}
	}
}
