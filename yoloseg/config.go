package yoloseg

import (
	"fmt"
	"image"

	"github.com/getcharzp/go-backdrop"
)

// PersonLabel COCO 类别表中 "person" 的类别 ID
const PersonLabel = 0

// Layout 检测输出的排布方式
type Layout int

const (
	// LayoutV11 YOLOv11-seg: [1, 4+NumClasses+NumMaskCoeffs, anchors], 需要 NMS
	LayoutV11 Layout = iota
	// Layout26 YOLO26-seg: [1, N, 6+NumMaskCoeffs], 端到端输出, 无需 NMS
	Layout26
)

func (l Layout) String() string {
	switch l {
	case LayoutV11:
		return "v11"
	case Layout26:
		return "26"
	default:
		return fmt.Sprintf("Layout(%d)", int(l))
	}
}

// ParseLayout 解析输出排布名称
func ParseLayout(s string) (Layout, error) {
	switch s {
	case "v11", "yolov11", "yolo11":
		return LayoutV11, nil
	case "26", "yolo26":
		return Layout26, nil
	}
	return 0, fmt.Errorf("未知的 YOLO 版本 %q", s)
}

// Config 引擎的初始化参数
type Config struct {
	ModelPath          string // ONNX 模型路径
	OnnxRuntimeLibPath string // ONNX Runtime 动态库路径
	Layout             Layout // 输出排布

	// 推理参数
	ConfThreshold float32 // 置信度阈值 (默认 0.45)
	IOUThreshold  float32 // NMS IOU 阈值 (默认 0.5, 仅 LayoutV11)
	MaskThreshold float32 // Mask 二值化阈值 (默认 0.5)

	// 模型参数
	InputSize     int // 默认 640
	NumClasses    int // 默认 80
	NumMaskCoeffs int // 默认 32

	// 可选参数
	UseCuda    bool // (可选) 是否启用 CUDA
	NumThreads int  // (可选) ONNX 线程数, 默认由CPU核心数决定
}

// DefaultConfig 默认配置
func DefaultConfig() Config {
	return Config{
		OnnxRuntimeLibPath: backdrop.DefaultLibraryPath(),
		ConfThreshold:      0.45,
		IOUThreshold:       0.50,
		MaskThreshold:      0.50,
		InputSize:          640,
		NumClasses:         80,
		NumMaskCoeffs:      32,
	}
}

// DefaultV11Config YOLOv11-seg 的默认配置
func DefaultV11Config() Config {
	cfg := DefaultConfig()
	cfg.Layout = LayoutV11
	cfg.ModelPath = "./yolov11_weights/yolo11m-seg.onnx"
	return cfg
}

// Default26Config YOLO26-seg 的默认配置
func Default26Config() Config {
	cfg := DefaultConfig()
	cfg.Layout = Layout26
	cfg.ModelPath = "./yolo26_weights/yolo26s-seg.onnx"
	return cfg
}

// imageParams 图片尺寸信息
type imageParams struct {
	origW, origH int
	scale        float32
}

// 候选结果
type candidate struct {
	origBox    image.Rectangle // 原始图片的检测框
	score      float32
	classID    int
	maskCoeffs []float32 // Mask 系数
}

// SegResult 分割结果
type SegResult struct {
	// 分类ID，例如：
	//	0: person
	//  1: bicycle
	//  2: car
	// 详细映射参考：
	//	https://github.com/ultralytics/ultralytics/blob/main/ultralytics/cfg/datasets/coco.yaml
	ClassID int
	Score   float32
	Box     image.Rectangle // 分割出的矩形区域
	Mask    *image.Gray     // 解码后的 Mask
}
