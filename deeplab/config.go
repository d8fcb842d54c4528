package deeplab

import "github.com/getcharzp/go-backdrop"

// PersonLabel Pascal VOC 类别表中 "person" 的类别 ID
//
//	0: background
//	...
//	15: person
//	...
//	20: tvmonitor
const PersonLabel = 15

// Config 引擎的初始化参数
type Config struct {
	ModelPath          string // ONNX 模型路径
	OnnxRuntimeLibPath string // ONNX Runtime 动态库路径

	// 模型参数
	InputSize  int        // 输入边长, 默认 520
	NumClasses int        // 类别数, 默认 21 (Pascal VOC)
	Mean       [3]float32 // RGB 均值
	Std        [3]float32 // RGB 标准差

	// 可选参数
	UseCuda    bool // (可选) 是否启用 CUDA
	NumThreads int  // (可选) ONNX 线程数, 默认由CPU核心数决定
}

// DefaultConfig 默认配置 (torchvision deeplabv3 导出的 ONNX 模型)
func DefaultConfig() Config {
	return Config{
		ModelPath:          "./deeplab_weights/deeplabv3.onnx",
		OnnxRuntimeLibPath: backdrop.DefaultLibraryPath(),
		InputSize:          520,
		NumClasses:         21,
		Mean:               [3]float32{0.485, 0.456, 0.406},
		Std:                [3]float32{0.229, 0.224, 0.225},
	}
}
