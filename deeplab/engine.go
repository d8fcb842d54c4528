package deeplab

import (
	"fmt"
	"image"

	"github.com/getcharzp/go-backdrop"
	"github.com/getcharzp/go-backdrop/mask"
	"github.com/up-zero/gotool/convertutil"
	ort "github.com/yalue/onnxruntime_go"
)

// Engine DeepLabV3 语义分割引擎
type Engine struct {
	session     *ort.DynamicAdvancedSession
	onnx        *backdrop.OnnxConfig
	outputNames []string
	config      Config
}

// NewEngine 初始化分割引擎
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.InputSize <= 0 {
		return nil, fmt.Errorf("InputSize 非法: %d", cfg.InputSize)
	}
	if cfg.NumClasses <= 0 || cfg.NumClasses > invalidGray {
		return nil, fmt.Errorf("NumClasses 非法: %d", cfg.NumClasses)
	}

	oc := new(backdrop.OnnxConfig)
	if err := convertutil.CopyProperties(cfg, oc); err != nil {
		return nil, fmt.Errorf("复制参数失败: %w", err)
	}
	// 初始化 ONNX
	if err := oc.New(); err != nil {
		return nil, err
	}

	// 创建 Session
	session, outputNames, err := oc.NewSession(cfg.ModelPath)
	if err != nil {
		oc.Destroy()
		return nil, err
	}

	return &Engine{
		session:     session,
		onnx:        oc,
		outputNames: outputNames,
		config:      cfg,
	}, nil
}

// Destroy 释放相关资源
func (e *Engine) Destroy() {
	if e.session != nil {
		e.session.Destroy()
		e.session = nil
	}
	if e.onnx != nil {
		e.onnx.Destroy()
	}
}

// NumClasses 模型类别数
func (e *Engine) NumClasses() int {
	return e.config.NumClasses
}

// Predict 执行分割推理, 返回与原图同尺寸的标签图
func (e *Engine) Predict(img image.Image) (*mask.LabelMap, error) {
	bounds := img.Bounds()
	origW, origH := bounds.Dx(), bounds.Dy()
	if origW == 0 || origH == 0 {
		return nil, fmt.Errorf("图片尺寸为空: %w", mask.ErrInvalidInput)
	}

	// 预处理
	size := e.config.InputSize
	data := preprocess(img, size, e.config.Mean, e.config.Std)
	inputTensor, err := ort.NewTensor(ort.NewShape(1, 3, int64(size), int64(size)), data)
	if err != nil {
		return nil, fmt.Errorf("创建 Input Tensor 失败: %w", err)
	}
	defer inputTensor.Destroy()

	// 推理
	outputs := make([]ort.Value, len(e.outputNames))
	if err := e.session.Run([]ort.Value{inputTensor}, outputs); err != nil {
		return nil, fmt.Errorf("推理失败: %w", err)
	}
	defer func() {
		for _, o := range outputs {
			if o != nil {
				o.Destroy()
			}
		}
	}()

	// 后处理: 只使用主输出 (torchvision 导出时可能附带 aux 输出)
	labels, w, h, err := decodeOutput(outputs[0], e.config.NumClasses)
	if err != nil {
		return nil, err
	}
	return scaleLabels(labels, w, h, origW, origH), nil
}

// decodeOutput 解析模型输出
//
// 支持两种输出:
//
//	[1, C, H, W] float32 logits, 逐像素取 argmax
//	[1, H, W] / [1, 1, H, W] 已经 argmax 的类别 (float32 或 int64)
func decodeOutput(out ort.Value, numClasses int) ([]int, int, int, error) {
	shape := out.GetShape()

	var c, h, w int
	switch len(shape) {
	case 3:
		c, h, w = 1, int(shape[1]), int(shape[2])
	case 4:
		c, h, w = int(shape[1]), int(shape[2]), int(shape[3])
	default:
		return nil, 0, 0, fmt.Errorf("不支持的输出形状 %v", shape)
	}

	switch t := out.(type) {
	case *ort.Tensor[float32]:
		data := t.GetData()
		if c == 1 {
			return roundLabels(data, numClasses), w, h, nil
		}
		if c != numClasses {
			return nil, 0, 0, fmt.Errorf("输出通道数(%d)与类别数(%d)不匹配", c, numClasses)
		}
		return argmaxLabels(data, c, h, w), w, h, nil
	case *ort.Tensor[int64]:
		if c != 1 {
			return nil, 0, 0, fmt.Errorf("int64 输出应为单通道, 实际形状 %v", shape)
		}
		return int64Labels(t.GetData()), w, h, nil
	default:
		return nil, 0, 0, fmt.Errorf("不支持的输出类型 %T", out)
	}
}
