package yoloseg

import (
	"fmt"
	"image"

	"github.com/getcharzp/go-backdrop"
	"github.com/getcharzp/go-backdrop/mask"
	"github.com/up-zero/gotool/convertutil"
	ort "github.com/yalue/onnxruntime_go"
)

// Engine YOLO 实例分割引擎, 输出整帧的类别图
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
	if len(outputNames) < 2 {
		session.Destroy()
		oc.Destroy()
		return nil, fmt.Errorf("分割模型应有 2 个输出, 实际为 %d 个", len(outputNames))
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

// Predict 执行分割推理, 将所有实例绘制到一张类别图上
//
// 未被任何实例覆盖的像素为 -1。
func (e *Engine) Predict(img image.Image) (*mask.LabelMap, error) {
	results, err := e.Detect(img)
	if err != nil {
		return nil, err
	}
	b := img.Bounds()
	return paintLabels(results, b.Dx(), b.Dy()), nil
}

// Detect 执行实例分割推理
func (e *Engine) Detect(img image.Image) ([]SegResult, error) {
	b := img.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return nil, fmt.Errorf("图片尺寸为空: %w", mask.ErrInvalidInput)
	}

	// 预处理
	data, params := preprocess(img, e.config.InputSize)
	size := int64(e.config.InputSize)
	inputTensor, err := ort.NewTensor(ort.NewShape(1, 3, size, size), data)
	if err != nil {
		return nil, fmt.Errorf("预处理失败: %w", err)
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

	// output0: Detections
	// output1: Mask Protos [1, 32, 160, 160]
	i0, i1 := outputIndex(e.outputNames, "output0", 0), outputIndex(e.outputNames, "output1", 1)
	out0, ok := outputs[i0].(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("不支持的输出类型 %T", outputs[i0])
	}
	out1, ok := outputs[i1].(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("不支持的输出类型 %T", outputs[i1])
	}

	// 后处理
	return postprocess(e.config, out0.GetData(), out0.GetShape(), out1.GetData(), out1.GetShape(), params)
}

// outputIndex 按名称查找输出位置, 找不到时使用 fallback
func outputIndex(names []string, name string, fallback int) int {
	for i, n := range names {
		if n == name {
			return i
		}
	}
	return fallback
}

// postprocess 后处理
func postprocess(cfg Config, data0 []float32, shape0 ort.Shape, data1 []float32, shape1 ort.Shape, params imageParams) ([]SegResult, error) {
	if len(shape0) != 3 {
		return nil, fmt.Errorf("检测输出形状非法 %v", shape0)
	}
	if len(shape1) != 4 {
		return nil, fmt.Errorf("Mask 原型输出形状非法 %v", shape1)
	}
	protoC, protoH, protoW := int(shape1[1]), int(shape1[2]), int(shape1[3])
	if protoC != cfg.NumMaskCoeffs {
		return nil, fmt.Errorf("Mask 原型通道数(%d)与系数个数(%d)不匹配", protoC, cfg.NumMaskCoeffs)
	}

	var (
		candidates []candidate
		err        error
	)
	switch cfg.Layout {
	case LayoutV11:
		// [1, 116, 8400]
		candidates, err = parseCandidatesV11(cfg, data0, int(shape0[1]), int(shape0[2]), params)
		if err != nil {
			return nil, err
		}
		kept := nms(candidates, cfg.IOUThreshold)
		filtered := make([]candidate, 0, len(kept))
		for _, idx := range kept {
			filtered = append(filtered, candidates[idx])
		}
		candidates = filtered
	case Layout26:
		// [1, 300, 38]
		candidates, err = parseCandidates26(cfg, data0, int(shape0[1]), int(shape0[2]), params)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("未知的输出排布 %s", cfg.Layout)
	}

	results := make([]SegResult, 0, len(candidates))
	for _, cand := range candidates {
		results = append(results, SegResult{
			ClassID: cand.classID,
			Score:   cand.score,
			Box:     cand.origBox,
			Mask:    decodeMask(cfg, cand, data1, protoC, protoH, protoW, params),
		})
	}
	return results, nil
}
