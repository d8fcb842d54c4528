package yoloseg

import (
	"image"
	"testing"

	"github.com/getcharzp/go-backdrop/mask"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	ort "github.com/yalue/onnxruntime_go"
)

// tinyConfig 8x8 输入, 2 个类别, 1 个 Mask 系数, 原型 2x2
func tinyConfig(layout Layout) Config {
	cfg := DefaultConfig()
	cfg.Layout = layout
	cfg.InputSize = 8
	cfg.NumClasses = 2
	cfg.NumMaskCoeffs = 1
	return cfg
}

func uniformProtos(v float32) ([]float32, ort.Shape) {
	return []float32{v, v, v, v}, ort.Shape{1, 1, 2, 2}
}

var tinyParams = imageParams{origW: 8, origH: 8, scale: 1}

func TestPostprocess_V11(t *testing.T) {
	cfg := tinyConfig(LayoutV11)
	data0 := []float32{
		2, 2.5, 6, // cx
		2, 2, 6, // cy
		4, 4, 4, // w
		4, 4, 4, // h
		0.9, 0.8, 0.1, // class 0
		0.1, 0.0, 0.7, // class 1
		1, 1, 1, // mask coeff
	}
	protos, protoShape := uniformProtos(10)

	results, err := postprocess(cfg, data0, ort.Shape{1, 7, 3}, protos, protoShape, tinyParams)
	require.NoError(t, err)
	require.Len(t, results, 2, "重叠的第二个框应被 NMS 抑制")

	assert.Equal(t, 0, results[0].ClassID)
	assert.InDelta(t, 0.9, results[0].Score, 1e-6)
	assert.Equal(t, image.Rect(0, 0, 4, 4), results[0].Box)
	assert.Equal(t, 1, results[1].ClassID)
	assert.Equal(t, image.Rect(4, 4, 8, 8), results[1].Box)

	lm := paintLabels(results, 8, 8)
	require.NoError(t, lm.Validate())
	assert.Equal(t, 0, lm.At(1, 1))
	assert.Equal(t, 1, lm.At(6, 6))
	assert.Equal(t, -1, lm.At(6, 1))

	m, err := mask.ExtractPersonMask(lm, PersonLabel)
	require.NoError(t, err)
	assert.True(t, mask.IsForeground(m, 3, 3))
	assert.False(t, mask.IsForeground(m, 4, 4))
}

func TestPostprocess_V11ChannelMismatch(t *testing.T) {
	cfg := tinyConfig(LayoutV11)
	protos, protoShape := uniformProtos(10)
	_, err := postprocess(cfg, make([]float32, 18), ort.Shape{1, 6, 3}, protos, protoShape, tinyParams)
	assert.Error(t, err)
}

func TestPostprocess_26(t *testing.T) {
	cfg := tinyConfig(Layout26)
	data0 := []float32{
		0, 0, 6, 6, 0.6, 0, 1, // 人像
		2, 2, 8, 8, 0.9, 1, 1, // 重叠的其他类别, 分数更高
		0, 0, 8, 8, 0.1, 0, 1, // 低于阈值
	}
	protos, protoShape := uniformProtos(10)

	results, err := postprocess(cfg, data0, ort.Shape{1, 3, 7}, protos, protoShape, tinyParams)
	require.NoError(t, err)
	require.Len(t, results, 2)

	lm := paintLabels(results, 8, 8)
	assert.Equal(t, 0, lm.At(0, 0))
	assert.Equal(t, 1, lm.At(3, 3), "重叠区域归属分数更高的实例")
	assert.Equal(t, 1, lm.At(7, 7))
	assert.Equal(t, -1, lm.At(7, 0))
}

func TestPostprocess_MaskThreshold(t *testing.T) {
	cfg := tinyConfig(Layout26)
	data0 := []float32{0, 0, 8, 8, 0.9, 0, 1}
	protos, protoShape := uniformProtos(-10)

	results, err := postprocess(cfg, data0, ort.Shape{1, 1, 7}, protos, protoShape, tinyParams)
	require.NoError(t, err)
	require.Len(t, results, 1)

	lm := paintLabels(results, 8, 8)
	for _, l := range lm.Labels {
		assert.Equal(t, -1, l)
	}
}

func TestPostprocess_BadShapes(t *testing.T) {
	cfg := tinyConfig(Layout26)
	_, err := postprocess(cfg, nil, ort.Shape{1, 7}, nil, ort.Shape{1, 1, 2, 2}, tinyParams)
	assert.Error(t, err)

	_, err = postprocess(cfg, nil, ort.Shape{1, 0, 7}, nil, ort.Shape{1, 4, 2, 2}, tinyParams)
	assert.Error(t, err, "原型通道数与系数个数不一致")
}

func TestComputeIOU(t *testing.T) {
	assert.InDelta(t, 1.0, computeIOU(image.Rect(0, 0, 4, 4), image.Rect(0, 0, 4, 4)), 1e-6)
	assert.InDelta(t, 0.0, computeIOU(image.Rect(0, 0, 2, 2), image.Rect(4, 4, 6, 6)), 1e-6)
	assert.InDelta(t, 1.0/7.0, computeIOU(image.Rect(0, 0, 2, 2), image.Rect(1, 1, 3, 3)), 1e-6)
}

func TestPreprocess_Letterbox(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 4, 2))
	for i := range img.Pix {
		img.Pix[i] = 255
	}
	data, params := preprocess(img, 8)
	assert.Equal(t, float32(2), params.scale)
	assert.Equal(t, 4, params.origW)

	// 上半部分为图像, 下半部分补 0
	assert.InDelta(t, 1.0, data[0], 1e-3)
	assert.InDelta(t, 1.0, data[3*8+7], 1e-3)
	assert.Zero(t, data[4*8])
}

func TestParseLayout(t *testing.T) {
	l, err := ParseLayout("yolo26")
	require.NoError(t, err)
	assert.Equal(t, Layout26, l)

	l, err = ParseLayout("v11")
	require.NoError(t, err)
	assert.Equal(t, LayoutV11, l)

	_, err = ParseLayout("v5")
	assert.Error(t, err)
}
