package deeplab

import (
	"image"
	"image/color"
	"testing"

	"github.com/getcharzp/go-backdrop/mask"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArgmaxLabels(t *testing.T) {
	// C=3, H=1, W=4
	data := []float32{
		0.9, 0.1, 0.0, -1, // class 0
		0.0, 0.8, 0.1, -2, // class 1
		0.1, 0.1, 0.7, -3, // class 2
	}
	assert.Equal(t, []int{0, 1, 2, 0}, argmaxLabels(data, 3, 1, 4))
}

func TestRoundLabels(t *testing.T) {
	assert.Equal(t, []int{15, 0, -1, -1, 20}, roundLabels([]float32{14.6, 0.2, -3, 21, 20}, 21))
	assert.Equal(t, []int{15, 3}, int64Labels([]int64{15, 3}))
}

func TestScaleLabels(t *testing.T) {
	t.Run("同尺寸直接复制", func(t *testing.T) {
		lm := scaleLabels([]int{1, 2, 3, 4}, 2, 2, 2, 2)
		require.NoError(t, lm.Validate())
		assert.Equal(t, []int{1, 2, 3, 4}, lm.Labels)
	})

	t.Run("2x2 放大到 4x4", func(t *testing.T) {
		lm := scaleLabels([]int{0, 15, 15, 0}, 2, 2, 4, 4)
		require.NoError(t, lm.Validate())
		for y := 0; y < 4; y++ {
			for x := 0; x < 4; x++ {
				want := 0
				if (x < 2) != (y < 2) {
					want = 15
				}
				assert.Equal(t, want, lm.At(x, y), "(%d, %d)", x, y)
			}
		}
	})

	t.Run("无效类别保持为 -1", func(t *testing.T) {
		lm := scaleLabels([]int{-1, 3}, 2, 1, 4, 2)
		assert.Equal(t, -1, lm.At(0, 0))
		assert.Equal(t, -1, lm.At(1, 1))
		assert.Equal(t, 3, lm.At(3, 1))
	})

	t.Run("缩放后可提取人像", func(t *testing.T) {
		lm := scaleLabels([]int{PersonLabel, 0}, 2, 1, 6, 3)
		m, err := mask.ExtractPersonMask(lm, PersonLabel)
		require.NoError(t, err)
		assert.True(t, mask.IsForeground(m, 0, 0))
		assert.False(t, mask.IsForeground(m, 5, 2))
	})
}

func TestPreprocess(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 3, 3))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = 255, 0, 255, 255
	}
	img.SetRGBA(1, 1, color.RGBA{R: 255, B: 255, A: 255})

	mean := [3]float32{0.5, 0.5, 0.5}
	std := [3]float32{0.5, 0.5, 0.5}
	data := preprocess(img, 3, mean, std)
	require.Len(t, data, 27)

	for i := 0; i < 9; i++ {
		assert.InDelta(t, 1.0, data[i], 1e-3)    // R
		assert.InDelta(t, -1.0, data[9+i], 1e-3) // G
		assert.InDelta(t, 1.0, data[18+i], 1e-3) // B
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 21, cfg.NumClasses)
	assert.NoError(t, mask.ValidateLabel(PersonLabel, cfg.NumClasses))

	_, err := NewEngine(Config{InputSize: 0, NumClasses: 21})
	assert.Error(t, err)
	_, err = NewEngine(Config{InputSize: 520, NumClasses: 300})
	assert.Error(t, err)
	// 类别 255 与缩放时的无效值冲突
	_, err = NewEngine(Config{InputSize: 520, NumClasses: 256})
	assert.Error(t, err)
}
