package mask

import (
	"image"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractPersonMask(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	labels := NewLabelMap(17, 9, 0)
	for i := range labels.Labels {
		labels.Labels[i] = rng.Intn(21)
	}
	orig := append([]int(nil), labels.Labels...)

	for _, personLabel := range []int{0, 7, 15, 20, 99} {
		m, err := ExtractPersonMask(labels, personLabel)
		require.NoError(t, err)
		assert.Equal(t, labels.Bounds(), m.Rect)

		for y := 0; y < labels.Height; y++ {
			for x := 0; x < labels.Width; x++ {
				want := labels.At(x, y) == personLabel
				assert.Equal(t, want, IsForeground(m, x, y), "label=%d pixel=(%d,%d)", personLabel, x, y)
			}
		}
	}

	assert.Equal(t, orig, labels.Labels, "标签图不应被修改")
}

func TestExtractPersonMask_Uniform(t *testing.T) {
	tests := []struct {
		name  string
		fill  int
		wantY uint8
	}{
		{name: "全部为人像", fill: 15, wantY: Foreground},
		{name: "全部为背景", fill: 0, wantY: Background},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := ExtractPersonMask(NewLabelMap(4, 4, tt.fill), 15)
			require.NoError(t, err)
			for _, v := range m.Pix {
				assert.Equal(t, tt.wantY, v)
			}
		})
	}
}

func TestExtractPersonMask_InvalidInput(t *testing.T) {
	tests := []struct {
		name   string
		labels *LabelMap
	}{
		{name: "nil", labels: nil},
		{name: "零宽度", labels: &LabelMap{Width: 0, Height: 3}},
		{name: "零高度", labels: &LabelMap{Width: 3, Height: 0}},
		{name: "长度不匹配", labels: &LabelMap{Width: 2, Height: 2, Labels: []int{1, 2, 3}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := ExtractPersonMask(tt.labels, 15)
			assert.Nil(t, m)
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}
}

func TestValidateLabel(t *testing.T) {
	assert.NoError(t, ValidateLabel(15, 21))
	assert.NoError(t, ValidateLabel(0, 80))
	assert.ErrorIs(t, ValidateLabel(21, 21), ErrInvalidInput)
	assert.ErrorIs(t, ValidateLabel(-1, 21), ErrInvalidInput)
	assert.ErrorIs(t, ValidateLabel(0, 0), ErrInvalidInput)
}

func TestCheckBounds(t *testing.T) {
	m := Uniform(image.Rect(0, 0, 4, 3), true)
	assert.NoError(t, CheckBounds(image.Rect(10, 10, 14, 13), m))
	assert.ErrorIs(t, CheckBounds(image.Rect(0, 0, 3, 4), m), ErrInvalidInput)
	assert.ErrorIs(t, CheckBounds(image.Rect(0, 0, 4, 3), nil), ErrInvalidInput)
}

func TestLabelMap_AtSet(t *testing.T) {
	l := NewLabelMap(3, 2, 1)
	l.Set(2, 1, 15)
	l.Set(5, 5, 15)

	assert.Equal(t, 15, l.At(2, 1))
	assert.Equal(t, 1, l.At(0, 0))
	assert.Equal(t, -1, l.At(3, 0))
	assert.Equal(t, -1, l.At(-1, 0))
}
