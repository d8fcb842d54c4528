package composite

import (
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/getcharzp/go-backdrop/mask"
	"github.com/nfnt/resize"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	red  = color.RGBA{R: 255, A: 255}
	blue = color.RGBA{B: 255, A: 255}
)

func uniformRGBA(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), image.NewUniform(c), image.Point{}, draw.Src)
	return img
}

func gradientRGBA(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{R: uint8(x * 17), G: uint8(y * 23), B: uint8((x + y) * 5), A: 255})
		}
	}
	return img
}

// checkerMask 人像与背景交替的 Mask
func checkerMask(w, h int) *image.Gray {
	m := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if (x+y)%2 == 0 {
				m.SetGray(x, y, color.Gray{Y: mask.Foreground})
			}
		}
	}
	return m
}

func TestRemove_Scenarios(t *testing.T) {
	frame := uniformRGBA(4, 4, red)

	t.Run("标签全为 15", func(t *testing.T) {
		m, err := mask.ExtractPersonMask(mask.NewLabelMap(4, 4, 15), 15)
		require.NoError(t, err)

		out, err := Remove(frame, m)
		require.NoError(t, err)
		assert.Equal(t, frame.Pix, out.Pix)
	})

	t.Run("标签全为 0", func(t *testing.T) {
		m, err := mask.ExtractPersonMask(mask.NewLabelMap(4, 4, 0), 15)
		require.NoError(t, err)

		out, err := Remove(frame, m)
		require.NoError(t, err)
		assert.Equal(t, image.Rect(0, 0, 4, 4), out.Rect)
		for _, v := range out.Pix {
			assert.Zero(t, v)
		}
	})
}

func TestRemove_Checker(t *testing.T) {
	frame := gradientRGBA(6, 5)
	m := checkerMask(6, 5)

	out, err := Remove(frame, m)
	require.NoError(t, err)
	for y := 0; y < 5; y++ {
		for x := 0; x < 6; x++ {
			if mask.IsForeground(m, x, y) {
				assert.Equal(t, frame.RGBAAt(x, y), out.RGBAAt(x, y))
			} else {
				assert.Equal(t, color.RGBA{}, out.RGBAAt(x, y))
			}
		}
	}
}

func TestReplace(t *testing.T) {
	frame := gradientRGBA(8, 6)

	t.Run("全背景时输出等于拉伸后的背景", func(t *testing.T) {
		bg := gradientRGBA(13, 3)
		out, err := Replace(frame, bg, mask.Uniform(frame.Rect, false), resize.NearestNeighbor)
		require.NoError(t, err)

		want := Stretch(bg, 8, 6, resize.NearestNeighbor)
		assert.Equal(t, want.Pix, out.Pix)
	})

	t.Run("背景与帧相同", func(t *testing.T) {
		out, err := Replace(frame, frame, mask.Uniform(frame.Rect, false), resize.Bilinear)
		require.NoError(t, err)
		assert.Equal(t, frame.Pix, out.Pix)
	})

	t.Run("纯色背景被拉伸", func(t *testing.T) {
		out, err := Replace(frame, uniformRGBA(3, 2, blue), mask.Uniform(frame.Rect, false), resize.NearestNeighbor)
		require.NoError(t, err)
		for y := 0; y < 6; y++ {
			for x := 0; x < 8; x++ {
				assert.Equal(t, blue, out.RGBAAt(x, y))
			}
		}
	})

	t.Run("全人像时输出等于原帧", func(t *testing.T) {
		out, err := Replace(frame, uniformRGBA(3, 2, blue), mask.Uniform(frame.Rect, true), resize.Bilinear)
		require.NoError(t, err)
		assert.Equal(t, frame.Pix, out.Pix)
	})

	t.Run("背景为空", func(t *testing.T) {
		_, err := Replace(frame, nil, mask.Uniform(frame.Rect, false), resize.Bilinear)
		assert.ErrorIs(t, err, ErrBackgroundUnavailable)
		assert.ErrorIs(t, err, ErrCompositing)
	})
}

func TestBlur_AllForeground(t *testing.T) {
	frame := gradientRGBA(30, 25)
	out, err := Blur(frame, mask.Uniform(frame.Rect, true), DefaultBlurOptions())
	require.NoError(t, err)
	assert.Equal(t, frame.Pix, out.Pix)
}

func TestBlur_UniformBackground(t *testing.T) {
	frame := uniformRGBA(12, 7, color.RGBA{R: 100, G: 150, B: 200, A: 255})
	for _, border := range []Border{BorderReflect101, BorderReplicate} {
		opts := DefaultBlurOptions()
		opts.Border = border
		out, err := Blur(frame, mask.Uniform(frame.Rect, false), opts)
		require.NoError(t, err)
		assert.Equal(t, frame.Pix, out.Pix, "border=%s", border)
	}
}

func TestBlur_Policy(t *testing.T) {
	// 第 0 列为人像 (R=200), 其余为黑色背景
	frame := uniformRGBA(5, 1, color.RGBA{A: 255})
	frame.SetRGBA(0, 0, color.RGBA{R: 200, A: 255})
	m := image.NewGray(frame.Rect)
	m.SetGray(0, 0, color.Gray{Y: mask.Foreground})

	tests := []struct {
		policy BlurPolicy
		wantR1 uint8
	}{
		{policy: BlurZeroForeground, wantR1: 0},
		{policy: BlurFullFrame, wantR1: 67}, // (200*3 + 4) / 9
	}

	for _, tt := range tests {
		t.Run(tt.policy.String(), func(t *testing.T) {
			out, err := Blur(frame, m, BlurOptions{Kernel: 3, Border: BorderReflect101, Policy: tt.policy})
			require.NoError(t, err)
			assert.Equal(t, uint8(200), out.RGBAAt(0, 0).R, "人像像素保持不变")
			assert.Equal(t, tt.wantR1, out.RGBAAt(1, 0).R)
			assert.Equal(t, uint8(255), out.RGBAAt(1, 0).A)
		})
	}
}

func TestCompositing_Purity(t *testing.T) {
	frame := gradientRGBA(9, 7)
	bg := gradientRGBA(4, 4)
	m := checkerMask(9, 7)

	frameCopy := append([]uint8(nil), frame.Pix...)
	maskCopy := append([]uint8(nil), m.Pix...)

	run := func() ([]uint8, []uint8) {
		r, err := Replace(frame, bg, m, resize.Bilinear)
		require.NoError(t, err)
		d, err := Remove(frame, m)
		require.NoError(t, err)
		return r.Pix, d.Pix
	}

	r1, d1 := run()
	r2, d2 := run()
	assert.Equal(t, r1, r2)
	assert.Equal(t, d1, d2)
	assert.Equal(t, maskCopy, m.Pix)
	assert.Equal(t, frameCopy, frame.Pix)

	_, err := Blur(frame, m, DefaultBlurOptions())
	require.NoError(t, err)
	assert.Equal(t, maskCopy, m.Pix)
	assert.Equal(t, frameCopy, frame.Pix)
}

func TestCompositing_DimensionMismatch(t *testing.T) {
	frame := gradientRGBA(4, 4)
	m := mask.Uniform(image.Rect(0, 0, 4, 3), true)

	_, err := Remove(frame, m)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
	assert.ErrorIs(t, err, ErrCompositing)
	assert.ErrorIs(t, err, mask.ErrInvalidInput)

	_, err = Replace(frame, frame, m, resize.Bilinear)
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	_, err = Blur(frame, m, DefaultBlurOptions())
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	_, err = Remove(frame, nil)
	assert.ErrorIs(t, err, ErrCompositing)
}

func TestCompositing_SubImage(t *testing.T) {
	full := gradientRGBA(10, 10)
	sub := full.SubImage(image.Rect(3, 2, 7, 6))
	m := mask.Uniform(image.Rect(0, 0, 4, 4), true)

	out, err := Remove(sub, m)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 4, 4), out.Rect)
	assert.Equal(t, full.RGBAAt(3, 2), out.RGBAAt(0, 0))
	assert.Equal(t, full.RGBAAt(6, 5), out.RGBAAt(3, 3))
}

func TestCompositor(t *testing.T) {
	frame := gradientRGBA(8, 6)
	bgMask := mask.Uniform(frame.Rect, false)

	t.Run("无背景", func(t *testing.T) {
		c := NewCompositor(nil, DefaultOptions())
		assert.False(t, c.HasBackground())
		_, err := c.Replace(frame, bgMask)
		assert.ErrorIs(t, err, ErrBackgroundUnavailable)

		out, err := c.Remove(frame, bgMask)
		require.NoError(t, err)
		assert.Len(t, out.Pix, 8*6*4)
	})

	t.Run("背景缓存", func(t *testing.T) {
		opts := DefaultOptions()
		opts.Interpolation = resize.NearestNeighbor
		c := NewCompositor(uniformRGBA(3, 3, blue), opts)
		require.True(t, c.HasBackground())

		for i := 0; i < 3; i++ {
			out, err := c.Replace(frame, bgMask)
			require.NoError(t, err)
			assert.Equal(t, blue, out.RGBAAt(7, 5))
		}
		assert.Equal(t, 1, c.Background().Misses())

		small := gradientRGBA(4, 4)
		_, err := c.Replace(small, mask.Uniform(small.Rect, false))
		require.NoError(t, err)
		assert.Equal(t, 2, c.Background().Misses())

		_, err = c.Replace(frame, bgMask)
		require.NoError(t, err)
		assert.Equal(t, 3, c.Background().Misses())
	})

	t.Run("模糊", func(t *testing.T) {
		c := NewCompositor(nil, DefaultOptions())
		want, err := Blur(frame, checkerMask(8, 6), DefaultBlurOptions())
		require.NoError(t, err)
		got, err := c.Blur(frame, checkerMask(8, 6))
		require.NoError(t, err)
		assert.Equal(t, want.Pix, got.Pix)
	})
}

func TestLoadBackground(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bg.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, uniformRGBA(5, 3, blue)))
	require.NoError(t, f.Close())

	img, err := LoadBackground(path)
	require.NoError(t, err)
	assert.Equal(t, 5, img.Bounds().Dx())
	assert.Equal(t, 3, img.Bounds().Dy())

	_, err = LoadBackground(filepath.Join(dir, "missing.png"))
	assert.ErrorIs(t, err, ErrBackgroundUnavailable)

	_, err = LoadBackground("")
	assert.ErrorIs(t, err, ErrBackgroundUnavailable)
}
