package composite

import (
	"errors"
	"fmt"
	"image"
	"image/draw"

	"github.com/getcharzp/go-backdrop/mask"
	"github.com/nfnt/resize"
)

var (
	// ErrCompositing 合成失败, 调用方应跳过当前帧
	ErrCompositing = errors.New("compositing failed")
	// ErrBackgroundUnavailable 替换模式下没有可用的背景图
	ErrBackgroundUnavailable = fmt.Errorf("background unavailable: %w", ErrCompositing)
	// ErrDimensionMismatch 图像与 Mask 尺寸不一致
	ErrDimensionMismatch = fmt.Errorf("dimension mismatch: %w", ErrCompositing)
)

// BlurPolicy 模糊前如何处理前景像素
type BlurPolicy int

const (
	// BlurZeroForeground 模糊前先将前景 (人像) 置零, 人像颜色不会渗入边缘的模糊区域
	BlurZeroForeground BlurPolicy = iota
	// BlurFullFrame 直接模糊整帧
	BlurFullFrame
)

func (p BlurPolicy) String() string {
	switch p {
	case BlurZeroForeground:
		return "zero-foreground"
	case BlurFullFrame:
		return "full-frame"
	default:
		return fmt.Sprintf("BlurPolicy(%d)", int(p))
	}
}

// ParseBlurPolicy 解析模糊策略名称
func ParseBlurPolicy(s string) (BlurPolicy, error) {
	switch s {
	case "zero-foreground":
		return BlurZeroForeground, nil
	case "full-frame":
		return BlurFullFrame, nil
	}
	return 0, fmt.Errorf("未知的模糊策略 '%s', 可选: zero-foreground, full-frame", s)
}

// BlurOptions 背景模糊参数
type BlurOptions struct {
	Kernel int        // 方框核尺寸 (默认 21)
	Border Border     // 边界策略 (默认 reflect101)
	Policy BlurPolicy // 前景处理策略 (默认 zero-foreground)
}

// DefaultBlurOptions 默认模糊参数
func DefaultBlurOptions() BlurOptions {
	return BlurOptions{
		Kernel: 21,
		Border: BorderReflect101,
		Policy: BlurZeroForeground,
	}
}

// Remove 移除背景
//
// 人像像素原样保留, 背景像素全部置零 (透明黑)。
func Remove(frame image.Image, m *image.Gray) (*image.RGBA, error) {
	src, err := prepare(frame, m)
	if err != nil {
		return nil, err
	}
	return blend(src, nil, m), nil
}

// Replace 替换背景
//
// 背景图被拉伸 (不保持比例, 不留黑边) 到与 frame 相同的尺寸。
//
// # Params:
//
//	frame: 当前帧
//	background: 背景图, 为 nil 时返回 ErrBackgroundUnavailable
//	m: 人像 Mask
//	interp: 缩放插值方式
func Replace(frame, background image.Image, m *image.Gray, interp resize.InterpolationFunction) (*image.RGBA, error) {
	src, err := prepare(frame, m)
	if err != nil {
		return nil, err
	}
	if background == nil {
		return nil, ErrBackgroundUnavailable
	}
	bg := Stretch(background, src.Rect.Dx(), src.Rect.Dy(), interp)
	return blend(src, bg, m), nil
}

// Blur 模糊背景
func Blur(frame image.Image, m *image.Gray, opts BlurOptions) (*image.RGBA, error) {
	src, err := prepare(frame, m)
	if err != nil {
		return nil, err
	}
	return blurWith(src, m, opts)
}

func blurWith(src *image.RGBA, m *image.Gray, opts BlurOptions) (*image.RGBA, error) {
	input := src
	if opts.Policy == BlurZeroForeground {
		input = zeroForeground(src, m)
	}
	blurred, err := BoxBlur(input, opts.Kernel, opts.Border)
	if err != nil {
		return nil, err
	}
	return blend(src, blurred, m), nil
}

// Stretch 将图片拉伸到 w x h, 尺寸相同时只做拷贝
func Stretch(img image.Image, w, h int, interp resize.InterpolationFunction) *image.RGBA {
	b := img.Bounds()
	if b.Dx() == w && b.Dy() == h {
		return cloneRGBA(img)
	}
	return toRGBA(resize.Resize(uint(w), uint(h), img, interp))
}

// prepare 校验尺寸并将 frame 统一为原点在 (0, 0) 的 RGBA
func prepare(frame image.Image, m *image.Gray) (*image.RGBA, error) {
	if frame == nil {
		return nil, fmt.Errorf("图像为空: %w", ErrCompositing)
	}
	if err := mask.CheckBounds(frame.Bounds(), m); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDimensionMismatch, err)
	}
	return toRGBA(frame), nil
}

// blend 按 Mask 逐像素选择: 人像取 src, 背景取 fill (fill 为 nil 时置零)
func blend(src, fill *image.RGBA, m *image.Gray) *image.RGBA {
	w, h := src.Rect.Dx(), src.Rect.Dy()
	dst := image.NewRGBA(image.Rect(0, 0, w, h))

	for y := 0; y < h; y++ {
		mo := m.PixOffset(m.Rect.Min.X, m.Rect.Min.Y+y)
		mrow := m.Pix[mo : mo+w]
		srow := src.Pix[y*src.Stride : y*src.Stride+w*4]
		drow := dst.Pix[y*dst.Stride : y*dst.Stride+w*4]

		var frow []uint8
		if fill != nil {
			frow = fill.Pix[y*fill.Stride : y*fill.Stride+w*4]
		}

		for x, mv := range mrow {
			o := x * 4
			switch {
			case mv != mask.Background:
				copy(drow[o:o+4], srow[o:o+4])
			case frow != nil:
				copy(drow[o:o+4], frow[o:o+4])
			}
		}
	}
	return dst
}

// zeroForeground 拷贝一份 src, 并将人像像素的颜色通道置零 (alpha 保留)
func zeroForeground(src *image.RGBA, m *image.Gray) *image.RGBA {
	out := cloneRGBA(src)
	w, h := out.Rect.Dx(), out.Rect.Dy()
	for y := 0; y < h; y++ {
		mo := m.PixOffset(m.Rect.Min.X, m.Rect.Min.Y+y)
		row := out.Pix[y*out.Stride:]
		for x := 0; x < w; x++ {
			if m.Pix[mo+x] != mask.Background {
				o := x * 4
				row[o], row[o+1], row[o+2] = 0, 0, 0
			}
		}
	}
	return out
}

// toRGBA 返回原点在 (0, 0) 的 RGBA, 已满足条件时直接返回 (只读使用)
func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok && rgba.Rect.Min == (image.Point{}) {
		return rgba
	}
	return cloneRGBA(img)
}

func cloneRGBA(img image.Image) *image.RGBA {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}
