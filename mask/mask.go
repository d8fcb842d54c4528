package mask

import (
	"errors"
	"fmt"
	"image"
	"image/color"
)

// ErrInvalidInput 输入的标签图或 Mask 不合法 (空尺寸、尺寸不一致等)
var ErrInvalidInput = errors.New("invalid input")

const (
	// Foreground Mask 中的人像像素值
	Foreground uint8 = 255
	// Background Mask 中的背景像素值
	Background uint8 = 0
)

// LabelMap 分割模型输出的逐像素类别图
type LabelMap struct {
	Width, Height int
	Labels        []int // 行优先存储, len = Width * Height
}

// NewLabelMap 创建指定尺寸的标签图, 所有像素初始化为 fill
func NewLabelMap(w, h, fill int) *LabelMap {
	if w < 0 || h < 0 {
		w, h = 0, 0
	}
	labels := make([]int, w*h)
	if fill != 0 {
		for i := range labels {
			labels[i] = fill
		}
	}
	return &LabelMap{Width: w, Height: h, Labels: labels}
}

// Bounds 标签图的矩形区域, 原点固定为 (0, 0)
func (m *LabelMap) Bounds() image.Rectangle {
	return image.Rect(0, 0, m.Width, m.Height)
}

// At 读取 (x, y) 处的类别, 越界返回 -1
func (m *LabelMap) At(x, y int) int {
	if x < 0 || y < 0 || x >= m.Width || y >= m.Height {
		return -1
	}
	return m.Labels[y*m.Width+x]
}

// Set 设置 (x, y) 处的类别, 越界忽略
func (m *LabelMap) Set(x, y, label int) {
	if x < 0 || y < 0 || x >= m.Width || y >= m.Height {
		return
	}
	m.Labels[y*m.Width+x] = label
}

// Validate 检查标签图是否可用
func (m *LabelMap) Validate() error {
	if m == nil {
		return fmt.Errorf("标签图为空: %w", ErrInvalidInput)
	}
	if m.Width <= 0 || m.Height <= 0 {
		return fmt.Errorf("标签图尺寸非法 %dx%d: %w", m.Width, m.Height, ErrInvalidInput)
	}
	if len(m.Labels) != m.Width*m.Height {
		return fmt.Errorf("标签数量(%d)与尺寸 %dx%d 不匹配: %w", len(m.Labels), m.Width, m.Height, ErrInvalidInput)
	}
	return nil
}

// ExtractPersonMask 从标签图中提取人像 Mask
//
// 标签等于 personLabel 的像素为 255, 其余为 0。不修改输入。
//
// # Params:
//
//	labels: 分割模型输出的标签图
//	personLabel: 模型类别表中 "人" 对应的类别 ID
func ExtractPersonMask(labels *LabelMap, personLabel int) (*image.Gray, error) {
	if err := labels.Validate(); err != nil {
		return nil, err
	}

	m := image.NewGray(labels.Bounds())
	for i, l := range labels.Labels {
		if l == personLabel {
			m.Pix[i] = Foreground
		}
	}
	return m, nil
}

// ValidateLabel 检查 personLabel 是否落在模型的类别范围内
//
// # Params:
//
//	label: 人像类别 ID
//	numClasses: 模型类别总数
func ValidateLabel(label, numClasses int) error {
	if numClasses <= 0 {
		return fmt.Errorf("类别总数非法: %d: %w", numClasses, ErrInvalidInput)
	}
	if label < 0 || label >= numClasses {
		return fmt.Errorf("人像类别 %d 超出范围 [0, %d): %w", label, numClasses, ErrInvalidInput)
	}
	return nil
}

// CheckBounds 检查图像与 Mask 尺寸是否一致
func CheckBounds(frame image.Rectangle, m *image.Gray) error {
	if m == nil {
		return fmt.Errorf("mask 为空: %w", ErrInvalidInput)
	}
	if frame.Dx() != m.Rect.Dx() || frame.Dy() != m.Rect.Dy() {
		return fmt.Errorf("尺寸不一致: 图像 %dx%d, mask %dx%d: %w",
			frame.Dx(), frame.Dy(), m.Rect.Dx(), m.Rect.Dy(), ErrInvalidInput)
	}
	return nil
}

// IsForeground 判断 Mask 中 (x, y) 是否为人像, x/y 相对 Mask 的左上角
func IsForeground(m *image.Gray, x, y int) bool {
	return m.GrayAt(m.Rect.Min.X+x, m.Rect.Min.Y+y) != color.Gray{Y: Background}
}

// Uniform 创建一个全人像或全背景的 Mask
func Uniform(r image.Rectangle, foreground bool) *image.Gray {
	m := image.NewGray(r)
	if foreground {
		for i := range m.Pix {
			m.Pix[i] = Foreground
		}
	}
	return m
}
