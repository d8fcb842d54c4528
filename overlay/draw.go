package overlay

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"os"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

// TextDrawer 文本绘制工具
type TextDrawer struct {
	font     *opentype.Font
	face     font.Face
	fontSize float64
}

// NewTextDrawer 创建文本绘制工具
//
// # Params:
//
//	fontPath: 字体路径, 为空时使用内置的 Go Regular 字体
func NewTextDrawer(fontPath string) (*TextDrawer, error) {
	fontBytes := goregular.TTF
	if fontPath != "" {
		b, err := os.ReadFile(fontPath)
		if err != nil {
			return nil, fmt.Errorf("打开字体文件失败：%w", err)
		}
		fontBytes = b
	}

	ttFont, err := opentype.Parse(fontBytes)
	if err != nil {
		return nil, fmt.Errorf("解析字体文件失败：%w", err)
	}

	d := &TextDrawer{font: ttFont}
	if err := d.SetSize(16); err != nil {
		return nil, err
	}
	return d, nil
}

// SetSize 动态调整字体大小
//
// # Params:
//
//	fontSize: 字体大小
func (d *TextDrawer) SetSize(fontSize float64) error {
	if d.face != nil && d.fontSize == fontSize {
		return nil
	}

	nf, err := opentype.NewFace(d.font, &opentype.FaceOptions{
		Size:    fontSize,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return err
	}

	// 释放旧 Face 内存
	if d.face != nil {
		d.face.Close()
	}
	d.face = nf
	d.fontSize = fontSize
	return nil
}

// DrawText 绘制文本, (x, y) 为基线起点
func (d *TextDrawer) DrawText(img draw.Image, text string, x, y int, c color.Color) {
	d1 := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: d.face,
		Dot:  fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y)},
	}
	d1.DrawString(text)
}

// Measure 文本绘制后的宽度与行高 (像素)
func (d *TextDrawer) Measure(text string) (width, lineHeight int) {
	m := d.face.Metrics()
	w := font.MeasureString(d.face, text)
	return w.Ceil(), (m.Ascent + m.Descent).Ceil()
}

// DrawPanel 在左上角 origin 处绘制多行文本, bg 非 nil 时先铺一层底色
//
// # Params:
//
//	img: 被绘制的图像
//	lines: 每行文本
//	origin: 面板左上角
//	fg: 文字颜色
//	bg: 底色, 可带透明度
func (d *TextDrawer) DrawPanel(img draw.Image, lines []string, origin image.Point, fg, bg color.Color) image.Rectangle {
	if len(lines) == 0 {
		return image.Rectangle{}
	}

	const pad = 4
	ascent := d.face.Metrics().Ascent.Ceil()

	width, lineHeight := 0, 0
	for _, l := range lines {
		w, h := d.Measure(l)
		width = max(width, w)
		lineHeight = max(lineHeight, h)
	}

	panel := image.Rect(0, 0, width+2*pad, lineHeight*len(lines)+2*pad).Add(origin)
	panel = panel.Intersect(img.Bounds())
	if bg != nil {
		draw.Draw(img, panel, image.NewUniform(bg), image.Point{}, draw.Over)
	}

	for i, l := range lines {
		d.DrawText(img, l, origin.X+pad, origin.Y+pad+ascent+i*lineHeight, fg)
	}
	return panel
}

// Close 释放资源
func (d *TextDrawer) Close() {
	if d.face != nil {
		d.face.Close()
		d.face = nil
	}
}
