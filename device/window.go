package device

import (
	"fmt"
	"image"
	"time"

	"github.com/getcharzp/go-backdrop/pipeline"
	"gocv.io/x/gocv"
)

// Window OpenCV 窗口
type Window struct {
	window *gocv.Window
	shown  bool
}

// NewWindow 创建窗口
func NewWindow(title string) *Window {
	return &Window{window: gocv.NewWindow(title)}
}

// Show 显示一帧, 窗口被用户关闭时返回 pipeline.ErrDisplayClosed
func (w *Window) Show(img image.Image) error {
	// 窗口显示过之后不可见, 说明被用户关闭
	if !w.window.IsOpen() || (w.shown && w.window.GetWindowProperty(gocv.WindowPropertyVisible) < 1) {
		return pipeline.ErrDisplayClosed
	}
	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return fmt.Errorf("转换帧失败: %w", err)
	}
	defer mat.Close()

	w.window.IMShow(mat)
	w.shown = true
	return nil
}

// PollKey 等待按键, 没有按键时返回 -1
func (w *Window) PollKey(d time.Duration) int {
	ms := int(d.Milliseconds())
	if ms < 1 {
		ms = 1
	}
	key := w.window.WaitKey(ms)
	if key < 0 {
		return -1
	}
	return key & 0xFF
}

// Close 关闭窗口
func (w *Window) Close() error {
	return w.window.Close()
}

var (
	_ pipeline.Source  = (*Camera)(nil)
	_ pipeline.Display = (*Window)(nil)
)
