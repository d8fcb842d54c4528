package stream

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"io"
	"strconv"
	"time"
)

// EncoderConfig ffmpeg 编码参数
type EncoderConfig struct {
	Output string  // 输出文件路径
	Width  int     // 帧宽
	Height int     // 帧高
	FPS    float64 // 帧率 (默认 30)
}

func (c EncoderConfig) args() []string {
	fps := c.FPS
	if fps <= 0 {
		fps = 30
	}
	return []string{
		"-hide_banner", "-loglevel", "error", "-y",
		"-f", "rawvideo", "-pix_fmt", "rgba",
		"-s", fmt.Sprintf("%dx%d", c.Width, c.Height),
		"-r", strconv.FormatFloat(fps, 'f', -1, 64),
		"-i", "-",
		"-pix_fmt", "yuv420p",
		c.Output,
	}
}

// Encoder 把 RGBA 帧写入 ffmpeg 的标准输入, 实现离线渲染的 Display
type Encoder struct {
	w      io.WriteCloser
	cmd    *SafeCommand
	width  int
	height int
	buf    *image.RGBA
	frames int
}

// NewRawWriter 直接把紧密排列的 RGBA 数据写入 w
func NewRawWriter(w io.WriteCloser, width, height int) *Encoder {
	return &Encoder{
		w:      w,
		width:  width,
		height: height,
		buf:    image.NewRGBA(image.Rect(0, 0, width, height)),
	}
}

// NewEncoder 启动 ffmpeg 编码进程
func NewEncoder(ctx context.Context, cfg EncoderConfig) (*Encoder, error) {
	if cfg.Output == "" {
		return nil, errors.New("输出路径不能为空")
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("帧尺寸非法: %dx%d", cfg.Width, cfg.Height)
	}
	if err := LookPath("ffmpeg"); err != nil {
		return nil, err
	}

	cmd := NewSafeCommand(ctx, "ffmpeg", cfg.args()...)
	in, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("创建编码管道失败: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("启动编码进程失败: %w", cmd.Wrap(err))
	}

	e := NewRawWriter(in, cfg.Width, cfg.Height)
	e.cmd = cmd
	return e, nil
}

// Show 写入一帧, 尺寸必须与编码参数一致
func (e *Encoder) Show(img image.Image) error {
	b := img.Bounds()
	if b.Dx() != e.width || b.Dy() != e.height {
		return fmt.Errorf("帧尺寸 %dx%d 与编码尺寸 %dx%d 不一致", b.Dx(), b.Dy(), e.width, e.height)
	}

	pix := e.tight(img)
	if _, err := e.w.Write(pix); err != nil {
		if e.cmd != nil {
			return fmt.Errorf("写入帧失败: %w", e.cmd.Wrap(err))
		}
		return fmt.Errorf("写入帧失败: %w", err)
	}
	e.frames++
	return nil
}

// tight 返回按行紧密排列的 RGBA 像素
func (e *Encoder) tight(img image.Image) []byte {
	if rgba, ok := img.(*image.RGBA); ok && rgba.Stride == 4*e.width && rgba.Rect.Min == (image.Point{}) {
		return rgba.Pix[:4*e.width*e.height]
	}
	draw.Draw(e.buf, e.buf.Rect, img, img.Bounds().Min, draw.Src)
	return e.buf.Pix
}

// PollKey 离线渲染没有键盘输入
func (e *Encoder) PollKey(time.Duration) int {
	return -1
}

// Frames 已写入的帧数
func (e *Encoder) Frames() int {
	return e.frames
}

// Close 关闭输入并等待编码完成
func (e *Encoder) Close() error {
	if e.w == nil {
		return nil
	}
	err := e.w.Close()
	e.w = nil
	if e.cmd != nil {
		if werr := e.cmd.Wait(); werr != nil {
			return fmt.Errorf("编码进程异常退出: %w", e.cmd.Wrap(werr))
		}
	}
	return err
}
