package stream

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"strconv"

	"github.com/getcharzp/go-backdrop/pipeline"
)

var (
	JpegSOI = []byte{0xFF, 0xD8} // Start of Image
	JpegEOI = []byte{0xFF, 0xD9} // End of Image
)

// maxFrameSize 单帧 JPEG 的最大字节数
const maxFrameSize = 32 << 20

// SplitJpeg bufio.Scanner 的分割函数, 按 SOI/EOI 标记切出完整的 JPEG 帧
func SplitJpeg(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	start := bytes.Index(data, JpegSOI)
	if start == -1 {
		if atEOF {
			return len(data), nil, nil
		}
		return 0, nil, nil
	}
	end := bytes.Index(data[start:], JpegEOI)
	if end == -1 {
		if atEOF {
			return len(data), nil, nil
		}
		return 0, nil, nil
	}
	return start + end + 2, data[start : start+end+2], nil
}

// SourceConfig ffmpeg 帧来源参数
type SourceConfig struct {
	Input  string // 视频文件路径或设备 (如 /dev/video0)
	Format string // (可选) 输入格式, 如 v4l2、avfoundation、dshow
	Width  int    // (可选) 采集宽度, 仅设备输入有效
	Height int    // (可选) 采集高度, 仅设备输入有效
	FPS    int    // (可选) 采集帧率, 仅设备输入有效
}

// DefaultSourceConfig 默认配置
func DefaultSourceConfig(input string) SourceConfig {
	return SourceConfig{Input: input}
}

// args ffmpeg 参数, 输出为 MJPEG image2pipe
func (c SourceConfig) args() []string {
	args := []string{"-hide_banner", "-loglevel", "error"}
	if c.Format != "" {
		args = append(args, "-f", c.Format, "-input_format", "mjpeg")
		if c.Width > 0 && c.Height > 0 {
			args = append(args, "-video_size", fmt.Sprintf("%dx%d", c.Width, c.Height))
		}
		if c.FPS > 0 {
			args = append(args, "-framerate", strconv.Itoa(c.FPS))
		}
	}
	args = append(args, "-i", c.Input, "-f", "image2pipe", "-vcodec", "mjpeg", "-q:v", "2", "-")
	return args
}

// MJPEGSource 从 MJPEG 字节流中逐帧解码
type MJPEGSource struct {
	scanner *bufio.Scanner
	cmd     *SafeCommand
	closer  io.Closer
	pending image.Image // OpenMJPEG 预读的第一帧
	err     error       // 流结束后的错误, io.EOF 或解码进程的退出错误
}

// NewMJPEGReader 从任意 MJPEG 字节流创建帧来源
func NewMJPEGReader(r io.Reader) *MJPEGSource {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 1<<20), maxFrameSize)
	scanner.Split(SplitJpeg)

	s := &MJPEGSource{scanner: scanner}
	if c, ok := r.(io.Closer); ok {
		s.closer = c
	}
	return s
}

// OpenMJPEG 启动 ffmpeg 并读取其输出的 MJPEG 帧
//
// 返回前会读到第一帧, ffmpeg 无法打开输入时直接返回错误。
func OpenMJPEG(ctx context.Context, cfg SourceConfig) (*MJPEGSource, error) {
	if cfg.Input == "" {
		return nil, errors.New("输入不能为空")
	}
	if err := LookPath("ffmpeg"); err != nil {
		return nil, err
	}

	cmd := NewSafeCommand(ctx, "ffmpeg", cfg.args()...)
	out, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("创建解码管道失败: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("启动解码进程失败: %w", cmd.Wrap(err))
	}

	s := NewMJPEGReader(out)
	s.cmd = cmd
	s.closer = nil

	for {
		img, err := s.Read()
		if err == nil {
			s.pending = img
			return s, nil
		}
		if s.err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("未读取到任何帧 %s: %w", cfg.Input, err)
		}
	}
}

// Read 读取下一帧
//
// 流正常结束时返回 io.EOF; 解码进程异常退出时返回包装了 pipeline.ErrSourceFailed 的错误,
// 之后每次调用都返回同一个错误。单帧 JPEG 损坏时返回普通错误, 可以继续读取。
func (s *MJPEGSource) Read() (image.Image, error) {
	if s.pending != nil {
		img := s.pending
		s.pending = nil
		return img, nil
	}
	if s.err != nil {
		return nil, s.err
	}
	if !s.scanner.Scan() {
		s.err = s.finish()
		return nil, s.err
	}

	img, err := jpeg.Decode(bytes.NewReader(s.scanner.Bytes()))
	if err != nil {
		return nil, fmt.Errorf("解码 JPEG 失败: %w", err)
	}
	return img, nil
}

// finish 流读完后回收解码进程, 返回之后 Read 应返回的错误
func (s *MJPEGSource) finish() error {
	scanErr := s.scanner.Err()
	if s.cmd != nil {
		cmd := s.cmd
		s.cmd = nil
		if scanErr != nil && cmd.Process != nil {
			// 管道不再被读取, ffmpeg 会一直阻塞在写入上
			_ = cmd.Process.Kill()
		}
		if err := cmd.Wait(); err != nil {
			return fmt.Errorf("%w: 解码进程异常退出: %w", pipeline.ErrSourceFailed, cmd.Wrap(err))
		}
	}
	if scanErr != nil {
		return fmt.Errorf("%w: 读取帧失败: %w", pipeline.ErrSourceFailed, scanErr)
	}
	return io.EOF
}

// Close 结束解码进程
func (s *MJPEGSource) Close() error {
	s.pending = nil
	if s.err == nil {
		s.err = io.EOF
	}
	if s.closer != nil {
		return s.closer.Close()
	}
	if s.cmd == nil {
		return nil
	}
	cmd := s.cmd
	s.cmd = nil
	if cmd.Process != nil {
		_ = cmd.Process.Kill()
	}
	// 被 Kill 后 Wait 必然返回错误, 忽略
	_ = cmd.Wait()
	return nil
}
