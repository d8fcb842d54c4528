// Package pipeline 实现采集 -> 推理 -> 合成 -> 显示的帧循环
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/getcharzp/go-backdrop/mask"
)

var (
	// ErrDeviceOpen 视频源无法打开, 属于致命错误
	ErrDeviceOpen = errors.New("device open failed")
	// ErrFrameRead 单帧读取失败, 跳过当前帧
	ErrFrameRead = errors.New("frame read failed")
	// ErrSourceFailed 视频源已不可用 (如解码进程异常退出), 属于致命错误
	ErrSourceFailed = errors.New("source failed")
	// ErrDisplayClosed 显示窗口已被用户关闭
	ErrDisplayClosed = errors.New("display closed")
)

// Segmenter 语义分割模型, 输出与输入同尺寸的类别图
type Segmenter interface {
	Predict(img image.Image) (*mask.LabelMap, error)
}

// Source 帧来源 (摄像头、视频文件)
//
// 有限来源读完后返回 io.EOF; 来源失效后返回包装了 ErrSourceFailed 的错误, 其他错误只跳过当前帧。
type Source interface {
	Read() (image.Image, error)
	Close() error
}

// Display 帧输出 (窗口、视频文件)
//
// PollKey 最多等待 d, 没有按键时返回 -1。窗口被关闭时 Show 返回 ErrDisplayClosed。
type Display interface {
	Show(img image.Image) error
	PollKey(d time.Duration) int
	Close() error
}

// Opener 打开帧来源, 在循环开始时调用一次
type Opener func(ctx context.Context) (Source, error)

// State 循环状态
type State int32

const (
	StateIdle State = iota
	StateCameraOpen
	StateRunning
	StateStopped
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateCameraOpen:
		return "camera-open"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Terminal 是否为终止状态
func (s State) Terminal() bool {
	return s == StateStopped || s == StateFailed
}
