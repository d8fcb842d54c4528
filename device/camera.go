// Package device 基于 OpenCV (gocv) 的摄像头与窗口
package device

import (
	"errors"
	"fmt"
	"image"

	"gocv.io/x/gocv"
)

// CameraConfig 摄像头参数
type CameraConfig struct {
	Index      int    // 设备编号
	Width      int    // 采集宽度 (默认 640)
	Height     int    // 采集高度 (默认 480)
	BufferSize int    // 驱动缓冲帧数 (默认 1, 降低延迟)
	AutoFocus  bool   // 是否开启自动对焦
	FourCC     string // 像素格式 (默认 MJPG), 为空时不设置
}

// DefaultCameraConfig 默认配置
func DefaultCameraConfig(index int) CameraConfig {
	return CameraConfig{
		Index:      index,
		Width:      640,
		Height:     480,
		BufferSize: 1,
		AutoFocus:  true,
		FourCC:     "MJPG",
	}
}

// Camera 摄像头帧来源
type Camera struct {
	capture *gocv.VideoCapture
	mat     gocv.Mat
}

// OpenCamera 打开摄像头并设置采集参数
func OpenCamera(cfg CameraConfig) (*Camera, error) {
	capture, err := gocv.OpenVideoCapture(cfg.Index)
	if err != nil {
		return nil, fmt.Errorf("打开摄像头 %d 失败: %w", cfg.Index, err)
	}
	if !capture.IsOpened() {
		capture.Close()
		return nil, fmt.Errorf("摄像头 %d 未打开", cfg.Index)
	}

	if cfg.FourCC != "" {
		capture.Set(gocv.VideoCaptureFOURCC, capture.ToCodec(cfg.FourCC))
	}
	if cfg.Width > 0 && cfg.Height > 0 {
		capture.Set(gocv.VideoCaptureFrameWidth, float64(cfg.Width))
		capture.Set(gocv.VideoCaptureFrameHeight, float64(cfg.Height))
	}
	if cfg.BufferSize > 0 {
		capture.Set(gocv.VideoCaptureBufferSize, float64(cfg.BufferSize))
	}
	autoFocus := 0.0
	if cfg.AutoFocus {
		autoFocus = 1
	}
	capture.Set(gocv.VideoCaptureAutoFocus, autoFocus)

	return &Camera{capture: capture, mat: gocv.NewMat()}, nil
}

// Read 读取一帧
func (c *Camera) Read() (image.Image, error) {
	if ok := c.capture.Read(&c.mat); !ok {
		return nil, errors.New("摄像头读取失败")
	}
	if c.mat.Empty() {
		return nil, errors.New("摄像头返回空帧")
	}
	img, err := c.mat.ToImage()
	if err != nil {
		return nil, fmt.Errorf("转换帧失败: %w", err)
	}
	return img, nil
}

// Close 释放摄像头
func (c *Camera) Close() error {
	if err := c.mat.Close(); err != nil {
		return err
	}
	return c.capture.Close()
}
