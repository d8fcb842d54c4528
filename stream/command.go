// Package stream 通过 ffmpeg/ffprobe 子进程读写视频帧
package stream

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// SafeCommand 包装 exec.Cmd, 收集 Stderr 以便子进程出错时带上日志
type SafeCommand struct {
	*exec.Cmd
	Stderr *bytes.Buffer
}

// NewSafeCommand 创建命令并把 Stderr 接到缓冲区, 不会启动进程
func NewSafeCommand(ctx context.Context, name string, args ...string) *SafeCommand {
	cmd := exec.CommandContext(ctx, name, args...)
	stderr := &bytes.Buffer{}
	cmd.Stderr = stderr
	return &SafeCommand{Cmd: cmd, Stderr: stderr}
}

// Wrap 为错误附加子进程的 Stderr 输出
func (s *SafeCommand) Wrap(err error) error {
	if err == nil {
		return nil
	}
	msg := strings.TrimSpace(s.Stderr.String())
	if msg == "" {
		return fmt.Errorf("%s: %w", s.Path, err)
	}
	return fmt.Errorf("%s: %w: %s", s.Path, err, msg)
}

// LookPath 检查 ffmpeg/ffprobe 是否可用
func LookPath(name string) error {
	if _, err := exec.LookPath(name); err != nil {
		return fmt.Errorf("未找到 %s, 请先安装 ffmpeg: %w", name, err)
	}
	return nil
}
