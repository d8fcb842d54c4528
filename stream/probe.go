package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// Info 视频流信息
type Info struct {
	Width  int
	Height int
	FPS    float64
	Frames int // 0 表示未知
}

type ffprobeOutput struct {
	Streams []struct {
		Width         int    `json:"width"`
		Height        int    `json:"height"`
		RFrameRate    string `json:"r_frame_rate"`
		NbFrames      string `json:"nb_frames"`
		NbReadPackets string `json:"nb_read_packets"`
	} `json:"streams"`
}

// Probe 使用 ffprobe 读取第一个视频流的尺寸、帧率和帧数
//
// 容器元数据中没有帧数时退化为逐包计数。
func Probe(ctx context.Context, path string) (Info, error) {
	if err := LookPath("ffprobe"); err != nil {
		return Info{}, err
	}

	out, err := exec.CommandContext(ctx, "ffprobe", "-v", "error", "-select_streams", "v:0",
		"-show_entries", "stream=width,height,r_frame_rate,nb_frames", "-of", "json", path).Output()
	if err != nil {
		return Info{}, fmt.Errorf("ffprobe 执行失败: %w", err)
	}
	info, err := parseProbe(out)
	if err != nil {
		return Info{}, err
	}
	if info.Frames > 0 {
		return info, nil
	}

	// 慢速路径: 逐包计数
	out, err = exec.CommandContext(ctx, "ffprobe", "-v", "error", "-select_streams", "v:0", "-count_packets",
		"-show_entries", "stream=width,height,r_frame_rate,nb_read_packets", "-of", "json", path).Output()
	if err != nil {
		return info, nil
	}
	if counted, err := parseProbe(out); err == nil {
		info.Frames = counted.Frames
	}
	return info, nil
}

// parseProbe 解析 ffprobe 的 JSON 输出
func parseProbe(out []byte) (Info, error) {
	var res ffprobeOutput
	if err := json.Unmarshal(out, &res); err != nil {
		return Info{}, fmt.Errorf("解析 ffprobe 输出失败: %w", err)
	}
	if len(res.Streams) == 0 {
		return Info{}, fmt.Errorf("没有找到视频流")
	}

	s := res.Streams[0]
	info := Info{
		Width:  s.Width,
		Height: s.Height,
		FPS:    parseRate(s.RFrameRate),
	}
	if n, err := strconv.Atoi(s.NbFrames); err == nil && n > 0 {
		info.Frames = n
	} else if n, err := strconv.Atoi(s.NbReadPackets); err == nil && n > 0 {
		info.Frames = n
	}
	return info, nil
}

// parseRate 解析 "30000/1001" 形式的帧率, 失败返回 0
func parseRate(s string) float64 {
	num, den, ok := strings.Cut(s, "/")
	if !ok {
		v, _ := strconv.ParseFloat(s, 64)
		return v
	}
	n, err1 := strconv.ParseFloat(num, 64)
	d, err2 := strconv.ParseFloat(den, 64)
	if err1 != nil || err2 != nil || d == 0 {
		return 0
	}
	return n / d
}
