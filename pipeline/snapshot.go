package pipeline

import (
	"fmt"
	"image"
	"os"
	"path/filepath"

	"github.com/segmentio/ksuid"
	"github.com/up-zero/gotool/imageutil"
)

// SaveSnapshot 将合成后的帧保存为 PNG, 文件名为 ksuid
//
// # Params:
//
//	dir: 保存目录, 不存在时自动创建
//	img: 合成后的帧
func SaveSnapshot(dir string, img image.Image) (string, error) {
	if dir == "" {
		dir = "."
	}

	path := filepath.Join(dir, ksuid.New().String()+".png")
	if err := imageutil.Save(path, img, 100); err != nil {
		// 编码失败时不留下残缺的文件
		_ = os.Remove(path)
		return "", fmt.Errorf("保存截图失败: %w", err)
	}
	return path, nil
}
