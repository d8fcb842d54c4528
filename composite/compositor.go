package composite

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"

	"github.com/nfnt/resize"
	"github.com/up-zero/gotool/imageutil"
)

// LoadBackground 读取并解码背景图
func LoadBackground(path string) (image.Image, error) {
	if path == "" {
		return nil, fmt.Errorf("背景图路径为空: %w", ErrBackgroundUnavailable)
	}
	img, err := imageutil.Open(path)
	if err != nil {
		return nil, fmt.Errorf("读取背景图 %s 失败: %w: %w", path, ErrBackgroundUnavailable, err)
	}
	return img, nil
}

// BackgroundCache 缓存拉伸后的背景图, 只有帧尺寸变化时才重新缩放
type BackgroundCache struct {
	src    image.Image
	interp resize.InterpolationFunction

	size    image.Point
	resized *image.RGBA
	misses  int
}

// NewBackgroundCache 创建背景缓存, src 为 nil 时表示背景不可用
func NewBackgroundCache(src image.Image, interp resize.InterpolationFunction) *BackgroundCache {
	return &BackgroundCache{src: src, interp: interp}
}

// Available 是否有可用的背景
func (c *BackgroundCache) Available() bool {
	return c != nil && c.src != nil
}

// Get 返回 size 尺寸的背景图, 返回值只读
func (c *BackgroundCache) Get(size image.Point) (*image.RGBA, error) {
	if !c.Available() {
		return nil, ErrBackgroundUnavailable
	}
	if c.resized == nil || c.size != size {
		c.resized = Stretch(c.src, size.X, size.Y, c.interp)
		c.size = size
		c.misses++
	}
	return c.resized, nil
}

// Misses 缓存未命中 (重新缩放) 的次数
func (c *BackgroundCache) Misses() int {
	return c.misses
}

// Options 合成器参数
type Options struct {
	Blur          BlurOptions
	Interpolation resize.InterpolationFunction // 背景拉伸的插值方式 (默认 Bilinear)
}

// DefaultOptions 默认合成参数
func DefaultOptions() Options {
	return Options{
		Blur:          DefaultBlurOptions(),
		Interpolation: resize.Bilinear,
	}
}

// Compositor 帧循环使用的合成器, 持有背景缓存
type Compositor struct {
	background *BackgroundCache
	opts       Options
}

// NewCompositor 创建合成器
//
// # Params:
//
//	background: 背景图, 可以为 nil (此时替换模式不可用)
//	opts: 合成参数
func NewCompositor(background image.Image, opts Options) *Compositor {
	return &Compositor{
		background: NewBackgroundCache(background, opts.Interpolation),
		opts:       opts,
	}
}

// HasBackground 替换模式是否可用
func (c *Compositor) HasBackground() bool {
	return c.background.Available()
}

// Remove 移除背景
func (c *Compositor) Remove(frame image.Image, m *image.Gray) (*image.RGBA, error) {
	return Remove(frame, m)
}

// Replace 使用缓存的背景替换
func (c *Compositor) Replace(frame image.Image, m *image.Gray) (*image.RGBA, error) {
	src, err := prepare(frame, m)
	if err != nil {
		return nil, err
	}
	bg, err := c.background.Get(src.Rect.Size())
	if err != nil {
		return nil, err
	}
	return blend(src, bg, m), nil
}

// Blur 模糊背景
func (c *Compositor) Blur(frame image.Image, m *image.Gray) (*image.RGBA, error) {
	src, err := prepare(frame, m)
	if err != nil {
		return nil, err
	}
	return blurWith(src, m, c.opts.Blur)
}

// Background 背景缓存
func (c *Compositor) Background() *BackgroundCache {
	return c.background
}
