package composite

import (
	"fmt"
	"image"
	"sync"
)

// Border 模糊时越界像素的取值方式
type Border int

const (
	// BorderReflect101 镜像但不重复边缘像素: gfedcb|abcdefgh|gfedcba (与 OpenCV cv::blur 默认一致)
	BorderReflect101 Border = iota
	// BorderReplicate 重复边缘像素: aaaaaa|abcdefgh|hhhhhhh
	BorderReplicate
)

func (b Border) String() string {
	switch b {
	case BorderReflect101:
		return "reflect101"
	case BorderReplicate:
		return "replicate"
	default:
		return fmt.Sprintf("Border(%d)", int(b))
	}
}

// ParseBorder 解析边界策略名称
func ParseBorder(s string) (Border, error) {
	switch s {
	case "reflect101", "reflect":
		return BorderReflect101, nil
	case "replicate", "clamp":
		return BorderReplicate, nil
	}
	return 0, fmt.Errorf("未知的边界策略 '%s', 可选: reflect101, replicate", s)
}

// index 将越界坐标 i 映射回 [0, n)
func (b Border) index(i, n int) int {
	if i >= 0 && i < n {
		return i
	}
	if n == 1 {
		return 0
	}
	if b == BorderReplicate {
		if i < 0 {
			return 0
		}
		return n - 1
	}
	// 核比图像还大时需要多次反射
	for i < 0 || i >= n {
		if i < 0 {
			i = -i
		} else {
			i = 2*(n-1) - i
		}
	}
	return i
}

// rowSumsPool 复用水平方向的累加缓冲
var rowSumsPool = sync.Pool{
	New: func() interface{} { return make([]uint32, 0, 640*480*4) },
}

// colSumsPool 复用垂直方向的列累加器
var colSumsPool = sync.Pool{
	New: func() interface{} { return make([]uint32, 0, 640*4) },
}

// BoxBlur 归一化方框模糊 (均值滤波)
//
// 可分离的滑动窗口实现: 先水平累加, 再逐行更新所有列的累加器。
// 四个通道全部参与模糊, 结果按 kernel*kernel 四舍五入取平均。
//
// # Params:
//
//	src: 原图, 不会被修改
//	kernel: 核尺寸, 必须为正奇数 (默认 21)
//	border: 边界策略
func BoxBlur(src *image.RGBA, kernel int, border Border) (*image.RGBA, error) {
	if kernel < 1 || kernel%2 == 0 {
		return nil, fmt.Errorf("核尺寸必须为正奇数, 当前为 %d: %w", kernel, ErrCompositing)
	}

	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	if w == 0 || h == 0 {
		return dst, nil
	}
	radius := kernel / 2
	rowLen := w * 4

	// 1. 水平方向: src -> sums
	needed := rowLen * h
	sumsBuf := rowSumsPool.Get().([]uint32)
	if cap(sumsBuf) < needed {
		sumsBuf = make([]uint32, needed)
	}
	sums := sumsBuf[:needed]
	defer rowSumsPool.Put(sumsBuf)

	for y := 0; y < h; y++ {
		start := src.PixOffset(b.Min.X, b.Min.Y+y)
		row := src.Pix[start : start+rowLen]
		out := sums[y*rowLen : (y+1)*rowLen]

		var acc [4]uint32
		for k := -radius; k <= radius; k++ {
			off := border.index(k, w) * 4
			acc[0] += uint32(row[off])
			acc[1] += uint32(row[off+1])
			acc[2] += uint32(row[off+2])
			acc[3] += uint32(row[off+3])
		}

		for x := 0; x < w; x++ {
			o := x * 4
			out[o] = acc[0]
			out[o+1] = acc[1]
			out[o+2] = acc[2]
			out[o+3] = acc[3]

			// 滑动窗口: 移出左侧像素, 移入右侧像素
			rm := border.index(x-radius, w) * 4
			ad := border.index(x+radius+1, w) * 4
			acc[0] = acc[0] - uint32(row[rm]) + uint32(row[ad])
			acc[1] = acc[1] - uint32(row[rm+1]) + uint32(row[ad+1])
			acc[2] = acc[2] - uint32(row[rm+2]) + uint32(row[ad+2])
			acc[3] = acc[3] - uint32(row[rm+3]) + uint32(row[ad+3])
		}
	}

	// 2. 垂直方向: 按行遍历, 同时维护每一列的累加值
	colBuf := colSumsPool.Get().([]uint32)
	if cap(colBuf) < rowLen {
		colBuf = make([]uint32, rowLen)
	}
	cols := colBuf[:rowLen]
	for i := range cols {
		cols[i] = 0
	}
	defer colSumsPool.Put(colBuf)

	for k := -radius; k <= radius; k++ {
		py := border.index(k, h)
		row := sums[py*rowLen : (py+1)*rowLen]
		for i, v := range row {
			cols[i] += v
		}
	}

	area := uint32(kernel * kernel)
	half := area / 2
	for y := 0; y < h; y++ {
		dstRow := dst.Pix[y*dst.Stride : y*dst.Stride+rowLen]
		rm := sums[border.index(y-radius, h)*rowLen:]
		ad := sums[border.index(y+radius+1, h)*rowLen:]
		for i := 0; i < rowLen; i++ {
			dstRow[i] = uint8((cols[i] + half) / area)
			cols[i] = cols[i] - rm[i] + ad[i]
		}
	}

	return dst, nil
}
