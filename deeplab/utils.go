package deeplab

import (
	"image"
	"math"

	"github.com/getcharzp/go-backdrop/mask"
	"github.com/up-zero/gotool/imageutil"
	"golang.org/x/image/draw"
)

// preprocess 预处理
//
// 拉伸到 inputSize x inputSize, 按 mean/std 归一化并转为 CHW
func preprocess(img image.Image, inputSize int, mean, std [3]float32) []float32 {
	resized := imageutil.Resize(img, inputSize, inputSize)
	rb := resized.Bounds()

	plane := inputSize * inputSize
	data := make([]float32, 3*plane)
	for y := 0; y < inputSize; y++ {
		for x := 0; x < inputSize; x++ {
			r, g, b, _ := resized.At(rb.Min.X+x, rb.Min.Y+y).RGBA()

			idx := y*inputSize + x
			data[idx] = (float32(r)/65535.0 - mean[0]) / std[0]         // R
			data[plane+idx] = (float32(g)/65535.0 - mean[1]) / std[1]   // G
			data[2*plane+idx] = (float32(b)/65535.0 - mean[2]) / std[2] // B
		}
	}
	return data
}

// argmaxLabels 对 [C, H, W] 的 logits 逐像素取最大值所在的类别
func argmaxLabels(data []float32, c, h, w int) []int {
	plane := h * w
	labels := make([]int, plane)
	for i := 0; i < plane; i++ {
		best := 0
		bestScore := float32(math.Inf(-1))
		for k := 0; k < c; k++ {
			if v := data[k*plane+i]; v > bestScore {
				bestScore = v
				best = k
			}
		}
		labels[i] = best
	}
	return labels
}

// roundLabels 将 float32 类别图转换为整型, 超出 [0, numClasses) 的值记为 -1
func roundLabels(data []float32, numClasses int) []int {
	labels := make([]int, len(data))
	for i, v := range data {
		l := int(math.Round(float64(v)))
		if l < 0 || l >= numClasses {
			l = -1
		}
		labels[i] = l
	}
	return labels
}

func int64Labels(data []int64) []int {
	labels := make([]int, len(data))
	for i, v := range data {
		labels[i] = int(v)
	}
	return labels
}

// invalidGray 缩放时无效类别 (-1) 对应的灰度值, 因此类别数最多为 255
const invalidGray = 255

// scaleLabels 最近邻缩放标签图到原图尺寸
//
// 类别 ID 不能插值, 因此借用 image.Gray 做最近邻缩放, -1 (无效类别) 映射为 255。
//
// # Params:
//
//	labels: 模型输出的标签, 行优先
//	w, h: 模型输出的宽高
//	dstW, dstH: 原图宽高
func scaleLabels(labels []int, w, h, dstW, dstH int) *mask.LabelMap {
	out := mask.NewLabelMap(dstW, dstH, 0)
	if w == dstW && h == dstH {
		copy(out.Labels, labels)
		return out
	}

	src := image.NewGray(image.Rect(0, 0, w, h))
	for i, l := range labels {
		if l < 0 || l >= invalidGray {
			src.Pix[i] = invalidGray
			continue
		}
		src.Pix[i] = uint8(l)
	}

	dst := image.NewGray(image.Rect(0, 0, dstW, dstH))
	draw.NearestNeighbor.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)

	for i, v := range dst.Pix {
		if v == invalidGray {
			out.Labels[i] = -1
			continue
		}
		out.Labels[i] = int(v)
	}
	return out
}
