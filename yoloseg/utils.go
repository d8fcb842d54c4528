package yoloseg

import (
	"fmt"
	"image"
	"math"
	"sort"

	"github.com/getcharzp/go-backdrop/mask"
	"github.com/up-zero/gotool/imageutil"
)

// preprocess 预处理
//
// 等比缩放后贴到左上角, 其余区域补 0, 转为 CHW 并归一化到 0-1
func preprocess(img image.Image, inputSize int) ([]float32, imageParams) {
	bounds := img.Bounds()
	params := imageParams{
		origW: bounds.Dx(),
		origH: bounds.Dy(),
	}

	scale := float32(inputSize) / float32(max(params.origW, params.origH))
	params.scale = scale

	newW := max(1, int(float32(params.origW)*scale))
	newH := max(1, int(float32(params.origH)*scale))

	resized := imageutil.Resize(img, newW, newH)
	rb := resized.Bounds()

	// 准备 Tensor 数据 (CHW + Normalize 0-1)
	plane := inputSize * inputSize
	data := make([]float32, 3*plane)
	for y := 0; y < newH; y++ {
		for x := 0; x < newW; x++ {
			r, g, b, _ := resized.At(rb.Min.X+x, rb.Min.Y+y).RGBA()

			idx := y*inputSize + x
			data[idx] = float32(r) / 65535.0         // R
			data[plane+idx] = float32(g) / 65535.0   // G
			data[2*plane+idx] = float32(b) / 65535.0 // B
		}
	}
	return data, params
}

func sigmoid(x float32) float32 {
	return 1.0 / (1.0 + float32(math.Exp(float64(-x))))
}

// toOrigBox 将输入尺度的 x1, y1, x2, y2 映射回原图
func toOrigBox(x1, y1, x2, y2 float32, params imageParams) image.Rectangle {
	return image.Rect(
		max(0, int(x1/params.scale)),
		max(0, int(y1/params.scale)),
		min(params.origW, int(x2/params.scale)),
		min(params.origH, int(y2/params.scale)),
	)
}

// parseCandidatesV11 解析 YOLOv11 的候选框
//
// # Params:
//
//	data: 模型输出的数组
//		[x1, x2 ..., x8400]
//		[y1, y2 ..., y8400]
//		[w1, w2 ..., w8400]
//		[h1, h2 ..., h8400]
//		[c1_1, c1_2 ..., c1_8400]
//		...
//		[m1, m2 ..., m8400]
//	channels: 模型输出的通道数
//	anchors: 模型输出的锚点数
//	params: 图片尺寸信息
func parseCandidatesV11(cfg Config, data []float32, channels, anchors int, params imageParams) ([]candidate, error) {
	expectedChannels := 4 + cfg.NumClasses + cfg.NumMaskCoeffs
	if channels != expectedChannels {
		return nil, fmt.Errorf("输出通道数(%d)与预期(%d)不匹配", channels, expectedChannels)
	}
	if len(data) < channels*anchors {
		return nil, fmt.Errorf("输出数据长度(%d)不足 %d", len(data), channels*anchors)
	}

	var cands []candidate
	for i := 0; i < anchors; i++ {
		// 找最大分类分数
		maxScore := float32(0.0)
		classID := -1
		for c := 0; c < cfg.NumClasses; c++ {
			score := data[(4+c)*anchors+i]
			if score > maxScore {
				maxScore = score
				classID = c
			}
		}
		if classID < 0 || maxScore < cfg.ConfThreshold {
			continue
		}

		cx := data[0*anchors+i]
		cy := data[1*anchors+i]
		w := data[2*anchors+i]
		h := data[3*anchors+i]

		coeffs := make([]float32, cfg.NumMaskCoeffs)
		for j := 0; j < cfg.NumMaskCoeffs; j++ {
			coeffs[j] = data[(4+cfg.NumClasses+j)*anchors+i]
		}

		cands = append(cands, candidate{
			origBox:    toOrigBox(cx-w/2, cy-h/2, cx+w/2, cy+h/2, params),
			score:      maxScore,
			classID:    classID,
			maskCoeffs: coeffs,
		})
	}
	return cands, nil
}

// parseCandidates26 解析 YOLO26 的端到端输出
//
// 每行为 [x1, y1, x2, y2, score, class, mask_coeffs...]
func parseCandidates26(cfg Config, data []float32, numDetections, dimTotal int, params imageParams) ([]candidate, error) {
	const indexMask = 6
	if dimTotal != indexMask+cfg.NumMaskCoeffs {
		return nil, fmt.Errorf("输出维度(%d)与预期(%d)不匹配", dimTotal, indexMask+cfg.NumMaskCoeffs)
	}
	if len(data) < numDetections*dimTotal {
		return nil, fmt.Errorf("输出数据长度(%d)不足 %d", len(data), numDetections*dimTotal)
	}

	var cands []candidate
	for i := 0; i < numDetections; i++ {
		offset := i * dimTotal

		score := data[offset+4]
		if score < cfg.ConfThreshold {
			continue
		}

		cands = append(cands, candidate{
			origBox:    toOrigBox(data[offset+0], data[offset+1], data[offset+2], data[offset+3], params),
			score:      score,
			classID:    int(data[offset+5]),
			maskCoeffs: data[offset+indexMask : offset+indexMask+cfg.NumMaskCoeffs],
		})
	}
	return cands, nil
}

// nms 非极大值抑制，过滤掉重叠度过高的检测框
//
// # Params:
//
//	cands: 候选框, 会按分数降序重排
//	iouThresh: IOU 阈值
func nms(cands []candidate, iouThresh float32) []int {
	sort.SliceStable(cands, func(i, j int) bool {
		return cands[i].score > cands[j].score
	})

	keep := make([]int, 0)
	suppressed := make([]bool, len(cands))

	for i := 0; i < len(cands); i++ {
		if suppressed[i] {
			continue
		}
		keep = append(keep, i)

		for j := i + 1; j < len(cands); j++ {
			if suppressed[j] {
				continue
			}
			if computeIOU(cands[i].origBox, cands[j].origBox) > iouThresh {
				suppressed[j] = true
			}
		}
	}
	return keep
}

func computeIOU(r1, r2 image.Rectangle) float32 {
	intersect := r1.Intersect(r2)
	if intersect.Empty() {
		return 0.0
	}

	interArea := intersect.Dx() * intersect.Dy()
	area1 := r1.Dx() * r1.Dy()
	area2 := r2.Dx() * r2.Dy()

	return float32(interArea) / float32(area1+area2-interArea)
}

// decodeMask Mask解码
//
// # Params:
//
//	cand: 候选结果
//	protos: 模型输出的 Mask 原型图
//	c, h, w: 原型数据的维度 (32, 160, 160)
//	params: 图片尺寸信息
func decodeMask(cfg Config, cand candidate, protos []float32, c, h, w int, params imageParams) *image.Gray {
	finalMask := image.NewGray(image.Rect(0, 0, params.origW, params.origH))

	// Mask 原型图相对于 InputSize(640) 的缩放比例
	maskStride := float32(cfg.InputSize) / float32(w)

	origBox := cand.origBox
	for y := origBox.Min.Y; y < origBox.Max.Y; y++ {
		for x := origBox.Min.X; x < origBox.Max.X; x++ {
			// 映射回 640 尺度
			inputX := float32(x) * params.scale
			inputY := float32(y) * params.scale

			// 映射回 160 Mask 尺度
			mx := int(inputX / maskStride)
			my := int(inputY / maskStride)
			if mx < 0 || mx >= w || my < 0 || my >= h {
				continue
			}

			sum := float32(0.0)
			for k := 0; k < c; k++ {
				sum += cand.maskCoeffs[k] * protos[k*h*w+my*w+mx]
			}
			if sigmoid(sum) > cfg.MaskThreshold {
				finalMask.Pix[y*finalMask.Stride+x] = mask.Foreground
			}
		}
	}
	return finalMask
}

// paintLabels 把实例 Mask 合成为类别图
//
// 按分数升序绘制, 重叠区域归属分数最高的实例; 未覆盖的像素为 -1。
func paintLabels(results []SegResult, w, h int) *mask.LabelMap {
	lm := mask.NewLabelMap(w, h, -1)

	order := make([]int, len(results))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		return results[order[i]].Score < results[order[j]].Score
	})

	for _, idx := range order {
		res := results[idx]
		if res.Mask == nil {
			continue
		}
		area := res.Mask.Rect.Intersect(lm.Bounds())
		for y := area.Min.Y; y < area.Max.Y; y++ {
			for x := area.Min.X; x < area.Max.X; x++ {
				if res.Mask.GrayAt(x, y).Y != mask.Background {
					lm.Labels[y*w+x] = res.ClassID
				}
			}
		}
	}
	return lm
}
