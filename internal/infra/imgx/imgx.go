package imgx

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif" // 注册 GIF 解码器（只取第一帧）
	"image/jpeg"
	_ "image/png" // 注册 PNG 解码器
	"os"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/bmp"  // 注册 BMP 解码器
	_ "golang.org/x/image/webp" // 注册 WebP 解码器
)

const (
	// MaxDimension 是送给推理接口的图片最长边上限。
	MaxDimension = 1024
	// JPEGQuality 是输出 JPEG 的质量。
	JPEGQuality = 85
)

// Image 是规范化后的结果：固定为 JPEG，附带输出尺寸。
type Image struct {
	Data    []byte
	Width   int
	Height  int
	Resized bool
}

// Normalizer 把任意允许的截图格式转为“最长边受限”的 JPEG。
// 零值可直接使用（MaxDimension/Quality 为 0 时取包级默认值）。
type Normalizer struct {
	MaxDimension int
	Quality      int
}

// Normalize 读取 path 并规范化。
func (n Normalizer) Normalize(path string) (Image, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Image{}, err
	}
	return n.NormalizeBytes(b)
}

// NormalizeBytes 规范化内存中的图片。
//
// 约束：
// - 输入允许 PNG/JPEG/GIF/WebP/BMP
// - 带透明通道或调色板的图片先铺到白底上（JPEG 没有 alpha）
// - 最长边超过上限时等比缩小（CatmullRom），否则保持原尺寸
// - 输出固定为 JPEG
func (n Normalizer) NormalizeBytes(src []byte) (Image, error) {
	if len(src) == 0 {
		return Image{}, errors.New("图片为空")
	}
	maxDim := n.MaxDimension
	if maxDim <= 0 {
		maxDim = MaxDimension
	}
	quality := n.Quality
	if quality <= 0 || quality > 100 {
		quality = JPEGQuality
	}

	img, format, err := image.Decode(bytes.NewReader(src))
	if err != nil {
		return Image{}, fmt.Errorf("解码图片失败：%w", err)
	}

	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return Image{}, fmt.Errorf("图片尺寸无效（%s）：%dx%d", format, b.Dx(), b.Dy())
	}

	w, h := fitWithin(b.Dx(), b.Dy(), maxDim)
	resized := w != b.Dx() || h != b.Dy()

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), image.White, image.Point{}, draw.Src)
	if resized {
		draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)
	} else {
		draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Over)
	}

	var out bytes.Buffer
	if err := jpeg.Encode(&out, dst, &jpeg.Options{Quality: quality}); err != nil {
		return Image{}, err
	}
	return Image{Data: out.Bytes(), Width: w, Height: h, Resized: resized}, nil
}

// fitWithin 等比缩放 (w, h) 使最长边不超过 max；本来就不超过则原样返回。
func fitWithin(w, h, max int) (int, int) {
	if w <= max && h <= max {
		return w, h
	}
	if w >= h {
		nh := (h*max + w/2) / w
		if nh < 1 {
			nh = 1
		}
		return max, nh
	}
	nw := (w*max + h/2) / h
	if nw < 1 {
		nw = 1
	}
	return nw, max
}
