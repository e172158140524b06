package imgx

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

func TestNormalize_DownscalesLongestSide(t *testing.T) {
	src := solidPNG(t, 2048, 512, color.NRGBA{R: 10, G: 200, B: 30, A: 255})

	out, err := Normalizer{}.NormalizeBytes(src)
	if err != nil {
		t.Fatalf("NormalizeBytes 失败：%v", err)
	}
	if !out.Resized || out.Width != MaxDimension || out.Height != 256 {
		t.Fatalf("尺寸不符合预期：%+v", out)
	}

	got, err := jpeg.Decode(bytes.NewReader(out.Data))
	if err != nil {
		t.Fatalf("输出不是 JPEG：%v", err)
	}
	if gb := got.Bounds(); gb.Dx() != MaxDimension || gb.Dy() != 256 {
		t.Fatalf("JPEG 尺寸不符合预期：%v", gb)
	}
}

func TestNormalize_PortraitAndSmallKeptAsIs(t *testing.T) {
	out, err := Normalizer{MaxDimension: 100}.NormalizeBytes(solidPNG(t, 50, 400, color.NRGBA{A: 255}))
	if err != nil {
		t.Fatalf("NormalizeBytes 失败：%v", err)
	}
	if out.Width != 13 || out.Height != 100 {
		t.Fatalf("竖图缩放不符合预期：%dx%d", out.Width, out.Height)
	}

	small, err := Normalizer{}.NormalizeBytes(solidPNG(t, 40, 30, color.NRGBA{A: 255}))
	if err != nil {
		t.Fatalf("NormalizeBytes 失败：%v", err)
	}
	if small.Resized || small.Width != 40 || small.Height != 30 {
		t.Fatalf("小图不应缩放：%+v", small)
	}
}

func TestNormalize_TransparentFlattenedToWhite(t *testing.T) {
	out, err := Normalizer{}.NormalizeBytes(solidPNG(t, 20, 20, color.NRGBA{}))
	if err != nil {
		t.Fatalf("NormalizeBytes 失败：%v", err)
	}
	got, err := jpeg.Decode(bytes.NewReader(out.Data))
	if err != nil {
		t.Fatalf("decode 失败：%v", err)
	}
	c := color.RGBAModel.Convert(got.At(10, 10)).(color.RGBA)
	if c.R < 240 || c.G < 240 || c.B < 240 {
		t.Fatalf("透明像素应铺白底，实际 %v", c)
	}
}

func TestNormalize_FromFile(t *testing.T) {
	p := filepath.Join(t.TempDir(), "shot.png")
	if err := os.WriteFile(p, solidPNG(t, 8, 8, color.NRGBA{R: 255, A: 255}), 0o644); err != nil {
		t.Fatalf("写入失败：%v", err)
	}
	if _, err := (Normalizer{}).Normalize(p); err != nil {
		t.Fatalf("Normalize 失败：%v", err)
	}
	if _, err := (Normalizer{}).Normalize(filepath.Join(t.TempDir(), "missing.png")); err == nil {
		t.Fatalf("期望文件不存在时报错")
	}
}

func TestNormalize_InvalidInput(t *testing.T) {
	if _, err := (Normalizer{}).NormalizeBytes(nil); err == nil {
		t.Fatalf("期望空输入返回错误")
	}
	if _, err := (Normalizer{}).NormalizeBytes([]byte("not an image")); err == nil {
		t.Fatalf("期望非图片输入返回错误")
	}
}

func solidPNG(t *testing.T, w, h int, c color.NRGBA) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png 失败：%v", err)
	}
	return buf.Bytes()
}
