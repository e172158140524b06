package rename

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"testing"
	"time"

	"github.com/John-Robertt/shotnamer/internal/domain"
	"github.com/John-Robertt/shotnamer/internal/infra/fsx"
	"github.com/John-Robertt/shotnamer/internal/infra/imgx"
	"github.com/John-Robertt/shotnamer/internal/vision"
)

var fixedNow = time.Date(2025, 6, 1, 9, 30, 0, 0, time.Local)

type recordTagger struct {
	err   error
	calls []string
}

func (t *recordTagger) Tag(path, text string) error {
	t.calls = append(t.calls, filepath.Base(path)+"|"+text)
	return t.err
}

func newRenamer(desc string, err error) *Renamer {
	return &Renamer{
		Describer: vision.DescriberFunc(func(ctx context.Context, jpeg []byte) (string, error) {
			if len(jpeg) == 0 {
				return "", errors.New("空图片")
			}
			return desc, err
		}),
		Now:    func() time.Time { return fixedNow },
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func TestProcessOne_RenamesWithDatePrefix(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "shot.png")
	writePNG(t, src)

	tagger := &recordTagger{}
	r := newRenamer("Github pull request review", nil)
	r.Tagger = tagger

	res := r.ProcessOne(context.Background(), src)
	if !res.OK() || res.Status != domain.StatusRenamed {
		t.Fatalf("期望成功，实际 %+v", res)
	}

	want := filepath.Join(dir, "2025-06-01_github-pull-request-review.png")
	if res.Dst != want {
		t.Fatalf("期望 dst=%q，实际 %q", want, res.Dst)
	}
	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Fatalf("原路径不应再存在，Stat err=%v", err)
	}
	if _, err := os.Stat(want); err != nil {
		t.Fatalf("目标文件应存在：%v", err)
	}

	if !res.Tagged || len(tagger.calls) != 1 || tagger.calls[0] != "2025-06-01_github-pull-request-review.png|Github pull request review" {
		t.Fatalf("注释写入不符合预期：tagged=%v calls=%v", res.Tagged, tagger.calls)
	}
}

func TestProcessOne_UppercaseExtLowered(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "Screen Shot.PNG")
	writePNG(t, src)

	res := newRenamer("terminal output", nil).ProcessOne(context.Background(), src)
	if filepath.Base(res.Dst) != "2025-06-01_terminal-output.png" {
		t.Fatalf("扩展名应转小写，实际 %q", res.Dst)
	}
}

func TestProcessOne_CollisionAddsSuffix(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "2025-06-01_editor.png"))
	src := filepath.Join(dir, "a.png")
	writePNG(t, src)

	res := newRenamer("editor", nil).ProcessOne(context.Background(), src)
	if res.Dst != filepath.Join(dir, "2025-06-01_editor-1.png") {
		t.Fatalf("期望追加 -1，实际 %q", res.Dst)
	}
}

func TestProcessOne_DryRunDoesNotTouchFS(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "shot.png")
	writePNG(t, src)
	before := listDir(t, dir)

	tagger := &recordTagger{}
	r := newRenamer("Github pull request review", nil)
	r.DryRun = true
	r.Tagger = tagger

	res := r.ProcessOne(context.Background(), src)
	if res.Status != domain.StatusPlanned || !res.OK() {
		t.Fatalf("dry-run 期望 planned，实际 %+v", res)
	}
	if filepath.Base(res.Dst) != "2025-06-01_github-pull-request-review.png" {
		t.Fatalf("dry-run 也应给出目标名，实际 %q", res.Dst)
	}
	if after := listDir(t, dir); !reflect.DeepEqual(before, after) {
		t.Fatalf("dry-run 不应修改目录：before=%v after=%v", before, after)
	}
	if len(tagger.calls) != 0 {
		t.Fatalf("dry-run 不应写注释")
	}
}

func TestProcessOne_DescribeFailureLeavesFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "shot.png")
	writePNG(t, src)

	res := newRenamer("", errors.New("boom")).ProcessOne(context.Background(), src)
	if res.OK() || res.ErrorCode != domain.ErrCodeDescribeFailed {
		t.Fatalf("期望 describe_failed，实际 %+v", res)
	}
	if _, err := os.Stat(src); err != nil {
		t.Fatalf("失败时原文件应保持不动：%v", err)
	}
	if got := listDir(t, dir); !reflect.DeepEqual(got, []string{"shot.png"}) {
		t.Fatalf("失败时不应产生新文件：%v", got)
	}
}

func TestProcessOne_EmptyDescription(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "shot.png")
	writePNG(t, src)

	res := newRenamer("  \n ", nil).ProcessOne(context.Background(), src)
	if res.OK() || res.ErrorCode != domain.ErrCodeEmptyDescription {
		t.Fatalf("期望 empty_description，实际 %+v", res)
	}
	if _, err := os.Stat(src); err != nil {
		t.Fatalf("原文件应保持不动：%v", err)
	}
}

func TestProcessOne_NormalizeFailure(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "broken.png")
	if err := os.WriteFile(src, []byte("not a png"), 0o644); err != nil {
		t.Fatalf("写入失败：%v", err)
	}

	res := newRenamer("x", nil).ProcessOne(context.Background(), src)
	if res.OK() || res.ErrorCode != domain.ErrCodeNormalizeFailed {
		t.Fatalf("期望 normalize_failed，实际 %+v", res)
	}
}

type vanishingNormalizer struct{}

// Normalize 在返回前删除源文件，模拟“推理期间文件被其它程序移走”。
func (vanishingNormalizer) Normalize(path string) (imgx.Image, error) {
	img, err := imgx.Normalizer{}.Normalize(path)
	if err != nil {
		return img, err
	}
	return img, os.Remove(path)
}

func TestProcessOne_RenameFailureIsPerFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "shot.png")
	writePNG(t, src)

	r := newRenamer("desc", nil)
	r.Normalizer = vanishingNormalizer{}

	res := r.ProcessOne(context.Background(), src)
	if res.OK() || res.ErrorCode != domain.ErrCodeRenameFailed || res.Dst != "" {
		t.Fatalf("期望 rename_failed，实际 %+v", res)
	}
}

func TestProcessOne_TagFailureStillRenamed(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "shot.png")
	writePNG(t, src)

	r := newRenamer("desc", nil)
	r.Tagger = &recordTagger{err: errors.New("xattr 不支持")}

	res := r.ProcessOne(context.Background(), src)
	if res.Status != domain.StatusRenamed || res.Tagged || res.TagError == "" {
		t.Fatalf("注释失败不应影响结果：%+v", res)
	}
}

func TestProcessOne_TagUsesRawDescription(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "shot.png")
	writePNG(t, src)

	raw := "  Github pull request review\n"
	tagger := &recordTagger{}
	r := newRenamer(raw, nil)
	r.Tagger = tagger

	res := r.ProcessOne(context.Background(), src)
	if !res.OK() || res.Description != "Github pull request review" {
		t.Fatalf("报告中的描述应去掉首尾空白，实际 %+v", res)
	}
	want := "2025-06-01_github-pull-request-review.png|" + raw
	if len(tagger.calls) != 1 || tagger.calls[0] != want {
		t.Fatalf("注释应为模型原文，实际 %q", tagger.calls)
	}
}

func TestProcessOne_CrossDeviceLeavesFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "shot.png")
	writePNG(t, src)

	old := renameFile
	renameFile = func(from, to string) error {
		return &fsx.CrossDeviceError{Src: from, Dst: to, Err: errors.New("invalid cross-device link")}
	}
	defer func() { renameFile = old }()

	tagger := &recordTagger{}
	r := newRenamer("desc", nil)
	r.Tagger = tagger

	res := r.ProcessOne(context.Background(), src)
	if res.OK() || res.ErrorCode != domain.ErrCodeCrossDevice || res.Dst != "" {
		t.Fatalf("期望 cross_device 且 dst 为空，实际 %+v", res)
	}
	if got := listDir(t, dir); !reflect.DeepEqual(got, []string{"shot.png"}) {
		t.Fatalf("原文件应保持不动，实际 %v", got)
	}
	if len(tagger.calls) != 0 {
		t.Fatalf("rename 失败时不应写注释：%v", tagger.calls)
	}
}

func TestProcessOne_CanceledContext(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "shot.png")
	writePNG(t, src)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := newRenamer("desc", nil).ProcessOne(ctx, src)
	if res.OK() || res.ErrorCode != domain.ErrCodeCanceled {
		t.Fatalf("期望 canceled，实际 %+v", res)
	}
}

func writePNG(t *testing.T, path string) {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	img.SetNRGBA(1, 1, color.NRGBA{R: 255, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png 失败：%v", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("写入文件失败：%v", err)
	}
}

func listDir(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir 失败：%v", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names
}
