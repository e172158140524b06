package rename

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/John-Robertt/shotnamer/internal/domain"
	"github.com/John-Robertt/shotnamer/internal/infra/fsx"
	"github.com/John-Robertt/shotnamer/internal/infra/imgx"
	"github.com/John-Robertt/shotnamer/internal/naming"
	"github.com/John-Robertt/shotnamer/internal/vision"
)

// 测试中替换，以稳定模拟 EXDEV 等 rename 错误。
var renameFile = fsx.Rename

// Normalizer 把源图片转为送给推理接口的 JPEG。
type Normalizer interface {
	Normalize(path string) (imgx.Image, error)
}

// Tagger 把模型原始描述（未 trim）写为文件注释（best-effort）。
type Tagger interface {
	Tag(path, text string) error
}

// Renamer 是单文件重命名流水线：
// 规范化图片 -> 推理描述 -> 清洗 -> 日期前缀 -> 去重 -> rename -> 写注释。
//
// 约束：
// - 描述失败/为空、rename 失败：该文件失败，原文件保持不动（下次运行可重试）
// - 注释写入失败只记录，不改变“已重命名”的结论
// - DryRun：只计算目标名，不触碰文件系统
type Renamer struct {
	Describer  vision.Describer
	Normalizer Normalizer // nil 时使用 imgx.Normalizer{}
	Tagger     Tagger     // nil 时不写注释

	DryRun    bool
	MaxLength int

	Now    func() time.Time // nil 时使用 time.Now（本地时区）
	Logger *slog.Logger     // nil 时使用 slog.Default()
}

// ProcessOne 处理单个截图文件，返回该文件的结果；result.OK() 即成功与否。
func (r *Renamer) ProcessOne(ctx context.Context, path string) domain.ItemResult {
	log := r.logger().With("file", filepath.Base(path))
	item := domain.ItemResult{
		Src:    path,
		Status: domain.StatusFailed, // 成功时覆盖
	}

	if err := ctx.Err(); err != nil {
		return fail(log, item, domain.ErrCodeCanceled, fmt.Sprintf("已取消：%v", err))
	}

	log.Info("处理截图")

	img, err := r.normalizer().Normalize(path)
	if err != nil {
		return fail(log, item, domain.ErrCodeNormalizeFailed, fmt.Sprintf("读取/规范化图片失败：%v", err))
	}
	if img.Resized {
		log.Info("已缩放", "size", fmt.Sprintf("%dx%d", img.Width, img.Height), "bytes", humanize.Bytes(uint64(len(img.Data))))
	}

	if r.Describer == nil {
		return fail(log, item, domain.ErrCodeDescribeFailed, "未配置推理接口")
	}
	desc, err := r.Describer.Describe(ctx, img.Data)
	if err != nil {
		return fail(log, item, domain.ErrCodeDescribeFailed, describeErrorMessage(err))
	}
	if strings.TrimSpace(desc) == "" {
		return fail(log, item, domain.ErrCodeEmptyDescription, "模型返回了空描述")
	}
	item.Description = strings.TrimSpace(desc)

	stem := naming.Sanitize(desc, r.MaxLength)
	item.Stem = stem
	log.Info("模型描述", "description", truncate(item.Description, 60), "stem", stem)

	ext := filepath.Ext(path)
	candidate := filepath.Join(filepath.Dir(path), naming.DatedName(r.now(), stem, ext))
	dst, err := fsx.UniquePath(candidate)
	if err != nil {
		return fail(log, item, domain.ErrCodeIOFailed, fmt.Sprintf("检查目标路径失败：%v", err))
	}
	item.Dst = dst

	if r.DryRun {
		item.Status = domain.StatusPlanned
		log.Info("将重命名为", "dst", filepath.Base(dst))
		return item
	}

	if err := renameFile(path, dst); err != nil {
		code := domain.ErrCodeRenameFailed
		if fsx.IsCrossDevice(err) {
			code = domain.ErrCodeCrossDevice
		}
		item.Dst = ""
		return fail(log, item, code, fmt.Sprintf("重命名失败：%v", err))
	}
	item.Status = domain.StatusRenamed
	log.Info("已重命名", "dst", filepath.Base(dst))

	if r.Tagger != nil {
		if err := r.Tagger.Tag(dst, desc); err != nil {
			item.TagError = err.Error()
			log.Warn("写入文件注释失败", "error", err)
		} else {
			item.Tagged = true
			log.Info("已写入文件注释")
		}
	}
	return item
}

func fail(log *slog.Logger, item domain.ItemResult, code, msg string) domain.ItemResult {
	item.Status = domain.StatusFailed
	item.ErrorCode = code
	item.ErrorMsg = msg
	log.Warn("跳过", "error_code", code, "error", msg)
	return item
}

// describeErrorMessage 尽量给出可操作的提示（鉴权/限流/超时是最常见的问题）。
func describeErrorMessage(err error) string {
	switch status := vision.HTTPStatus(err); {
	case status == 401 || status == 403:
		return fmt.Sprintf("推理接口拒绝访问（HTTP %d），请检查 OPENAI_API_KEY：%v", status, err)
	case status == 404:
		return fmt.Sprintf("推理接口返回 HTTP 404（模型名或 base_url 可能有误）：%v", err)
	case status == 429:
		return fmt.Sprintf("推理接口限流（HTTP 429），稍后重新运行即可：%v", err)
	case status >= 500:
		return fmt.Sprintf("推理接口服务端错误（HTTP %d）：%v", status, err)
	}
	if errors.Is(err, context.DeadlineExceeded) || strings.Contains(strings.ToLower(err.Error()), "timeout") {
		return fmt.Sprintf("推理请求超时：%v", err)
	}
	return fmt.Sprintf("推理失败：%v", err)
}

func (r *Renamer) normalizer() Normalizer {
	if r.Normalizer == nil {
		return imgx.Normalizer{}
	}
	return r.Normalizer
}

func (r *Renamer) now() time.Time {
	if r.Now == nil {
		return time.Now()
	}
	return r.Now()
}

func (r *Renamer) logger() *slog.Logger {
	if r.Logger == nil {
		return slog.Default()
	}
	return r.Logger
}

func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	// 按 rune 截断，避免切坏多字节字符。
	rs := []rune(s)
	if len(rs) <= max {
		return s
	}
	return string(rs[:max]) + "..."
}
