package run

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/John-Robertt/shotnamer/internal/domain"
	"github.com/John-Robertt/shotnamer/internal/scan"
)

// Processor 处理单个文件（通常是 *rename.Renamer）。
type Processor interface {
	ProcessOne(ctx context.Context, path string) domain.ItemResult
}

// Options 是一次批处理运行的元信息（只进入报告，不影响处理逻辑）。
type Options struct {
	RunID  string
	DryRun bool
	Model  string

	Observer Observer // 可为 nil
}

// ProcessExisting 处理 dir 下所有尚未处理的截图，并返回对外稳定的 RunReport。
//
// 约束：
// - 串行处理，按文件名排序；单个文件失败不影响其他文件
// - 列目录失败降级为一条合成失败条目（io_failed）
// - ctx 取消后不再开始下一个文件（剩余文件不出现在报告里）；进行中的文件不被打断
func ProcessExisting(ctx context.Context, dir string, proc Processor, opts Options) domain.RunReport {
	obs := opts.Observer
	rr := domain.RunReport{
		RunID:     opts.RunID,
		Path:      filepath.Clean(dir),
		DryRun:    opts.DryRun,
		Model:     opts.Model,
		StartedAt: time.Now().UTC(),
	}

	files, err := scan.ListScreenshots(dir)
	if err != nil {
		if obs != nil {
			obs.OnStart(rr.Path, 0)
		}
		rr.Items = append(rr.Items, syntheticFailed(domain.ErrCodeIOFailed, fmt.Sprintf("列目录失败：%v", err)))
		return finish(rr, obs)
	}

	total := len(files)
	if obs != nil {
		obs.OnStart(rr.Path, total)
	}
	rr.Items = make([]domain.ItemResult, 0, total)

	for i, f := range files {
		if ctx.Err() != nil {
			break
		}
		if obs != nil {
			obs.OnItemStart(i+1, total, f.AbsPath)
		}
		started := time.Now()
		res := proc.ProcessOne(context.WithoutCancel(ctx), f.AbsPath)
		rr.Items = append(rr.Items, res)
		if obs != nil {
			obs.OnItemDone(i+1, total, res, time.Since(started))
		}
	}

	return finish(rr, obs)
}

func finish(rr domain.RunReport, obs Observer) domain.RunReport {
	rr.FinishedAt = time.Now().UTC()
	rr.Finalize()
	if obs != nil {
		obs.OnFinish(rr)
	}
	return rr
}

func syntheticFailed(code, msg string) domain.ItemResult {
	return domain.ItemResult{
		Status:    domain.StatusFailed,
		ErrorCode: code,
		ErrorMsg:  msg,
	}
}
