package run

import (
	"time"

	"github.com/John-Robertt/shotnamer/internal/domain"
)

// Observer 用于把“运行进度/条目结果”从批处理流程中解耦出来。
//
// 约束：
// - run 包只负责发事件，不做任何输出（避免污染 stdout 的 JSON 契约）。
// - 事件按文件顺序串行发出，来自调用 ProcessExisting 的 goroutine。
type Observer interface {
	// OnStart 在列目录完成后调用（total=待处理文件数；列目录失败时为 0）。
	OnStart(dir string, total int)
	// OnItemStart 在某个文件开始处理前调用（推理通常耗时数秒，用于提示“正在处理”）。
	OnItemStart(idx, total int, path string)
	// OnItemDone 在某个文件处理完成时调用。
	OnItemDone(idx, total int, res domain.ItemResult, dur time.Duration)
	// OnFinish 在报告 Finalize 之后调用。
	OnFinish(rr domain.RunReport)
}
