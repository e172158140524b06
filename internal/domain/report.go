package domain

import (
	"sort"
	"time"
)

const (
	StatusRenamed   = "renamed"
	StatusPlanned   = "planned" // dry-run：只计算目标名
	StatusFailed    = "failed"
	StatusAbandoned = "abandoned" // 监听期间文件在 debounce 窗口内消失
)

const (
	ErrCodeNormalizeFailed  = "normalize_failed"
	ErrCodeDescribeFailed   = "describe_failed"
	ErrCodeEmptyDescription = "empty_description"
	ErrCodeRenameFailed     = "rename_failed"
	ErrCodeCrossDevice      = "cross_device"
	ErrCodeIOFailed         = "io_failed"
	ErrCodeCanceled         = "canceled"
	ErrCodeFileGone         = "file_gone"
)

// ItemResult 是单个文件经过重命名流水线后的结果。
type ItemResult struct {
	Src string `json:"src"`
	Dst string `json:"dst"`

	Description string `json:"description"`
	Stem        string `json:"stem"`

	Status    string `json:"status"`
	ErrorCode string `json:"error_code"`
	ErrorMsg  string `json:"error_msg"`

	// Tagged/TagError 记录 best-effort 的注释写入结果；写失败不影响 Status。
	Tagged   bool   `json:"tagged"`
	TagError string `json:"tag_error,omitempty"`
}

// OK 报告该文件是否“成功”：已重命名，或 dry-run 下成功算出了目标名。
func (r ItemResult) OK() bool {
	return r.Status == StatusRenamed || r.Status == StatusPlanned
}

// RunReport 是批处理一次运行的对外输出（stdout JSON / --report 文件）。
type RunReport struct {
	RunID  string `json:"run_id"`
	Path   string `json:"path"`
	DryRun bool   `json:"dry_run"`
	Model  string `json:"model"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Summary ReportSummary `json:"summary"`
	Items   []ItemResult  `json:"items"`
}

type ReportSummary struct {
	Renamed   int `json:"renamed"`
	Planned   int `json:"planned"`
	Failed    int `json:"failed"`
	Abandoned int `json:"abandoned"`
}

// Finalize 做三件事：
// 1) 时间统一为 UTC（确保 JSON 为 RFC3339 且后缀 Z）
// 2) items 稳定排序：按 src 字典序；src=="" 的合成条目排在最后
// 3) summary 由 items 计算得出
func (r *RunReport) Finalize() {
	r.StartedAt = r.StartedAt.UTC()
	r.FinishedAt = r.FinishedAt.UTC()
	if r.Items == nil {
		r.Items = []ItemResult{}
	}

	sort.SliceStable(r.Items, func(i, j int) bool {
		a := r.Items[i].Src
		b := r.Items[j].Src
		if a == "" || b == "" {
			return a != "" && b == ""
		}
		return a < b
	})

	var s ReportSummary
	for _, it := range r.Items {
		switch it.Status {
		case StatusRenamed:
			s.Renamed++
		case StatusPlanned:
			s.Planned++
		case StatusFailed:
			s.Failed++
		case StatusAbandoned:
			s.Abandoned++
		}
	}
	r.Summary = s
}
