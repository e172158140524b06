// Package watch 轮询截图目录，把新出现的图片交给重命名流水线。
//
// 每个 Interval 把目录列表与上一次快照做 diff；新建或变化的候选文件先等待
// Debounce，再同步处理。同一个 Watcher 内每个路径至多处理一次，与结果无关。
//
// 典型用法：
//
//	w := watch.New(dir, renamer, watch.Options{Debounce: 2 * time.Second})
//	err := w.Run(ctx)
package watch

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/John-Robertt/shotnamer/internal/domain"
	"github.com/John-Robertt/shotnamer/internal/infra/fsx"
	"github.com/John-Robertt/shotnamer/internal/naming"
)

const (
	DefaultInterval = time.Second
	DefaultDebounce = 2 * time.Second
)

// Processor 对单个文件执行重命名流水线（通常是 *rename.Renamer）。
type Processor interface {
	ProcessOne(ctx context.Context, path string) domain.ItemResult
}

// Options 调整监听行为；零值字段取默认值。
type Options struct {
	// Interval 是轮询间隔，默认 1s。
	Interval time.Duration
	// Debounce 是发现文件到处理之间的等待（让截图程序写完），默认 2s。
	Debounce time.Duration
	// OnResult 非 nil 时，每个文件处理完（含放弃）后在监听 goroutine 中调用。
	OnResult func(domain.ItemResult)
	// Logger 为 nil 时使用 slog.Default()。
	Logger *slog.Logger
}

func (o *Options) defaults() {
	if o.Interval <= 0 {
		o.Interval = DefaultInterval
	}
	if o.Debounce <= 0 {
		o.Debounce = DefaultDebounce
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

type fileState struct {
	size    int64
	modNano int64
}

// Watcher 监听单个目录。Run 不可并发调用；Seen/Stats 可在任意 goroutine 调用。
type Watcher struct {
	dir  string
	proc Processor
	opts Options

	// snap 是上一次观察到的目录列表（文件名 -> 大小+mtime）。
	snap map[string]fileState

	mu        sync.Mutex
	processed map[string]struct{}

	// sleep 等待 d 或 ctx 结束；测试中替换。
	sleep func(ctx context.Context, d time.Duration) error

	ticks     atomic.Int64
	events    atomic.Int64
	done      atomic.Int64
	failed    atomic.Int64
	abandoned atomic.Int64
	errors    atomic.Int64
}

// Stats 是计数器快照。
type Stats struct {
	Ticks     int64 `json:"ticks"`
	Events    int64 `json:"events"`
	Processed int64 `json:"processed"`
	Failed    int64 `json:"failed"`
	Abandoned int64 `json:"abandoned"`
	Errors    int64 `json:"errors"`
}

// New 为 dir 创建 Watcher；调用 Run 开始监听。
func New(dir string, proc Processor, opts Options) *Watcher {
	opts.defaults()
	return &Watcher{
		dir:       filepath.Clean(dir),
		proc:      proc,
		opts:      opts,
		processed: make(map[string]struct{}),
		sleep:     sleepCtx,
	}
}

// Stats 返回当前计数。
func (w *Watcher) Stats() Stats {
	return Stats{
		Ticks:     w.ticks.Load(),
		Events:    w.events.Load(),
		Processed: w.done.Load(),
		Failed:    w.failed.Load(),
		Abandoned: w.abandoned.Load(),
		Errors:    w.errors.Load(),
	}
}

// Seen 报告 path 是否已进入已处理集合。
func (w *Watcher) Seen(path string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.processed[filepath.Clean(path)]
	return ok
}

// Run 按 opts.Interval 轮询，直到 ctx 取消（正常停止，返回 nil）。
// 启动时已存在的文件属于初始快照，不会触发处理。
func (w *Watcher) Run(ctx context.Context) error {
	log := w.opts.Logger

	snap, err := w.list()
	if err != nil {
		w.errors.Add(1)
		log.Warn("watch: initial listing failed", "dir", w.dir, "error", err)
		snap = map[string]fileState{}
	}
	w.snap = snap

	ticker := time.NewTicker(w.opts.Interval)
	defer ticker.Stop()

	log.Info("watch: started", "dir", w.dir, "interval", w.opts.Interval, "debounce", w.opts.Debounce)

	for {
		select {
		case <-ctx.Done():
			log.Info("watch: stopped", "processed", w.done.Load(), "failed", w.failed.Load(), "abandoned", w.abandoned.Load())
			return nil
		case <-ticker.C:
			w.Tick(ctx)
		}
	}
}

// Tick 执行一次轮询：diff 目录列表，按文件名顺序处理新建/变化的文件。
// 导出以便不依赖 ticker 驱动（测试、一次性调用）。
func (w *Watcher) Tick(ctx context.Context) {
	w.ticks.Add(1)

	cur, err := w.list()
	if err != nil {
		w.errors.Add(1)
		w.opts.Logger.Warn("watch: listing failed", "dir", w.dir, "error", err)
		return
	}
	if w.snap == nil {
		w.snap = map[string]fileState{}
	}

	var changed []string
	for name, st := range cur {
		prev, ok := w.snap[name]
		if !ok || prev != st {
			changed = append(changed, name)
		}
	}
	w.snap = cur
	sort.Strings(changed)

	for _, name := range changed {
		if ctx.Err() != nil {
			return
		}
		w.handle(ctx, filepath.Join(w.dir, name))
	}
}

// handle 把路径推进 Unseen -> Pending -> Done。
// 路径在等待前就加入已处理集合，之后的事件（包括同名重建）一律忽略。
func (w *Watcher) handle(ctx context.Context, path string) {
	name := filepath.Base(path)
	if !naming.IsCandidate(name) {
		return
	}
	if !w.markSeen(path) {
		return
	}
	w.events.Add(1)

	log := w.opts.Logger.With("file", name)
	log.Info("watch: new screenshot, waiting", "debounce", w.opts.Debounce)

	if err := w.sleep(ctx, w.opts.Debounce); err != nil {
		w.abandon(log, path, domain.ErrCodeCanceled, "已取消：等待期间收到停止信号")
		return
	}

	ok, err := fsx.Exists(path)
	if err != nil {
		w.errors.Add(1)
		w.abandon(log, path, domain.ErrCodeIOFailed, err.Error())
		return
	}
	if !ok {
		w.abandon(log, path, domain.ErrCodeFileGone, "等待期间文件已消失")
		return
	}

	// 停止信号不打断进行中的推理；它在本文件处理完后生效。
	res := w.proc.ProcessOne(context.WithoutCancel(ctx), path)
	if res.OK() {
		w.done.Add(1)
	} else {
		w.failed.Add(1)
	}
	w.report(res)
}

func (w *Watcher) abandon(log *slog.Logger, path, code, msg string) {
	w.abandoned.Add(1)
	log.Info("watch: abandoned", "reason", code)
	w.report(domain.ItemResult{
		Src:       path,
		Status:    domain.StatusAbandoned,
		ErrorCode: code,
		ErrorMsg:  msg,
	})
}

func (w *Watcher) report(res domain.ItemResult) {
	if w.opts.OnResult != nil {
		w.opts.OnResult(res)
	}
}

// markSeen 把 path 加入已处理集合；已存在时返回 false。
func (w *Watcher) markSeen(path string) bool {
	path = filepath.Clean(path)
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.processed[path]; ok {
		return false
	}
	w.processed[path] = struct{}{}
	return true
}

// list 返回 dir 下的直接子项中的普通文件（符号链接按目标判断，与批处理一致）。
func (w *Watcher) list() (map[string]fileState, error) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return nil, err
	}
	out := make(map[string]fileState, len(entries))
	for _, e := range entries {
		info, ok := fsx.RegularFileInfo(filepath.Join(w.dir, e.Name()), e)
		if !ok {
			continue
		}
		out[e.Name()] = fileState{size: info.Size(), modNano: info.ModTime().UnixNano()}
	}
	return out, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
