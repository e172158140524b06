package main

import (
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/John-Robertt/shotnamer/internal/app/run"
	"github.com/John-Robertt/shotnamer/internal/config"
	"github.com/John-Robertt/shotnamer/internal/domain"
)

var _ run.Observer = (*progressUI)(nil)

// progressUI 是交互终端下的批处理进度输出。
//
// 设计目标：
// - 所有过程信息写到 stderr（或 fallback 到 stdout），不污染 stdout 的 JSON 输出契约
// - 事件驱动：run 层只发事件，CLI 决定如何展示
// - keepalive：单张截图推理较慢时也会定期输出一行，降低等待焦虑
type progressUI struct {
	w   io.Writer
	eff config.EffectiveConfig

	mu          sync.Mutex
	startedAt   time.Time
	lastPrinted time.Time

	total   int
	done    int
	ok      int
	fail    int
	current string
	itemAt  time.Time

	keepaliveThreshold time.Duration
	tickerInterval     time.Duration

	stopCh        chan struct{}
	tickerStarted bool
}

func newProgressUI(w io.Writer, eff config.EffectiveConfig) *progressUI {
	return &progressUI{
		w:                  w,
		eff:                eff,
		keepaliveThreshold: 8 * time.Second,
		tickerInterval:     2 * time.Second,
	}
}

func (p *progressUI) OnStart(dir string, total int) {
	now := time.Now()

	p.mu.Lock()
	defer p.mu.Unlock()

	p.startedAt = now
	p.total = total

	mode := "rename"
	if p.eff.DryRun {
		mode = "dry-run (不修改文件)"
	}

	fmt.Fprintf(p.w, "[%s] shotnamer\n", now.Format("15:04:05"))
	fmt.Fprintln(p.w, "配置（生效）:")
	fmt.Fprintf(p.w, "  dir: %s\n", dir)
	fmt.Fprintf(p.w, "  mode: %s\n", mode)
	fmt.Fprintf(p.w, "  model: %s\n", p.eff.Model)
	if p.eff.BaseURL != "" {
		fmt.Fprintf(p.w, "  base_url: %s\n", truncate(p.eff.BaseURL, 120))
	}
	fmt.Fprintf(p.w, "  proxy: %s\n", formatProxy(p.eff.ProxyURL))
	fmt.Fprintf(p.w, "  tag: %s\n", onOff(p.eff.Tag))
	fmt.Fprintf(p.w, "  cache: %s\n", onOff(p.eff.Cache))
	fmt.Fprintf(p.w, "  max_length: %d\n", p.eff.MaxLength)
	if p.eff.ReportPath != "" {
		fmt.Fprintf(p.w, "  report: %s\n", p.eff.ReportPath)
	}
	fmt.Fprintf(p.w, "待处理: %d\n\n", total)

	p.lastPrinted = time.Now()
	if total > 0 && !p.tickerStarted {
		p.startTickerLocked()
	}
}

func (p *progressUI) OnItemStart(idx, total int, path string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.current = filepath.Base(path)
	p.itemAt = time.Now()
}

func (p *progressUI) OnItemDone(idx, total int, res domain.ItemResult, dur time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.done = idx
	p.total = total
	p.current = ""

	src := filepath.Base(res.Src)
	switch {
	case res.OK():
		p.ok++
		note := ""
		if res.TagError != "" {
			note = " (注释未写入)"
		}
		fmt.Fprintf(p.w, "[%d/%d] %s -> %s%s (%s)\n",
			idx, total, src, filepath.Base(res.Dst), note, formatShortDuration(dur),
		)
	default:
		p.fail++
		fmt.Fprintf(p.w, "[%d/%d] %s FAIL %s: %s (%s)\n",
			idx, total, src, res.ErrorCode, truncate(res.ErrorMsg, 160), formatShortDuration(dur),
		)
	}

	p.lastPrinted = time.Now()
}

func (p *progressUI) OnFinish(rr domain.RunReport) {
	p.mu.Lock()
	defer p.mu.Unlock()

	// 停止 ticker，避免在结束打印后又冒出 keepalive。
	if p.tickerStarted {
		close(p.stopCh)
		p.tickerStarted = false
	}
	if !p.startedAt.IsZero() && p.total > 0 {
		fmt.Fprintf(p.w, "\n耗时: %s\n", formatElapsed(time.Since(p.startedAt)))
	}
}

func (p *progressUI) startTickerLocked() {
	p.stopCh = make(chan struct{})
	p.tickerStarted = true

	interval := p.tickerInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	threshold := p.keepaliveThreshold
	if threshold <= 0 {
		threshold = 8 * time.Second
	}
	stop := p.stopCh

	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()

		for {
			select {
			case <-t.C:
				p.mu.Lock()
				if p.current != "" && time.Since(p.lastPrinted) > threshold {
					fmt.Fprintf(p.w, "处理中: %s%s elapsed=%s done=%d/%d\n",
						p.current, sizeNote(p.eff.Dir, p.current), formatElapsed(time.Since(p.itemAt)), p.done, p.total,
					)
					p.lastPrinted = time.Now()
				}
				p.mu.Unlock()
			case <-stop:
				return
			}
		}
	}()
}

// sizeNote 返回 " (1.2 MB)" 形式的文件大小提示；stat 失败时返回空串。
func sizeNote(dir, name string) string {
	if dir == "" || name == "" {
		return ""
	}
	fi, err := os.Stat(filepath.Join(dir, name))
	if err != nil {
		return ""
	}
	return " (" + humanize.Bytes(uint64(fi.Size())) + ")"
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}

func formatProxy(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "off"
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "on (" + truncate(raw, 120) + ")"
	}
	auth := "off"
	if u.User != nil {
		auth = "on"
	}
	return fmt.Sprintf("on (%s://%s, auth=%s)", u.Scheme, u.Host, auth)
}

// truncate 按字符（rune）截断，不会切开多字节 UTF-8 序列。
func truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	rs := []rune(s)
	if max <= 0 || len(rs) <= max {
		return s
	}
	if max <= 3 {
		return string(rs[:max])
	}
	return string(rs[:max-3]) + "..."
}

func formatShortDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}

func formatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	sec := int(d.Seconds())
	h := sec / 3600
	m := (sec % 3600) / 60
	s := sec % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}
