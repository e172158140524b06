package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/google/uuid"

	"github.com/John-Robertt/shotnamer/internal/app/rename"
	"github.com/John-Robertt/shotnamer/internal/app/run"
	"github.com/John-Robertt/shotnamer/internal/config"
	"github.com/John-Robertt/shotnamer/internal/domain"
	"github.com/John-Robertt/shotnamer/internal/infra/cache"
	"github.com/John-Robertt/shotnamer/internal/infra/fsx"
	"github.com/John-Robertt/shotnamer/internal/infra/httpx"
	"github.com/John-Robertt/shotnamer/internal/infra/imgx"
	"github.com/John-Robertt/shotnamer/internal/infra/xattrx"
	"github.com/John-Robertt/shotnamer/internal/vision"
	"github.com/John-Robertt/shotnamer/internal/watch"
)

func main() {
	if code := realMain(os.Args[1:]); code != 0 {
		os.Exit(code)
	}
}

func realMain(args []string) int {
	for _, a := range args {
		if isHelp(a) {
			printUsage(os.Stdout)
			return 0
		}
	}

	cli, err := parseArgs(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "参数错误：%v\n\n", err)
		printUsage(os.Stderr)
		return 2
	}

	cwd, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(os.Stderr, "读取当前目录失败：%v\n", err)
		return 1
	}

	eff, err := config.LoadEffective(cwd, cli, os.Getenv)
	if err != nil {
		fmt.Fprintf(os.Stderr, "错误：%v\n", err)
		return 1
	}

	runID := uuid.NewString()
	logger := newLogger(os.Stderr, eff).With("run_id", runID)
	slog.SetDefault(logger)
	if eff.ConfigFile != "" {
		logger.Info("已读取配置文件", "path", eff.ConfigFile)
	}

	renamer, err := newRenamer(eff, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "初始化推理客户端失败：%v\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if eff.Watch {
		return watchCmd(ctx, eff, renamer, logger)
	}
	return batchCmd(ctx, eff, runID, renamer)
}

func newRenamer(eff config.EffectiveConfig, logger *slog.Logger) (*rename.Renamer, error) {
	hc, err := httpx.NewAPIClient(eff.ProxyURL, eff.Timeout)
	if err != nil {
		return nil, err
	}
	oa, err := vision.NewOpenAI(vision.Config{
		APIKey:     eff.APIKey,
		BaseURL:    eff.BaseURL,
		Model:      eff.Model,
		HTTPClient: hc,
	})
	if err != nil {
		return nil, err
	}

	var desc vision.Describer = oa
	if eff.Cache {
		if root, ok := cache.DefaultRoot(); ok {
			desc = &cache.Describer{Store: cache.New(root), Model: oa.Model(), Next: oa, Logger: logger}
		}
	}

	r := &rename.Renamer{
		Describer:  desc,
		Normalizer: imgx.Normalizer{},
		DryRun:     eff.DryRun,
		MaxLength:  eff.MaxLength,
		Logger:     logger,
	}
	if eff.Tag {
		r.Tagger = xattrx.Comment{}
	}
	return r, nil
}

func watchCmd(ctx context.Context, eff config.EffectiveConfig, proc watch.Processor, logger *slog.Logger) int {
	fmt.Fprintf(os.Stderr, "监听 %s（model=%s，Ctrl+C 退出）\n", eff.Dir, eff.Model)

	w := watch.New(eff.Dir, proc, watch.Options{
		Interval: eff.PollInterval,
		Debounce: eff.Debounce,
		Logger:   logger,
		OnResult: func(res domain.ItemResult) { printResultLine(os.Stderr, res) },
	})
	if err := w.Run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "监听失败：%v\n", err)
		return 1
	}

	s := w.Stats()
	fmt.Fprintf(os.Stderr, "已停止：renamed=%d failed=%d abandoned=%d\n", s.Processed, s.Failed, s.Abandoned)
	return 0
}

func batchCmd(ctx context.Context, eff config.EffectiveConfig, runID string, proc run.Processor) int {
	progressW, interactive := pickProgressWriter()
	var obs run.Observer
	if interactive {
		obs = newProgressUI(progressW, eff)
	}

	rr := run.ProcessExisting(ctx, eff.Dir, proc, run.Options{
		RunID:    runID,
		DryRun:   eff.DryRun,
		Model:    eff.Model,
		Observer: obs,
	})

	if len(rr.Items) == 0 {
		fmt.Fprintln(os.Stderr, "no unprocessed screenshots")
	}

	code := 0
	if eff.ReportPath != "" {
		if err := writeReportFile(eff.ReportPath, rr); err != nil {
			fmt.Fprintf(os.Stderr, "写入报告失败：%v\n", err)
			code = 1
		}
	}

	emitReport(rr)
	return code
}

// parseArgs 解析 `shotnamer [flags] <dir>`；短/长参数与 --flag=value 形式都支持。
func parseArgs(args []string) (config.CLIArgs, error) {
	var cli config.CLIArgs

	value := func(i *int, name string) (string, error) {
		if *i+1 >= len(args) {
			return "", fmt.Errorf("%s 需要一个值", name)
		}
		*i++
		return args[*i], nil
	}

	for i := 0; i < len(args); i++ {
		a := args[i]
		name, inline, hasInline := a, "", false
		if strings.HasPrefix(a, "--") {
			name, inline, hasInline = strings.Cut(a, "=")
		}

		var err error
		switch name {
		case "-w", "--watch":
			cli.Watch = true
		case "-n", "--dry-run":
			cli.DryRun = true
		case "--no-tag":
			cli.NoTag = true
		case "--no-cache":
			cli.NoCache = true
		case "-v", "--verbose":
			cli.Verbose = true
		case "-m", "--model":
			cli.ModelSet = true
			if hasInline {
				cli.Model = inline
			} else {
				cli.Model, err = value(&i, name)
			}
		case "--config":
			if hasInline {
				cli.ConfigPath = inline
			} else {
				cli.ConfigPath, err = value(&i, name)
			}
		case "--report":
			if hasInline {
				cli.ReportPath = inline
			} else {
				cli.ReportPath, err = value(&i, name)
			}
		default:
			if strings.HasPrefix(a, "-") && a != "-" {
				return config.CLIArgs{}, fmt.Errorf("未知参数 %q", a)
			}
			if cli.Dir != "" {
				return config.CLIArgs{}, fmt.Errorf("重复的目录：%q 与 %q", cli.Dir, a)
			}
			cli.Dir = a
		}
		if err != nil {
			return config.CLIArgs{}, err
		}
		if hasInline && isBoolFlag(name) {
			return config.CLIArgs{}, fmt.Errorf("%s 不接受取值", name)
		}
	}

	if strings.TrimSpace(cli.Dir) == "" {
		return config.CLIArgs{}, fmt.Errorf("缺少目录参数")
	}
	if cli.ModelSet && strings.TrimSpace(cli.Model) == "" {
		return config.CLIArgs{}, fmt.Errorf("--model 不能为空")
	}
	if cli.Watch && cli.DryRun {
		return config.CLIArgs{}, fmt.Errorf("--dry-run 只能用于批处理，不能与 --watch 同时使用")
	}
	if cli.Watch && cli.ReportPath != "" {
		return config.CLIArgs{}, fmt.Errorf("--report 只能用于批处理，不能与 --watch 同时使用")
	}
	return cli, nil
}

func isBoolFlag(name string) bool {
	switch name {
	case "-w", "--watch", "-n", "--dry-run", "--no-tag", "--no-cache", "-v", "--verbose":
		return true
	}
	return false
}

func isHelp(s string) bool {
	return s == "-h" || s == "--help"
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `用法：
  shotnamer [flags] <dir>

用视觉模型为截图生成描述性文件名：YYYY-MM-DD_<description>.<ext>。
默认处理 <dir> 下所有尚未处理的截图后退出；--watch 持续监听新截图。

参数：
  -w, --watch         监听目录，处理新出现的截图（Ctrl+C 退出）
  -m, --model NAME    视觉模型（默认 gpt-4o-mini）
  -n, --dry-run       只打印将要执行的重命名，不修改文件（仅批处理）
      --config PATH   配置文件（默认 <用户配置目录>/shotnamer/config.yaml，可选）
      --report PATH   批处理结束后把 JSON 报告写入 PATH
      --no-tag        不把原始描述写入文件注释
      --no-cache      不读写描述缓存（每张图都重新推理）
  -v, --verbose       输出详细日志
  -h, --help          显示帮助

环境变量：
  OPENAI_API_KEY      必填
`)
}

// newLogger 返回写到 stderr 的文本日志；监听模式或 -v 时输出 Info，否则只输出 Warn 及以上。
func newLogger(w io.Writer, eff config.EffectiveConfig) *slog.Logger {
	level := slog.LevelWarn
	if eff.Watch || eff.Verbose {
		level = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func printResultLine(w io.Writer, res domain.ItemResult) {
	src := filepath.Base(res.Src)
	switch res.Status {
	case domain.StatusRenamed, domain.StatusPlanned:
		fmt.Fprintf(w, "%s -> %s\n", src, filepath.Base(res.Dst))
	case domain.StatusAbandoned:
		fmt.Fprintf(w, "%s 已放弃（%s）\n", src, res.ErrorCode)
	default:
		fmt.Fprintf(w, "%s 失败 %s: %s\n", src, res.ErrorCode, res.ErrorMsg)
	}
}

func emitReport(rr domain.RunReport) {
	if isTTY(os.Stdout) {
		fmt.Fprintln(os.Stdout, summaryLine(rr))
		if rr.Summary.Failed > 0 {
			for _, it := range rr.Items {
				if it.Status != domain.StatusFailed {
					continue
				}
				key := filepath.Base(it.Src)
				if it.Src == "" {
					key = "<dir>"
				}
				fmt.Fprintf(os.Stderr, "%s %s: %s\n", key, it.ErrorCode, it.ErrorMsg)
			}
		}
		return
	}

	// stdout 非 TTY：stdout 必须且仅输出一个 RunReport JSON（日志/摘要走 stderr）。
	enc := json.NewEncoder(os.Stdout)
	_ = enc.Encode(rr)
	fmt.Fprintln(os.Stderr, summaryLine(rr))
}

func summaryLine(rr domain.RunReport) string {
	if rr.DryRun {
		return fmt.Sprintf("完成（dry-run）：planned=%d failed=%d", rr.Summary.Planned, rr.Summary.Failed)
	}
	return fmt.Sprintf("完成：renamed=%d failed=%d", rr.Summary.Renamed, rr.Summary.Failed)
}

func writeReportFile(path string, rr domain.RunReport) error {
	b, err := json.MarshalIndent(rr, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	return fsx.WriteFileAtomicReplace(filepath.Dir(abs), filepath.Base(abs), b)
}

func isTTY(f *os.File) bool {
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

func pickProgressWriter() (io.Writer, bool) {
	// 进度输出只在交互终端启用；默认走 stderr（不污染 stdout JSON）。
	if isTTY(os.Stderr) {
		return os.Stderr, true
	}
	// 某些环境（例如仅重定向 stderr）下，stdout 仍是 TTY：退化输出到 stdout。
	if isTTY(os.Stdout) {
		return os.Stdout, true
	}
	return nil, false
}
