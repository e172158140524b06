package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"

	"github.com/John-Robertt/shotnamer/internal/domain"
)

var (
	buildOnce sync.Once
	binPath   string
	buildErr  error
	buildLog  []byte
)

// buildBinary 编译一次 CLI；`go run` 会把子进程的非零退出码统一折叠为 1，无法断言退出码。
func buildBinary(t *testing.T) string {
	t.Helper()
	buildOnce.Do(func() {
		wd, err := os.Getwd()
		if err != nil {
			buildErr = err
			return
		}
		dir, err := os.MkdirTemp("", "shotnamer-bin-")
		if err != nil {
			buildErr = err
			return
		}
		binPath = filepath.Join(dir, "shotnamer")
		if runtime.GOOS == "windows" {
			binPath += ".exe"
		}
		cmd := exec.Command("go", "build", "-o", binPath, ".")
		cmd.Dir = wd
		buildLog, buildErr = cmd.CombinedOutput()
	})
	if buildErr != nil {
		t.Fatalf("编译失败：%v\n%s", buildErr, buildLog)
	}
	return binPath
}

// runCLI 执行编译好的 CLI，并隔离用户配置目录。
func runCLI(t *testing.T, env []string, args ...string) (stdout, stderr string, exitCode int) {
	t.Helper()
	bin := buildBinary(t)

	home := t.TempDir()
	cmd := exec.Command(bin, args...)
	cmd.Env = append(os.Environ(),
		"HOME="+home,
		"XDG_CONFIG_HOME="+filepath.Join(home, ".config"),
		"APPDATA="+filepath.Join(home, "AppData"),
	)
	cmd.Env = append(cmd.Env, env...)

	var out, errb bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errb

	err := cmd.Run()
	var ee *exec.ExitError
	switch {
	case err == nil:
		return out.String(), errb.String(), 0
	case errors.As(err, &ee):
		return out.String(), errb.String(), ee.ExitCode()
	default:
		t.Fatalf("命令执行失败：%v\nstderr=%s", err, errb.String())
		return "", "", -1
	}
}

func TestCLI_NoTTY_StdoutOnlyRunReportJSON(t *testing.T) {
	// 这个测试锁定对外契约：stdout 非 TTY 时只能输出一个 RunReport JSON（进度/提示必须走 stderr）。
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "2024-05-01_done.png"), []byte("x"), 0o644); err != nil {
		t.Fatalf("写入文件失败：%v", err)
	}

	stdout, stderr, code := runCLI(t, []string{"OPENAI_API_KEY=dummy"}, root)
	if code != 0 {
		t.Fatalf("期望退出码 0，实际 %d\nstderr=%s", code, stderr)
	}

	var rr domain.RunReport
	if err := json.Unmarshal([]byte(stdout), &rr); err != nil {
		t.Fatalf("stdout 不是合法的 RunReport JSON：%v\nstdout=%q", err, stdout)
	}
	if len(rr.Items) != 0 || rr.RunID == "" {
		t.Fatalf("报告不符合预期：%+v", rr)
	}
	if !strings.Contains(stderr, "no unprocessed screenshots") {
		t.Fatalf("stderr 缺少空目录提示：%q", stderr)
	}
	if !strings.Contains(stderr, "完成：renamed=0") {
		t.Fatalf("stderr 缺少完成摘要：%q", stderr)
	}
}

func TestCLI_MissingAPIKey(t *testing.T) {
	_, stderr, code := runCLI(t, []string{"OPENAI_API_KEY="}, t.TempDir())
	if code != 1 {
		t.Fatalf("期望退出码 1，实际 %d\nstderr=%s", code, stderr)
	}
	if !strings.Contains(stderr, "export OPENAI_API_KEY=") {
		t.Fatalf("stderr 应提示如何设置密钥：%q", stderr)
	}
}

func TestCLI_ArgumentErrors(t *testing.T) {
	_, stderr, code := runCLI(t, []string{"OPENAI_API_KEY=dummy"}, "--watch", "--dry-run", t.TempDir())
	if code != 2 {
		t.Fatalf("期望退出码 2，实际 %d\nstderr=%s", code, stderr)
	}
}

func TestCLI_DirNotFound(t *testing.T) {
	_, stderr, code := runCLI(t, []string{"OPENAI_API_KEY=dummy"}, filepath.Join(t.TempDir(), "nope"))
	if code != 1 || !strings.Contains(stderr, "dir_not_found") {
		t.Fatalf("期望 dir_not_found + 退出码 1，实际 code=%d stderr=%s", code, stderr)
	}
}
