package scan

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func TestListScreenshots_FiltersAndSorts(t *testing.T) {
	dir := t.TempDir()

	touch(t, filepath.Join(dir, "b.png"))
	touch(t, filepath.Join(dir, "A.JPG"))
	touch(t, filepath.Join(dir, "c.webp"))
	touch(t, filepath.Join(dir, "notes.txt"))
	touch(t, filepath.Join(dir, "2024-01-01_already-done.png"))
	touch(t, filepath.Join(dir, "sub", "nested.png"))
	if err := os.Mkdir(filepath.Join(dir, "folder.png"), 0o755); err != nil {
		t.Fatalf("创建目录失败：%v", err)
	}

	got, err := ListScreenshots(dir)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}

	var names []string
	for _, f := range got {
		names = append(names, f.Name)
	}
	want := []string{"A.JPG", "b.png", "c.webp"}
	if len(names) != len(want) {
		t.Fatalf("期望 %v，实际 %v", want, names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("期望 %v，实际 %v", want, names)
		}
	}

	if got[0].Ext != ".jpg" || got[0].Base != "A" || got[0].AbsPath != filepath.Join(dir, "A.JPG") {
		t.Fatalf("字段不符合预期：%+v", got[0])
	}
}

func TestListScreenshots_FollowsSymlinkToFile(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("windows 上创建符号链接需要额外权限")
	}
	dir := t.TempDir()
	target := filepath.Join(t.TempDir(), "real.png")
	touch(t, target)
	if err := os.Symlink(target, filepath.Join(dir, "link.png")); err != nil {
		t.Fatalf("创建符号链接失败：%v", err)
	}
	if err := os.Symlink(filepath.Join(dir, "missing"), filepath.Join(dir, "dangling.png")); err != nil {
		t.Fatalf("创建符号链接失败：%v", err)
	}

	got, err := ListScreenshots(dir)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if len(got) != 1 || got[0].Name != "link.png" {
		t.Fatalf("期望只包含 link.png，实际 %+v", got)
	}
}

func TestListScreenshots_MissingDir(t *testing.T) {
	if _, err := ListScreenshots(filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Fatalf("期望目录不存在时报错")
	}
}

func touch(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("创建目录失败：%v", err)
	}
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("写入文件失败：%v", err)
	}
}
