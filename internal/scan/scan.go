package scan

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/John-Robertt/shotnamer/internal/domain"
	"github.com/John-Robertt/shotnamer/internal/infra/fsx"
	"github.com/John-Robertt/shotnamer/internal/naming"
)

// ListScreenshots 列出 dir 下（不递归）尚未处理的截图文件。
//
// 规则：
// - 只看直接子项；目录、设备文件等一律跳过（符号链接按目标判断）
// - 扩展名在白名单内（大小写不敏感）
// - 文件名不带 YYYY-MM-DD_ 前缀
//
// 注意：只做 stat，不读文件内容；输出按文件名排序，避免不同平台 ReadDir 顺序差异。
func ListScreenshots(dir string) ([]domain.ScreenshotFile, error) {
	dir = filepath.Clean(dir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	files := make([]domain.ScreenshotFile, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if !naming.IsCandidate(name) {
			continue
		}

		abs := filepath.Join(dir, name)
		info, ok := fsx.RegularFileInfo(abs, e)
		if !ok {
			continue
		}

		ext := filepath.Ext(name)
		files = append(files, domain.ScreenshotFile{
			AbsPath: abs,
			Name:    name,
			Base:    strings.TrimSuffix(name, ext),
			Ext:     strings.ToLower(ext),
			Size:    info.Size(),
			ModUnix: info.ModTime().Unix(),
		})
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, nil
}
