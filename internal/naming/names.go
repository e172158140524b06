package naming

import (
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// DateLayout 是已处理文件名的日期前缀格式（本地时区）。
const DateLayout = "2006-01-02"

var processedRE = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}_`)

// IsImageExt 判断扩展名是否在允许列表内（大小写不敏感）。
func IsImageExt(ext string) bool {
	switch strings.ToLower(ext) {
	case ".png", ".jpg", ".jpeg", ".webp", ".gif", ".bmp":
		return true
	default:
		return false
	}
}

// IsProcessedName 判断文件名是否已带 YYYY-MM-DD_ 前缀（即已处理过）。
func IsProcessedName(name string) bool {
	return processedRE.MatchString(name)
}

// IsCandidate 判断一个文件名是否需要处理：扩展名在允许列表内，且尚未带日期前缀。
func IsCandidate(name string) bool {
	return IsImageExt(filepath.Ext(name)) && !IsProcessedName(name)
}

// DatedName 生成 "{YYYY-MM-DD}_{stem}{ext}"，扩展名统一小写。
func DatedName(t time.Time, stem, ext string) string {
	return t.Format(DateLayout) + "_" + stem + strings.ToLower(ext)
}
