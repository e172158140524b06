// Package xattrx 把一段文本作为“文件注释”写进扩展属性。
//
// 平台差异：
// - darwin：com.apple.metadata:kMDItemFinderComment，值为二进制 plist 字符串（Finder/Spotlight 可见）
// - linux：user.xdg.comment，值为 UTF-8 文本（多数文件管理器可见）
// - 其他平台：返回 ErrUnsupported
//
// 写注释是 best-effort 能力，调用方不应据此判定整体失败。
package xattrx

import (
	"errors"

	"howett.net/plist"
)

const (
	FinderCommentAttr = "com.apple.metadata:kMDItemFinderComment"
	XDGCommentAttr    = "user.xdg.comment"
)

// ErrUnsupported 表示当前平台不支持写入文件注释。
var ErrUnsupported = errors.New("xattrx: 当前平台不支持写入文件注释")

// Comment 是基于扩展属性的注释写入器（零值可用）。
type Comment struct{}

// Tag 把 text 写为 path 的文件注释；text 为空时什么也不做。
func (Comment) Tag(path, text string) error {
	if text == "" {
		return nil
	}
	return setComment(path, text)
}

// finderCommentPlist 把注释编码为 Finder 期望的二进制 plist。
func finderCommentPlist(text string) ([]byte, error) {
	return plist.Marshal(text, plist.BinaryFormat)
}
