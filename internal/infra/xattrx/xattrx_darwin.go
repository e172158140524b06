package xattrx

import (
	"fmt"

	"golang.org/x/sys/unix"
)

func setComment(path, text string) error {
	data, err := finderCommentPlist(text)
	if err != nil {
		return fmt.Errorf("编码 Finder 注释失败：%w", err)
	}
	if err := unix.Setxattr(path, FinderCommentAttr, data, 0); err != nil {
		return fmt.Errorf("写入 %s 失败：%w", FinderCommentAttr, err)
	}
	return nil
}
