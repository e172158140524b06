package xattrx

import (
	"fmt"

	"golang.org/x/sys/unix"
)

func setComment(path, text string) error {
	if err := unix.Setxattr(path, XDGCommentAttr, []byte(text), 0); err != nil {
		return fmt.Errorf("写入 %s 失败：%w", XDGCommentAttr, err)
	}
	return nil
}
