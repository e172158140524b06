//go:build !darwin && !linux

package xattrx

func setComment(path, text string) error { return ErrUnsupported }
