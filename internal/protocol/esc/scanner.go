package esc

import (
	"bytes"
)

// LineScanner 为 bufio.Scanner 提供按行切分的 Split 函数
type LineScanner struct {
	maxLineLength int
}

// NewLineScanner creates a newline framer. maxLineLength bounds a single
// line so garbage on the wire cannot grow the buffer without limit.
func NewLineScanner(maxLineLength int) *LineScanner {
	if maxLineLength <= 0 {
		maxLineLength = 1024
	}
	return &LineScanner{maxLineLength: maxLineLength}
}

func (ls *LineScanner) MaxLineLength() int {
	return ls.maxLineLength
}

// SplitFunc frames newline-delimited lines. Over-long lines are skipped
// whole by returning an advance with a nil token; a trailing '\r' is dropped.
func (ls *LineScanner) SplitFunc(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}

	idx := bytes.IndexByte(data, '\n')
	if idx >= 0 {
		if idx > ls.maxLineLength {
			// 超长行，整体跳过
			return idx + 1, nil, nil
		}
		return idx + 1, dropCR(data[:idx]), nil
	}

	if len(data) > ls.maxLineLength {
		// 没有换行且已超长: 丢弃已缓存的部分，继续等待下一个换行
		return len(data), nil, nil
	}

	if atEOF {
		// 最后一行没有换行符
		return len(data), dropCR(data), nil
	}

	// 需要更多数据
	return 0, nil, nil
}

func dropCR(data []byte) []byte {
	if len(data) > 0 && data[len(data)-1] == '\r' {
		return data[:len(data)-1]
	}
	return data
}
