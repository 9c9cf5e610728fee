// Package text 提供写入日志与失败台账前的字符串裁剪。
package text

import "unicode/utf8"

// Truncate 保留 s 的前 max 个字符（按 rune 计），超出部分以 "..." 代替。
// max <= 0 表示不限制。
func Truncate(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	n := 0
	for i := range s {
		if n == max {
			return s[:i] + "..."
		}
		n++
	}
	return s
}
