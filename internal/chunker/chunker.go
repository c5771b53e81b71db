// Package chunker 实现按段落边界切分文本的纯函数切块器。
package chunker

import (
	"regexp"
	"strings"
)

var (
	blankLineRe = regexp.MustCompile(`\n\s*\n`)
	spaceRunRe  = regexp.MustCompile(`[ \t]+`)
)

// Result 是一次切块的结果。Truncated 记录因超长被硬截断的段落个数，
// 截断是有损的，调用方应把它暴露出去而不是静默吞掉。
type Result struct {
	Chunks    []string
	Truncated int
}

// Chunk 将原始文本切分为若干长度不超过 maxChars 的片段。
//
// 规则：统一换行符并去除首尾空白后，按空行切分出段落；
// 贪心地把相邻段落（以空行连接）装进同一个片段，装不下则另起新片段；
// 单个段落超过 maxChars 时直接截断到 maxChars。
// 片段按原文顺序产出，空白段落被丢弃，同样的输入总是得到同样的输出。
// 长度按 rune 计，避免中文文本的字节长度虚高。
func Chunk(text string, maxChars int) Result {
	if maxChars <= 0 {
		return Result{}
	}

	cleaned := clean(text)
	if cleaned == "" {
		return Result{}
	}

	var (
		chunks    []string
		truncated int
		current   []rune
	)

	flush := func() {
		if s := strings.TrimSpace(string(current)); s != "" {
			chunks = append(chunks, s)
		}
		current = current[:0]
	}

	for _, para := range blankLineRe.Split(cleaned, -1) {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		p := []rune(para)

		// 超长段落：硬截断到 maxChars
		if len(p) > maxChars {
			flush()
			chunks = append(chunks, strings.TrimSpace(string(p[:maxChars])))
			truncated++
			continue
		}

		if len(current) == 0 {
			current = append(current, p...)
			continue
		}
		// 以空行连接后仍在预算内则并入当前片段
		if len(current)+2+len(p) <= maxChars {
			current = append(current, '\n', '\n')
			current = append(current, p...)
			continue
		}
		flush()
		current = append(current, p...)
	}
	flush()

	return Result{Chunks: chunks, Truncated: truncated}
}

// clean 统一换行符、压缩行内连续空白并去除首尾空白。
func clean(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = spaceRunRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}
