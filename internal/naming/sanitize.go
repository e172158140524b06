package naming

import (
	"regexp"
	"strings"
)

const (
	// DefaultMaxLength 是文件名主体（stem）的默认长度上限。
	DefaultMaxLength = 60
	// FallbackStem 在清洗结果为空时使用。
	FallbackStem = "screenshot"
)

var (
	edgeQuoteRE   = regexp.MustCompile("^[\"'`]|[\"'`]$")
	boilerplateRE = regexp.MustCompile(`(?i)^(filename:|description:|here is|the filename is)[\s\p{Zs}]*`)
	separatorRE   = regexp.MustCompile(`[\s\p{Zs}_]+`)
	invalidRE     = regexp.MustCompile(`[^a-z0-9-]`)
	hyphenRunRE   = regexp.MustCompile(`-+`)
)

// Sanitize 把模型返回的自由文本清洗为安全的文件名主体。
//
// 规则（顺序固定）：
// 1) 小写 + 去首尾空白
// 2) 去掉首/尾各一个引号（" ' `）
// 3) 去掉开头的套话前缀（filename: / description: / here is / the filename is）
// 4) 空白与下划线的连续段 => 单个 '-'
// 5) 只保留 [a-z0-9-]
// 6) 连续 '-' 合并
// 7) 去掉首尾 '-'
// 8) 超长：先截到 maxLength，再退回到最后一个完整的 '-' 分段（不把单词截成两半）
// 9) 结果为空：返回 FallbackStem
//
// 这是一个全函数：任何输入都返回非空、合法的 stem。
func Sanitize(text string, maxLength int) string {
	if maxLength <= 0 {
		maxLength = DefaultMaxLength
	}

	s := strings.TrimSpace(strings.ToLower(text))
	s = edgeQuoteRE.ReplaceAllString(s, "")

	// 模型偶尔会叠加多个前缀（"here is the filename is: ..."），逐个剥掉。
	for {
		loc := boilerplateRE.FindStringIndex(s)
		if loc == nil || loc[1] == 0 {
			break
		}
		s = s[loc[1]:]
	}

	s = separatorRE.ReplaceAllString(s, "-")
	s = invalidRE.ReplaceAllString(s, "")
	s = hyphenRunRE.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")

	if len(s) > maxLength {
		s = s[:maxLength]
		if i := strings.LastIndexByte(s, '-'); i >= 0 {
			s = s[:i]
		}
		s = strings.TrimRight(s, "-")
	}

	if s == "" {
		return FallbackStem
	}
	return s
}
