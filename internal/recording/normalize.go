package recording

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
	"golang.org/x/text/width"
)

// NormalizeTranscript 规范化转写文本：Unicode NFC，全角字母数字与全角空格折叠为半角，
// 合并连续空白并去掉首尾空白。全角中文标点保持不变。
func NormalizeTranscript(s string) string {
	s = norm.NFC.String(s)

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		b.WriteRune(foldRune(r))
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

func foldRune(r rune) rune {
	switch {
	case r == '\u3000':
		return ' '
	case (r >= '\uff10' && r <= '\uff19') || (r >= '\uff21' && r <= '\uff3a') || (r >= '\uff41' && r <= '\uff5a'):
		if n := width.LookupRune(r).Narrow(); n != 0 {
			return n
		}
	case unicode.IsControl(r):
		return ' '
	}
	return r
}

// NormalizeDialect 规范化方言名称。
func NormalizeDialect(s string) string {
	return strings.TrimSpace(norm.NFC.String(s))
}
