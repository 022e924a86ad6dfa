package post

import (
	"regexp"
	"strings"
)

var mentionRe = regexp.MustCompile(`@(\w+)`)

// Mentions returns the distinct handles tagged in body, lower-cased, in order
// of first appearance. A tag is '@' plus 3 to 16 word characters, not glued
// to a preceding word and ending at the end of the text or at one of . ; , :
// space or tab.
func Mentions(body string) []string {
	var out []string
	seen := map[string]bool{}
	for _, m := range mentionRe.FindAllStringSubmatchIndex(body, -1) {
		start, end := m[0], m[1]
		if start > 0 && isWordByte(body[start-1]) {
			continue
		}
		if end < len(body) && !strings.ContainsRune(".;,: \t", rune(body[end])) {
			continue
		}
		handle := strings.ToLower(body[m[2]:m[3]])
		if len(handle) < 3 || len(handle) > 16 || seen[handle] {
			continue
		}
		seen[handle] = true
		out = append(out, handle)
	}
	return out
}

func isWordByte(b byte) bool {
	return b == '_' || ('0' <= b && b <= '9') || ('a' <= b && b <= 'z') || ('A' <= b && b <= 'Z')
}
