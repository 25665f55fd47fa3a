package sanitize

import (
	"regexp"
	"strings"
)

var (
	hashtagPattern = regexp.MustCompile(`#([\p{L}\p{N}_]+)`)
	mentionPattern = regexp.MustCompile(`@([A-Za-z0-9_.]+)`)
)

// ExtractHashtags returns the distinct #tags of text in first-seen order, without the '#'.
func ExtractHashtags(text string) []string {
	return extract(hashtagPattern, text, strings.ToLower)
}

// ExtractMentions returns the distinct @handles of text in first-seen order, without the '@'.
func ExtractMentions(text string) []string {
	return extract(mentionPattern, text, func(s string) string {
		return strings.ToLower(strings.TrimRight(s, "."))
	})
}

func extract(re *regexp.Regexp, text string, norm func(string) string) []string {
	matches := re.FindAllStringSubmatch(text, -1)
	out := make([]string, 0, len(matches))
	seen := make(map[string]bool, len(matches))
	for _, m := range matches {
		v := norm(m[1])
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
