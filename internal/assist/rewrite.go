package assist

import (
	"strings"
	"unicode"
)

// leadingPhrases may be trimmed from the front of an answer when it is rewritten into a
// question. Longer phrases come first; at most one is removed.
var leadingPhrases = [][]string{
	{"i", "just", "feel", "like"},
	{"i", "feel", "like"},
	{"a", "person", "who", "is"},
	{"someone", "who", "is"},
	{"i", "believe", "that"},
	{"i", "think", "that"},
	{"i", "believe"},
	{"i", "think"},
	{"i", "feel"},
	{"i", "am"},
	{"kind", "of"},
	{"i'm"},
	{"im"},
}

var articles = map[string]bool{"a": true, "an": true, "the": true}

// CoreWording returns the answer without one leading phrase and article, lowercased,
// with whitespace collapsed and surrounding punctuation removed. Everything after the
// trimmed prefix must survive verbatim.
func CoreWording(answer string) string {
	fields := strings.Fields(strings.ToLower(answer))
	words := make([]string, len(fields))
	for i, f := range fields {
		words[i] = strings.TrimFunc(f, unicode.IsPunct)
	}

	i := 0
	for _, phrase := range leadingPhrases {
		if hasPrefix(words, phrase) {
			i = len(phrase)
			break
		}
	}
	if i < len(words) && articles[words[i]] {
		i++
	}

	core := strings.Join(fields[i:], " ")
	return strings.TrimFunc(core, func(r rune) bool {
		return unicode.IsPunct(r) && r != '\''
	})
}

func hasPrefix(words, phrase []string) bool {
	if len(words) < len(phrase) {
		return false
	}
	for i, w := range phrase {
		if words[i] != w {
			return false
		}
	}
	return true
}

// PreservesWording reports whether out keeps the content words of answer together and
// in order. "hurt person" must survive as "hurt person", never as "hurt".
func PreservesWording(out, answer string) bool {
	core := CoreWording(answer)
	if core == "" {
		return false
	}
	normalized := strings.Join(strings.Fields(strings.ToLower(out)), " ")
	return strings.Contains(normalized, core)
}
