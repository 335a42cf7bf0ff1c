package enforce

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"chronicle/internal/classify"
	"chronicle/internal/store"
)

// honorifics end in a period that does not close a sentence.
var honorifics = map[string]bool{
	"mr": true, "mrs": true, "ms": true, "dr": true, "st": true, "sr": true, "jr": true,
	"prof": true, "rev": true, "capt": true, "col": true, "gen": true, "lt": true,
	"sgt": true, "mme": true, "mlle": true,
}

// namePattern matches name as a whole word, ignoring case. The name itself
// is capture group 1. It returns nil for a blank name.
func namePattern(name string) *regexp.Regexp {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil
	}
	return regexp.MustCompile(`(?i)(?:^|[^\p{L}\p{N}_])(` + regexp.QuoteMeta(name) + `)(?:$|[^\p{L}\p{N}_])`)
}

func namePatterns(names []string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(names))
	for i, n := range names {
		out[i] = namePattern(n)
	}
	return out
}

// ExtractWitnesses returns the explicit participants followed by every
// roster name mentioned in the description, without duplicates.
func ExtractWitnesses(description string, explicit, roster []string) []string {
	names := make([]string, 0, len(explicit)+len(roster))
	names = append(names, explicit...)
	for i, re := range namePatterns(roster) {
		if re != nil && re.MatchString(description) {
			names = append(names, roster[i])
		}
	}
	return store.DedupeNames(names)
}

// AttributeDeaths picks the witnesses that share a sentence with a death
// cue. Subject and object are not told apart: in "Holmes kills Moran"
// both names are returned.
func AttributeDeaths(description string, witnesses []string) []string {
	patterns := namePatterns(witnesses)
	var dead []string
	for _, sentence := range sentences(description, patterns) {
		if !classify.MentionsDeath(sentence) {
			continue
		}
		for i, re := range patterns {
			if re != nil && re.MatchString(sentence) {
				dead = append(dead, witnesses[i])
			}
		}
	}
	return store.DedupeNames(dead)
}

// sentences splits text at newlines, semicolons and terminal punctuation
// followed by a space or the end of the text. Periods after an honorific or
// a single initial, and any punctuation inside a matched name, do not split.
func sentences(text string, names []*regexp.Regexp) []string {
	inName := make([]bool, len(text))
	for _, re := range names {
		if re == nil {
			continue
		}
		for _, m := range re.FindAllStringSubmatchIndex(text, -1) {
			for i := m[2]; i < m[3]; i++ {
				inName[i] = true
			}
		}
	}

	var out []string
	start := 0
	cut := func(end int) {
		if s := strings.TrimSpace(text[start:end]); s != "" {
			out = append(out, s)
		}
		start = end
	}
	for i := 0; i < len(text); i++ {
		switch text[i] {
		case '\n', ';':
			cut(i + 1)
		case '.', '!', '?':
			if inName[i] || !closesSentence(text, i) {
				continue
			}
			cut(i + 1)
		}
	}
	cut(len(text))
	return out
}

func closesSentence(text string, i int) bool {
	if i+1 < len(text) {
		r, _ := utf8.DecodeRuneInString(text[i+1:])
		if !unicode.IsSpace(r) && !strings.ContainsRune(`"')]”’`, r) {
			return false
		}
	}
	if text[i] != '.' {
		return true
	}
	word := precedingWord(text[:i])
	if honorifics[strings.ToLower(word)] {
		return false
	}
	r, size := utf8.DecodeRuneInString(word)
	return !(size == len(word) && unicode.IsUpper(r))
}

func precedingWord(text string) string {
	j := len(text)
	for j > 0 {
		r, size := utf8.DecodeLastRuneInString(text[:j])
		if !unicode.IsLetter(r) {
			break
		}
		j -= size
	}
	return text[j:]
}
