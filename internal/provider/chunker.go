package provider

import (
	"fmt"
	"strings"
	"unicode"
)

type TextChunk struct {
	ID    string
	Index int
	Text  string
}

var abbreviations = map[string]struct{}{
	"mr": {}, "mrs": {}, "ms": {}, "dr": {}, "prof": {}, "sr": {}, "jr": {},
	"st": {}, "vs": {}, "etc": {}, "no": {}, "vol": {}, "fig": {}, "inc": {},
	"ltd": {}, "co": {}, "dept": {}, "approx": {},
	"a.m": {}, "p.m": {}, "e.g": {}, "i.e": {},
}

// SentenceChunker packs whole sentences into chunks of at most MaxChars
// runes. A sentence longer than that is cut at the last clause boundary
// (or hard cut) inside the limit.
type SentenceChunker struct {
	MaxChars int
}

// Split returns chunks with ids derived from prefix, e.g. "<item>-0003".
func (c SentenceChunker) Split(prefix, text string, maxChars int) []TextChunk {
	if maxChars <= 0 {
		maxChars = c.MaxChars
	}
	if maxChars <= 0 || maxChars > MaxSpeechInputChars {
		maxChars = MaxSpeechInputChars
	}

	var out []TextChunk
	var cur strings.Builder
	flush := func() {
		s := strings.TrimSpace(cur.String())
		cur.Reset()
		if s == "" {
			return
		}
		out = append(out, TextChunk{ID: fmt.Sprintf("%s-%04d", prefix, len(out)), Index: len(out), Text: s})
	}

	for _, sentence := range sentences(text) {
		for _, part := range cutLong(sentence, maxChars) {
			n := len([]rune(part))
			if cur.Len() > 0 && len([]rune(cur.String()))+1+n > maxChars {
				flush()
			}
			if cur.Len() > 0 {
				cur.WriteByte(' ')
			}
			cur.WriteString(part)
		}
	}
	flush()
	return out
}

func sentences(text string) []string {
	text = strings.Join(strings.Fields(text), " ")
	if text == "" {
		return nil
	}

	var out []string
	start := 0
	for i := 0; i < len(text); i++ {
		ch := text[i]
		if ch != '.' && ch != '!' && ch != '?' {
			continue
		}
		if ch == '.' && keepPeriod(text, i) {
			continue
		}
		if !endsSentence(text, i) {
			continue
		}
		if s := strings.TrimSpace(text[start : i+1]); s != "" {
			out = append(out, s)
		}
		start = i + 1
	}
	if s := strings.TrimSpace(text[start:]); s != "" {
		out = append(out, s)
	}
	return out
}

// keepPeriod is true for ellipses, decimals, initials and abbreviations.
func keepPeriod(text string, i int) bool {
	if (i > 0 && text[i-1] == '.') || (i+1 < len(text) && text[i+1] == '.') {
		return true
	}
	if i > 0 && i+1 < len(text) && isDigit(text[i-1]) && isDigit(text[i+1]) {
		return true
	}
	j := i - 1
	for j >= 0 && text[j] != ' ' && text[j] != '(' && text[j] != '"' {
		j--
	}
	tok := text[j+1 : i]
	if len(tok) == 1 && unicode.IsLetter(rune(tok[0])) {
		return true
	}
	_, ok := abbreviations[strings.ToLower(tok)]
	return ok
}

func endsSentence(text string, i int) bool {
	j := i + 1
	for j < len(text) && strings.IndexByte(`"')]`, text[j]) >= 0 {
		j++
	}
	if j >= len(text) {
		return true
	}
	if text[j] != ' ' {
		return false
	}
	j++
	for j < len(text) && strings.IndexByte(`"'([`, text[j]) >= 0 {
		j++
	}
	if j >= len(text) {
		return true
	}
	r := rune(text[j])
	return unicode.IsUpper(r) || unicode.IsDigit(r) || r >= unicode.MaxASCII
}

func cutLong(s string, maxChars int) []string {
	runes := []rune(s)
	var out []string
	for len(runes) > maxChars {
		cut := maxChars
		for i := maxChars - 1; i >= maxChars/2; i-- {
			if strings.ContainsRune(",;:", runes[i]) {
				cut = i + 1
				break
			}
		}
		if part := strings.TrimSpace(string(runes[:cut])); part != "" {
			out = append(out, part)
		}
		runes = runes[cut:]
	}
	if part := strings.TrimSpace(string(runes)); part != "" {
		out = append(out, part)
	}
	return out
}

func isDigit(ch byte) bool { return ch >= '0' && ch <= '9' }
