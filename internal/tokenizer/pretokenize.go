package tokenizer

import (
	"cmp"
	"slices"
	"strings"
)

type pair struct{ a, b string }

type textPart struct {
	text    string
	special bool
}

func splitRunes(s string) []string {
	out := make([]string, 0, len(s))
	for _, r := range s {
		out = append(out, string(r))
	}
	return out
}

// mergeAll joins every adjacent occurrence of p, left to right.
func mergeAll(word []string, p pair) []string {
	out := make([]string, 0, len(word))
	for i := 0; i < len(word); i++ {
		if i+1 < len(word) && word[i] == p.a && word[i+1] == p.b {
			out = append(out, p.a+p.b)
			i++
			continue
		}
		out = append(out, word[i])
	}
	return out
}

// collectSpecials returns the <|...|> tokens, longest first.
func collectSpecials(tokens []string) []string {
	var out []string
	for _, t := range tokens {
		if isSpecialToken(t) {
			out = append(out, t)
		}
	}
	slices.SortStableFunc(out, func(a, b string) int { return cmp.Compare(len(b), len(a)) })
	return out
}

func isSpecialToken(s string) bool {
	return len(s) >= 4 && strings.HasPrefix(s, "<|") && strings.HasSuffix(s, "|>")
}

func splitSpecials(text string, specials []string) []textPart {
	if len(specials) == 0 || !strings.Contains(text, "<|") {
		return []textPart{{text: text}}
	}
	var parts []textPart
	start := 0
	for i := 0; i < len(text); {
		var match string
		for _, sp := range specials {
			if strings.HasPrefix(text[i:], sp) {
				match = sp
				break
			}
		}
		if match == "" {
			i++
			continue
		}
		if start < i {
			parts = append(parts, textPart{text: text[start:i]})
		}
		parts = append(parts, textPart{text: match, special: true})
		i += len(match)
		start = i
	}
	if start < len(text) {
		parts = append(parts, textPart{text: text[start:]})
	}
	return parts
}

// byteTable is the GPT-2 reversible byte to printable rune mapping.
type byteTable struct {
	enc [256]rune
	dec map[rune]byte
}

func newByteTable() byteTable {
	var t byteTable
	t.dec = make(map[rune]byte, 256)
	printable := func(b int) bool {
		return ('!' <= b && b <= '~') || ('¡' <= b && b <= '¬') || ('®' <= b && b <= 'ÿ')
	}
	next := 0
	for b := range 256 {
		r := rune(b)
		if !printable(b) {
			r = rune(256 + next)
			next++
		}
		t.enc[b] = r
		t.dec[r] = byte(b)
	}
	return t
}

func (t byteTable) encode(s string) string {
	var b strings.Builder
	for i := range len(s) {
		b.WriteRune(t.enc[s[i]])
	}
	return b.String()
}

func (t byteTable) decode(s string) []byte {
	out := make([]byte, 0, len(s))
	for _, r := range s {
		if by, ok := t.dec[r]; ok {
			out = append(out, by)
		} else {
			out = append(out, string(r)...)
		}
	}
	return out
}
