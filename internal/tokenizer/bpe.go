package tokenizer

import (
	"fmt"
	"math"
	"regexp"
	"strings"
	"sync"

	"github.com/goccy/go-json"
)

// defaultSplit is the GPT-2 pre-tokenizer used when tokenizer.json names
// none that Go's regexp engine can run.
const defaultSplit = `'s|'t|'re|'ve|'m|'ll|'d| ?\p{L}+| ?\p{N}+| ?[^\s\p{L}\p{N}]+|\s+`

// llama3Split replaces Llama-3 style patterns that rely on lookahead.
const llama3Split = `(?:'[sS]|'[tT]|'[rR][eE]|'[vV][eE]|'[mM]|'[lL][lL]|'[dD])|[^\r\n\p{L}\p{N}]?\p{L}+|\p{N}{1,3}| ?[^\s\p{L}\p{N}]+[\r\n]*|\s*[\r\n]+|\s+`

// BPE is a byte-level BPE tokenizer read from a Hugging Face
// tokenizer.json. It is safe for concurrent use.
type BPE struct {
	vocab    map[string]int
	tokens   []string
	ranks    map[pair]int
	bytes    byteTable
	split    *regexp.Regexp
	specials []string

	bos, eos, unk int
	addBOS        bool
	addEOS        bool
	skipMerges    bool

	mu    sync.Mutex
	cache map[string][]string
}

type tokenizerFile struct {
	Model struct {
		Type         string         `json:"type"`
		Vocab        map[string]int `json:"vocab"`
		Merges       []any          `json:"merges"`
		IgnoreMerges bool           `json:"ignore_merges"`
		UnkToken     string         `json:"unk_token"`
	} `json:"model"`
	PreTokenizer  preTokenizer `json:"pre_tokenizer"`
	PostProcessor struct {
		Processors []struct {
			Type          string `json:"type"`
			SpecialTokens map[string]struct {
				IDs []int `json:"ids"`
			} `json:"special_tokens"`
		} `json:"processors"`
	} `json:"post_processor"`
	AddedTokens []struct {
		ID      int    `json:"id"`
		Content string `json:"content"`
	} `json:"added_tokens"`
}

type preTokenizer struct {
	Type          string `json:"type"`
	Pretokenizers []struct {
		Type    string `json:"type"`
		Pattern struct {
			Regex string `json:"Regex"`
		} `json:"pattern"`
	} `json:"pretokenizers"`
}

// ParseBPE builds a tokenizer from tokenizer.json and the optional
// tokenizer_config.json contents.
func ParseBPE(tokenizerJSON []byte, cfg *Config) (*BPE, error) {
	var tf tokenizerFile
	if err := json.Unmarshal(tokenizerJSON, &tf); err != nil {
		return nil, fmt.Errorf("parse tokenizer.json: %w", err)
	}
	if !strings.EqualFold(tf.Model.Type, "BPE") {
		return nil, fmt.Errorf("%w: model type %q", ErrUnsupported, tf.Model.Type)
	}
	if cfg == nil {
		cfg = &Config{}
	}

	size := 0
	for _, id := range tf.Model.Vocab {
		size = max(size, id+1)
	}
	for _, at := range tf.AddedTokens {
		size = max(size, at.ID+1)
	}
	t := &BPE{
		vocab:      make(map[string]int, size),
		tokens:     make([]string, size),
		ranks:      parseMerges(tf.Model.Merges),
		bytes:      newByteTable(),
		split:      regexp.MustCompile(splitPattern(tf.PreTokenizer)),
		bos:        -1,
		eos:        -1,
		unk:        -1,
		addBOS:     cfg.AddBOSToken,
		addEOS:     cfg.AddEOSToken,
		skipMerges: tf.Model.IgnoreMerges,
		cache:      make(map[string][]string),
	}
	for tok, id := range tf.Model.Vocab {
		if id < 0 {
			return nil, fmt.Errorf("parse tokenizer.json: negative id for %q", tok)
		}
		t.vocab[tok] = id
		t.tokens[id] = tok
	}
	for _, at := range tf.AddedTokens {
		t.vocab[at.Content] = at.ID
		t.tokens[at.ID] = at.Content
	}
	t.specials = collectSpecials(t.tokens)

	if id, ok := t.vocab[cfg.BOSToken.Content]; ok {
		t.bos = id
	}
	if id, ok := t.vocab[cfg.EOSToken.Content]; ok {
		t.eos = id
	}
	if id, ok := t.vocab[tf.Model.UnkToken]; ok {
		t.unk = id
	}
	for _, proc := range tf.PostProcessor.Processors {
		if proc.Type != "TemplateProcessing" {
			continue
		}
		for _, st := range proc.SpecialTokens {
			if len(st.IDs) > 0 {
				t.bos, t.addBOS = st.IDs[0], true
				break
			}
		}
	}
	return t, nil
}

func parseMerges(raw []any) map[pair]int {
	ranks := make(map[pair]int, len(raw))
	for _, m := range raw {
		var a, b string
		switch v := m.(type) {
		case string:
			var ok bool
			a, b, ok = strings.Cut(strings.TrimSpace(v), " ")
			if !ok || strings.HasPrefix(a, "#") {
				continue
			}
		case []any:
			if len(v) != 2 {
				continue
			}
			a, _ = v[0].(string)
			b, _ = v[1].(string)
		}
		if a == "" || b == "" {
			continue
		}
		p := pair{a, b}
		if _, dup := ranks[p]; !dup {
			ranks[p] = len(ranks)
		}
	}
	return ranks
}

func splitPattern(pre preTokenizer) string {
	pat := defaultSplit
	if pre.Type == "Sequence" {
		for _, p := range pre.Pretokenizers {
			if p.Type == "Split" && p.Pattern.Regex != "" {
				pat = p.Pattern.Regex
				break
			}
		}
	}
	if strings.Contains(pat, `(?!\S)`) || strings.Contains(pat, "(?i:") {
		return llama3Split
	}
	if _, err := regexp.Compile(pat); err != nil {
		return defaultSplit
	}
	return pat
}

func (t *BPE) VocabSize() int { return len(t.tokens) }

func (t *BPE) Encode(text string) ([]int, error) {
	var ids []int
	if t.addBOS && t.bos >= 0 {
		ids = append(ids, t.bos)
	}
	for _, part := range splitSpecials(text, t.specials) {
		if part.special {
			ids = append(ids, t.vocab[part.text])
			continue
		}
		for _, word := range t.split.FindAllString(part.text, -1) {
			for _, piece := range t.merge(t.bytes.encode(word)) {
				id, ok := t.vocab[piece]
				switch {
				case ok:
					ids = append(ids, id)
				case t.unk >= 0:
					ids = append(ids, t.unk)
				default:
					return nil, fmt.Errorf("tokenizer: no id for %q", piece)
				}
			}
		}
	}
	if t.addEOS && t.eos >= 0 {
		ids = append(ids, t.eos)
	}
	return ids, nil
}

func (t *BPE) Decode(ids []int) (string, error) {
	var b strings.Builder
	for _, id := range ids {
		if id < 0 || id >= len(t.tokens) {
			return "", fmt.Errorf("tokenizer: id %d out of range", id)
		}
		tok := t.tokens[id]
		if isSpecialToken(tok) {
			b.WriteString(tok)
			continue
		}
		b.Write(t.bytes.decode(tok))
	}
	return b.String(), nil
}

// merge applies ranked merges to a byte-encoded word.
func (t *BPE) merge(word string) []string {
	t.mu.Lock()
	cached, ok := t.cache[word]
	t.mu.Unlock()
	if ok {
		return cached
	}

	var parts []string
	if _, whole := t.vocab[word]; t.skipMerges && whole {
		parts = []string{word}
	} else {
		parts = splitRunes(word)
		for len(parts) > 1 {
			best, bestRank := -1, math.MaxInt
			for i := range len(parts) - 1 {
				if r, ok := t.ranks[pair{parts[i], parts[i+1]}]; ok && r < bestRank {
					best, bestRank = i, r
				}
			}
			if best < 0 {
				break
			}
			parts = mergeAll(parts, pair{parts[best], parts[best+1]})
		}
	}

	t.mu.Lock()
	t.cache[word] = parts
	t.mu.Unlock()
	return parts
}
