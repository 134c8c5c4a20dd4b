package tokenizer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// tinyTokenizer has byte-level entries for "h", "i", " " (Ġ) and the
// merges needed to produce "hi" and "Ġhi".
const tinyTokenizer = `{
	"model": {
		"type": "BPE",
		"vocab": {"h": 0, "i": 1, "Ġ": 2, "hi": 3, "Ġh": 4, "Ġhi": 5, "<unk>": 6},
		"merges": [["Ġ", "h"], "h i", "Ġh i"],
		"unk_token": "<unk>"
	},
	"added_tokens": [{"id": 7, "content": "<|end|>"}, {"id": 8, "content": "<s>"}]
}`

func writeDir(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, body := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}
	return dir
}

func TestBPEEncodeDecode(t *testing.T) {
	t.Parallel()

	tok, err := ParseBPE([]byte(tinyTokenizer), nil)
	require.NoError(t, err)
	assert.Equal(t, 9, tok.VocabSize())

	ids, err := tok.Encode("hi hi<|end|>")
	require.NoError(t, err)
	assert.Equal(t, []int{3, 5, 7}, ids)

	text, err := tok.Decode(ids)
	require.NoError(t, err)
	assert.Equal(t, "hi hi<|end|>", text)

	// Characters outside the vocab fall back to <unk>.
	ids, err = tok.Encode("x")
	require.NoError(t, err)
	assert.Equal(t, []int{6}, ids)

	_, err = tok.Decode([]int{42})
	require.Error(t, err)
}

func TestBPEConfigAddsBOS(t *testing.T) {
	t.Parallel()

	dir := writeDir(t, map[string]string{
		TokenizerFile: tinyTokenizer,
		ConfigFile:    `{"add_bos_token": true, "bos_token": {"content": "<s>", "lstrip": false}}`,
	})
	tok, err := LoadDir(dir)
	require.NoError(t, err)
	ids, err := tok.Encode("hi")
	require.NoError(t, err)
	assert.Equal(t, []int{8, 3}, ids)
}

func TestLoadDirErrors(t *testing.T) {
	t.Parallel()

	_, err := LoadDir(t.TempDir())
	require.ErrorIs(t, err, ErrNotFound)

	_, err = LoadDir(writeDir(t, map[string]string{TokenizerFile: `{"model":{"type":"WordPiece"}}`}))
	require.ErrorIs(t, err, ErrUnsupported)

	_, err = LoadDir(writeDir(t, map[string]string{ConfigFile: `{"tiktoken_encoding": "no_such_base"}`}))
	require.ErrorIs(t, err, ErrUnsupported)

	_, err = LoadDir(writeDir(t, map[string]string{ConfigFile: `{`}))
	require.Error(t, err)
}

func TestSplitPatternFallsBack(t *testing.T) {
	t.Parallel()

	var pre preTokenizer
	require.NoError(t, json.Unmarshal([]byte(`{
		"type": "Sequence",
		"pretokenizers": [{"type": "Split", "pattern": {"Regex": "\\s+(?!\\S)|\\s+"}}]
	}`), &pre))
	assert.Equal(t, llama3Split, splitPattern(pre))
	assert.Equal(t, defaultSplit, splitPattern(preTokenizer{}))
}

func TestByteTableRoundTrip(t *testing.T) {
	t.Parallel()

	bt := newByteTable()
	in := string([]byte{0, 10, 32, 'a', 0xff, 0xc3, 0xa9})
	assert.Equal(t, in, string(bt.decode(bt.encode(in))))
	assert.Equal(t, "Ġ", bt.encode(" "))
}
