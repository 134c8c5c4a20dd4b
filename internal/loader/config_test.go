package loader

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samcharles93/ferry/internal/hub"
	"github.com/samcharles93/ferry/internal/tokenizer"
)

func TestConfigurationIsImmutable(t *testing.T) {
	t.Parallel()

	remote := Remote("org/model")
	fallback := remote.localFallback("/cache/org/model")

	assert.Equal(t, SourceRemote, remote.Source())
	assert.Empty(t, remote.Directory())
	assert.Equal(t, "remote(org/model)", remote.String())

	assert.Equal(t, SourceLocal, fallback.Source())
	assert.Equal(t, "org/model", fallback.ID())
	assert.Equal(t, "/cache/org/model", fallback.Directory())
	assert.Equal(t, "local(org/model @ /cache/org/model)", fallback.String())

	local := Local("/models/x")
	assert.Equal(t, "/models/x", local.Directory())
	assert.Equal(t, "local(/models/x)", local.String())
}

func TestParseBaseConfiguration(t *testing.T) {
	t.Parallel()

	base, err := ParseBaseConfiguration([]byte(`{"model_type":"llama","hidden_size":4096}`))
	require.NoError(t, err)
	assert.Equal(t, "llama", base.ModelType)
	assert.Nil(t, base.Quantization)

	base, err = ParseBaseConfiguration([]byte(`{"model_type":"demo","quantization":{"bits":8,"group_size":32}}`))
	require.NoError(t, err)
	require.NotNil(t, base.Quantization)
	assert.Equal(t, QuantizationDescriptor{Bits: 8, GroupSize: 32}, *base.Quantization)

	_, err = ParseBaseConfiguration([]byte(`[]`))
	require.Error(t, err)
}

const tinyTokenizerJSON = `{"model":{"type":"BPE","vocab":{"a":0},"merges":[]}}`

func TestHubTokenizerLoader(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, tokenizer.TokenizerFile), []byte(tinyTokenizerJSON), 0o644))

	tok, err := HubTokenizerLoader{}.LoadTokenizer(context.Background(), Local(dir), &fakeHub{})
	require.NoError(t, err)
	assert.Equal(t, 1, tok.VocabSize())

	h := &fakeHub{dir: dir}
	_, err = HubTokenizerLoader{}.LoadTokenizer(context.Background(), Remote("org/x"), h)
	require.NoError(t, err)
	assert.EqualValues(t, 1, h.calls.Load())

	_, err = HubTokenizerLoader{}.LoadTokenizer(context.Background(), Remote("org/x"), &fakeHub{err: hub.ErrAuthorizationRequired})
	var ae *AuthorizationError
	require.ErrorAs(t, err, &ae)

	_, err = HubTokenizerLoader{}.LoadTokenizer(context.Background(), Remote("org/x"), &fakeHub{err: os.ErrDeadlineExceeded})
	var re *ResolutionError
	require.ErrorAs(t, err, &re)
}
