package model

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
)

// Constructor builds a skeleton graph from a parsed config.
type Constructor func(cfg *Config) (*Graph, error)

var (
	archMu       sync.RWMutex
	constructors = map[string]Constructor{
		"llama":   buildDecoder,
		"mistral": buildDecoder,
		"qwen2":   buildDecoder,
		"qwen3":   buildDecoder,
		"mixtral": buildDecoder,
	}
)

// Register adds or replaces the constructor for modelType.
func Register(modelType string, c Constructor) {
	archMu.Lock()
	defer archMu.Unlock()
	constructors[strings.ToLower(modelType)] = c
}

// Supported lists registered model types.
func Supported() []string {
	archMu.RLock()
	defer archMu.RUnlock()
	out := make([]string, 0, len(constructors))
	for k := range constructors {
		out = append(out, k)
	}
	return out
}

// Create builds the skeleton for modelType from raw config.json bytes.
func Create(modelType string, configJSON []byte) (*Graph, error) {
	archMu.RLock()
	ctor, ok := constructors[strings.ToLower(modelType)]
	archMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unsupported model_type %q", modelType)
	}
	cfg, err := ParseConfig(configJSON)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if cfg.ModelType == "" {
		cfg.ModelType = modelType
	}
	return ctor(cfg)
}

// Factory creates skeletons from a config.json on disk.
type Factory struct{}

func (Factory) CreateModel(modelType, configPath string) (*Graph, error) {
	raw, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}
	return Create(modelType, raw)
}

// buildDecoder lays out the Hugging Face decoder-only transformer naming
// shared by llama, mistral, qwen2/3 and mixtral checkpoints.
func buildDecoder(cfg *Config) (*Graph, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", cfg.ModelType, err)
	}
	dt := cfg.DType()
	hidden := cfg.HiddenSize
	headDim := cfg.headDim()
	qDim := cfg.NumAttentionHeads * headDim
	kvDim := cfg.kvHeads() * headDim

	qkvBias := cfg.AttentionBias || cfg.ModelType == "qwen2"
	outBias := cfg.AttentionBias

	g := NewGraph(cfg.ModelType, cfg.VocabSize)
	m := g.Root.Add("model")
	m.AddEmbedding("embed_tokens", cfg.VocabSize, hidden, dt)

	layers := m.Add("layers")
	for i := range cfg.NumHiddenLayers {
		l := layers.Add(strconv.Itoa(i))
		l.AddNorm("input_layernorm", hidden, dt)

		attn := l.Add("self_attn")
		attn.AddLinear("q_proj", hidden, qDim, qkvBias, dt)
		attn.AddLinear("k_proj", hidden, kvDim, qkvBias, dt)
		attn.AddLinear("v_proj", hidden, kvDim, qkvBias, dt)
		attn.AddLinear("o_proj", qDim, hidden, outBias, dt)
		if cfg.ModelType == "qwen3" {
			attn.AddNorm("q_norm", headDim, dt)
			attn.AddNorm("k_norm", headDim, dt)
		}

		l.AddNorm("post_attention_layernorm", hidden, dt)

		if cfg.NumLocalExperts > 0 {
			moe := l.Add("block_sparse_moe")
			moe.AddLinear("gate", hidden, cfg.NumLocalExperts, false, dt)
			experts := moe.Add("experts")
			inter := cfg.expertSize()
			for e := range cfg.NumLocalExperts {
				x := experts.Add(strconv.Itoa(e))
				x.AddLinear("w1", hidden, inter, false, dt)
				x.AddLinear("w2", inter, hidden, false, dt)
				x.AddLinear("w3", hidden, inter, false, dt)
			}
			continue
		}
		mlp := l.Add("mlp")
		mlp.AddLinear("gate_proj", hidden, cfg.IntermediateSize, cfg.MLPBias, dt)
		mlp.AddLinear("up_proj", hidden, cfg.IntermediateSize, cfg.MLPBias, dt)
		mlp.AddLinear("down_proj", cfg.IntermediateSize, hidden, cfg.MLPBias, dt)
	}
	m.AddNorm("norm", hidden, dt)

	if !cfg.TieWordEmbeddings {
		g.Root.AddLinear(HeadName, hidden, cfg.VocabSize, false, dt)
	}
	return g, nil
}
