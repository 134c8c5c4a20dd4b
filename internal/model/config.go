package model

import (
	"fmt"
	"strings"

	"github.com/goccy/go-json"

	"github.com/samcharles93/ferry/internal/tensor"
)

// Config holds the hyper-parameters architectures read from config.json.
type Config struct {
	ModelType     string   `json:"model_type"`
	Architectures []string `json:"architectures"`
	TorchDType    string   `json:"torch_dtype"`

	HiddenSize        int  `json:"hidden_size"`
	IntermediateSize  int  `json:"intermediate_size"`
	NumHiddenLayers   int  `json:"num_hidden_layers"`
	NumAttentionHeads int  `json:"num_attention_heads"`
	NumKeyValueHeads  int  `json:"num_key_value_heads"`
	HeadDim           int  `json:"head_dim"`
	VocabSize         int  `json:"vocab_size"`
	TieWordEmbeddings bool `json:"tie_word_embeddings"`
	AttentionBias     bool `json:"attention_bias"`
	MLPBias           bool `json:"mlp_bias"`

	// Mixture-of-experts fields.
	NumLocalExperts     int `json:"num_local_experts"`
	NumExpertsPerTok    int `json:"num_experts_per_tok"`
	MoEIntermediateSize int `json:"moe_intermediate_size"`
}

// ParseConfig decodes config.json. Multimodal checkpoints keep the language
// model's fields under text_config; those fill anything missing at the top.
func ParseConfig(raw []byte) (*Config, error) {
	var cfg Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, err
	}
	var nested struct {
		TextConfig *Config `json:"text_config"`
	}
	if err := json.Unmarshal(raw, &nested); err != nil {
		return nil, err
	}
	if t := nested.TextConfig; t != nil {
		fill(&cfg.HiddenSize, t.HiddenSize)
		fill(&cfg.IntermediateSize, t.IntermediateSize)
		fill(&cfg.NumHiddenLayers, t.NumHiddenLayers)
		fill(&cfg.NumAttentionHeads, t.NumAttentionHeads)
		fill(&cfg.NumKeyValueHeads, t.NumKeyValueHeads)
		fill(&cfg.HeadDim, t.HeadDim)
		fill(&cfg.VocabSize, t.VocabSize)
		fill(&cfg.NumLocalExperts, t.NumLocalExperts)
		fill(&cfg.NumExpertsPerTok, t.NumExpertsPerTok)
		fill(&cfg.MoEIntermediateSize, t.MoEIntermediateSize)
	}
	return &cfg, nil
}

func fill(dst *int, v int) {
	if *dst == 0 && v > 0 {
		*dst = v
	}
}

// DType is the element type placeholders are declared with.
func (c *Config) DType() tensor.DType {
	switch strings.ToLower(c.TorchDType) {
	case "bfloat16":
		return tensor.BF16
	case "float16":
		return tensor.F16
	default:
		return tensor.F32
	}
}

func (c *Config) validate() error {
	switch {
	case c.HiddenSize <= 0:
		return fmt.Errorf("hidden_size must be set")
	case c.NumHiddenLayers <= 0:
		return fmt.Errorf("num_hidden_layers must be set")
	case c.NumAttentionHeads <= 0:
		return fmt.Errorf("num_attention_heads must be set")
	case c.VocabSize <= 0:
		return fmt.Errorf("vocab_size must be set")
	case c.IntermediateSize <= 0 && c.MoEIntermediateSize <= 0:
		return fmt.Errorf("intermediate_size must be set")
	}
	if c.HeadDim <= 0 && c.HiddenSize%c.NumAttentionHeads != 0 {
		return fmt.Errorf("hidden_size must be divisible by num_attention_heads when head_dim is unset")
	}
	return nil
}

func (c *Config) headDim() int {
	if c.HeadDim > 0 {
		return c.HeadDim
	}
	return c.HiddenSize / c.NumAttentionHeads
}

func (c *Config) kvHeads() int {
	if c.NumKeyValueHeads > 0 {
		return c.NumKeyValueHeads
	}
	return c.NumAttentionHeads
}

func (c *Config) expertSize() int {
	if c.MoEIntermediateSize > 0 {
		return c.MoEIntermediateSize
	}
	return c.IntermediateSize
}
