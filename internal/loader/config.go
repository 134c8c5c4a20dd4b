package loader

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/goccy/go-json"
)

// ConfigFile is the descriptor stored next to the weights.
const ConfigFile = "config.json"

type Source int

const (
	SourceRemote Source = iota
	SourceLocal
)

func (s Source) String() string {
	if s == SourceLocal {
		return "local"
	}
	return "remote"
}

// Configuration names a model either by hub id or by local directory.
// Values are immutable; use the constructors.
type Configuration struct {
	source Source
	id     string
	dir    string
}

// Remote identifies a model by hub repository id.
func Remote(id string) Configuration {
	return Configuration{source: SourceRemote, id: id}
}

// Local identifies a model by directory.
func Local(dir string) Configuration {
	return Configuration{source: SourceLocal, id: dir, dir: dir}
}

// localFallback keeps the original id so logs still name the model.
func (c Configuration) localFallback(dir string) Configuration {
	return Configuration{source: SourceLocal, id: c.id, dir: dir}
}

func (c Configuration) Source() Source    { return c.source }
func (c Configuration) ID() string        { return c.id }
func (c Configuration) Directory() string { return c.dir }

func (c Configuration) String() string {
	if c.source == SourceLocal && c.dir != c.id {
		return fmt.Sprintf("local(%s @ %s)", c.id, c.dir)
	}
	return fmt.Sprintf("%s(%s)", c.source, c.id)
}

// QuantizationDescriptor is the optional "quantization" object of config.json.
type QuantizationDescriptor struct {
	Bits      int `json:"bits"`
	GroupSize int `json:"group_size"`
}

// BaseConfiguration is the part of config.json the loader itself reads.
type BaseConfiguration struct {
	ModelType    string                  `json:"model_type"`
	Quantization *QuantizationDescriptor `json:"quantization,omitempty"`
}

// ReadBaseConfiguration decodes dir/config.json.
func ReadBaseConfiguration(dir string) (BaseConfiguration, error) {
	path := filepath.Join(dir, ConfigFile)
	raw, err := os.ReadFile(path)
	if err != nil {
		return BaseConfiguration{}, &DecodingError{Path: path, Err: err}
	}
	base, err := ParseBaseConfiguration(raw)
	if err != nil {
		return BaseConfiguration{}, &DecodingError{Path: path, Err: err}
	}
	return base, nil
}

func ParseBaseConfiguration(raw []byte) (BaseConfiguration, error) {
	var base BaseConfiguration
	if err := json.Unmarshal(raw, &base); err != nil {
		return BaseConfiguration{}, err
	}
	if base.ModelType == "" {
		return BaseConfiguration{}, errors.New("missing model_type")
	}
	if q := base.Quantization; q != nil && (q.Bits <= 0 || q.GroupSize <= 0) {
		return BaseConfiguration{}, fmt.Errorf("invalid quantization bits=%d group_size=%d", q.Bits, q.GroupSize)
	}
	return base, nil
}
