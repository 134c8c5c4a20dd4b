package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/ferry/internal/loader"
	"github.com/samcharles93/ferry/internal/logger"
	"github.com/samcharles93/ferry/internal/model"
	"github.com/samcharles93/ferry/internal/safetensors"
	"github.com/samcharles93/ferry/internal/tokenizer"
	"github.com/samcharles93/ferry/internal/weights"
	"github.com/samcharles93/ferry/pkg/quant"
)

// quantizedFile is the single shard a quantized checkpoint is written to.
const quantizedFile = "model" + safetensors.Ext

var errAlreadyQuantized = errors.New("checkpoint is already quantized")

func quantizeCmd() *cli.Command {
	var (
		in        string
		out       string
		bits      int64
		groupSize int64
	)

	return &cli.Command{
		Name:  "quantize",
		Usage: "Write an affine-quantized copy of a dense checkpoint",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "dir",
				Aliases:     []string{"d"},
				Usage:       "dense model directory",
				Required:    true,
				Destination: &in,
			},
			&cli.StringFlag{
				Name:        "out",
				Aliases:     []string{"o"},
				Usage:       "output directory",
				Required:    true,
				Destination: &out,
			},
			&cli.Int64Flag{
				Name:        "bits",
				Usage:       "bits per weight (2, 4, 8)",
				Value:       4,
				Destination: &bits,
			},
			&cli.Int64Flag{
				Name:        "group-size",
				Usage:       "weights per scale/bias pair (32, 64, 128)",
				Value:       64,
				Destination: &groupSize,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)
			n, err := quantizeCheckpoint(in, out, int(bits), int(groupSize))
			if err != nil {
				return err
			}
			log.Info("quantized checkpoint written", "dir", out, "layers", n, "bits", bits, "group_size", groupSize)
			return nil
		},
	}
}

// quantizeCheckpoint converts the dense checkpoint in src and writes it to
// dst in the layout the loader reads back under the default strategy.
func quantizeCheckpoint(src, dst string, bits, groupSize int) (int, error) {
	scheme := quant.Scheme{Bits: bits, GroupSize: groupSize}
	if err := scheme.Validate(); err != nil {
		return 0, err
	}
	base, err := loader.ReadBaseConfiguration(src)
	if err != nil {
		return 0, err
	}
	if base.Quantization != nil {
		return 0, fmt.Errorf("%s: %w", src, errAlreadyQuantized)
	}

	configPath := filepath.Join(src, loader.ConfigFile)
	g, err := model.Factory{}.CreateModel(base.ModelType, configPath)
	if err != nil {
		return 0, &loader.DecodingError{Path: configPath, Err: err}
	}
	w, err := weights.NewAggregator().Aggregate(src)
	if err != nil {
		return 0, err
	}
	if err := g.Update(model.Unflatten(w), model.VerifyAll); err != nil {
		return 0, err
	}

	spec := loader.QuantizationSpec{
		Bits:      bits,
		GroupSize: groupSize,
		Strategy:  loader.DefaultLinearExclusion,
		VocabSize: g.VocabSize,
	}
	n, err := model.Quantize(g, spec.Match, bits, groupSize)
	if err != nil {
		return 0, err
	}

	if err := os.MkdirAll(dst, 0o755); err != nil {
		return 0, err
	}
	meta := map[string]string{
		"format":     "ferry",
		"bits":       fmt.Sprint(bits),
		"group_size": fmt.Sprint(groupSize),
	}
	if err := safetensors.Write(filepath.Join(dst, quantizedFile), g.Parameters(), meta); err != nil {
		return 0, err
	}
	if err := writeQuantizedConfig(configPath, filepath.Join(dst, loader.ConfigFile), bits, groupSize); err != nil {
		return 0, err
	}
	for _, name := range []string{tokenizer.TokenizerFile, tokenizer.ConfigFile} {
		if err := copyFile(filepath.Join(src, name), filepath.Join(dst, name)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return 0, err
		}
	}
	return n, nil
}

// writeQuantizedConfig copies config.json adding the quantization object.
// Unknown fields are carried over untouched.
func writeQuantizedConfig(src, dst string, bits, groupSize int) error {
	raw, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(raw, &doc); err != nil {
		return &loader.DecodingError{Path: src, Err: err}
	}
	q, err := json.Marshal(loader.QuantizationDescriptor{Bits: bits, GroupSize: groupSize})
	if err != nil {
		return err
	}
	doc["quantization"] = q
	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(dst, append(out, '\n'), 0o644)
}

func copyFile(src, dst string) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := out.Close(); err == nil {
			err = cerr
		}
	}()
	_, err = io.Copy(out, in)
	return err
}
