package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/ferry/internal/config"
	"github.com/samcharles93/ferry/internal/hub"
	"github.com/samcharles93/ferry/internal/loader"
)

func TestProgressPrinter(t *testing.T) {
	t.Run("disabled writes nothing", func(t *testing.T) {
		var buf bytes.Buffer
		p := newProgressPrinter(&buf, false)
		p.update(hub.Progress{File: "model.safetensors", Completed: 1, Total: 2})
		p.finish()
		if buf.Len() != 0 {
			t.Fatalf("unexpected output %q", buf.String())
		}
	})

	t.Run("enabled ends with newline", func(t *testing.T) {
		var buf bytes.Buffer
		p := newProgressPrinter(&buf, true)
		p.update(hub.Progress{File: "model.safetensors", Completed: 1500, Total: 3000})
		p.finish()
		p.update(hub.Progress{File: "late", Completed: 1, Total: 1})
		out := buf.String()
		if !strings.Contains(out, "model.safetensors") || !strings.HasSuffix(out, "\n") {
			t.Fatalf("unexpected output %q", out)
		}
		if strings.Contains(out, "late") {
			t.Fatalf("update after finish was printed: %q", out)
		}
	})
}

func TestFormatParams(t *testing.T) {
	if got := formatParams(1_500_000); got != "1.50 M" {
		t.Fatalf("formatParams = %q", got)
	}
}

func TestPrintLoaded(t *testing.T) {
	src, dst := t.TempDir(), filepath.Join(t.TempDir(), "q8")
	writeDense(t, src)
	if _, err := quantizeCheckpoint(src, dst, 8, 64); err != nil {
		t.Fatalf("quantizeCheckpoint: %v", err)
	}
	res, err := loader.Load(context.Background(), nil, loader.Local(dst), nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	var buf bytes.Buffer
	printSummary(&buf, res)
	printLayers(&buf, res.Graph)
	out := buf.String()
	for _, want := range []string{"type:       llama", "8-bit group 64", "lm_head", "quantized", "tokenizer:  3 tokens"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "embed_tokens") {
		t.Fatalf("embedding listed as a layer:\n%s", out)
	}
}

func TestApplyGlobalConfig(t *testing.T) {
	oldEndpoint, oldRevision, oldConcurrency := endpoint, revision, concurrency
	t.Cleanup(func() { endpoint, revision, concurrency = oldEndpoint, oldRevision, oldConcurrency })

	cfg := config.Config{Endpoint: "http://from-file", Revision: "v2", Concurrency: 9}
	cmd := &cli.Command{
		Name:  "test",
		Flags: hubFlags(),
		Action: func(_ context.Context, c *cli.Command) error {
			applyGlobalConfig(c, cfg)
			return nil
		},
	}
	if err := cmd.Run(context.Background(), []string{"test", "--endpoint", "http://from-flag"}); err != nil {
		t.Fatalf("run: %v", err)
	}
	if endpoint != "http://from-flag" {
		t.Fatalf("explicit flag overridden: %q", endpoint)
	}
	if revision != "v2" || concurrency != 9 {
		t.Fatalf("file values not applied: revision=%q concurrency=%d", revision, concurrency)
	}
}

func TestApplyServeConfig(t *testing.T) {
	var addr string
	cmd := &cli.Command{
		Name: "serve",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "addr", Value: "127.0.0.1:8080", Destination: &addr},
		},
		Action: func(_ context.Context, c *cli.Command) error {
			applyServeConfig(c, config.Config{ServerAddress: "0.0.0.0:9000"}, &addr)
			return nil
		},
	}
	if err := cmd.Run(context.Background(), []string{"serve"}); err != nil {
		t.Fatalf("run: %v", err)
	}
	if addr != "0.0.0.0:9000" {
		t.Fatalf("addr = %q", addr)
	}
}
