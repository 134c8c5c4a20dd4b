package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"sync"

	"github.com/docker/go-units"
	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/ferry/internal/hub"
	"github.com/samcharles93/ferry/internal/loader"
	"github.com/samcharles93/ferry/internal/model"
)

func loadCmd() *cli.Command {
	var (
		modelID string
		dir     string
		layers  bool
	)

	return &cli.Command{
		Name:  "load",
		Usage: "Load a model from the hub or a directory and report what was bound",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "model",
				Aliases:     []string{"m"},
				Usage:       "hub repository id, e.g. org/name",
				Destination: &modelID,
			},
			&cli.StringFlag{
				Name:        "dir",
				Aliases:     []string{"d"},
				Usage:       "local model directory",
				Destination: &dir,
			},
			&cli.BoolFlag{
				Name:        "layers",
				Usage:       "list every linear layer",
				Destination: &layers,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if (modelID == "") == (dir == "") {
				return cli.Exit("exactly one of --model or --dir is required", 2)
			}
			cfg := loader.Remote(modelID)
			if dir != "" {
				cfg = loader.Local(dir)
			}

			p := newProgressPrinter(os.Stderr, isTerminal(os.Stderr))
			res, err := loader.Load(ctx, newHubClient(), cfg, p.update)
			p.finish()
			if err != nil {
				return err
			}

			w := cmd.Root().Writer
			printSummary(w, res)
			if layers {
				printLayers(w, res.Graph)
			}
			return nil
		},
	}
}

// progressPrinter renders hub progress on one terminal line.
type progressPrinter struct {
	w       io.Writer
	enabled bool

	mu      sync.Mutex
	printed bool
}

func newProgressPrinter(w io.Writer, enabled bool) *progressPrinter {
	return &progressPrinter{w: w, enabled: enabled}
}

func (p *progressPrinter) update(pr hub.Progress) {
	if !p.enabled {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	_, _ = fmt.Fprintf(p.w, "\r\033[Kpulling %s  %s / %s",
		pr.File,
		units.HumanSizeWithPrecision(float64(pr.Completed), 3),
		units.HumanSizeWithPrecision(float64(pr.Total), 3),
	)
	p.printed = true
}

func (p *progressPrinter) finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.printed {
		_, _ = fmt.Fprintln(p.w)
		p.printed = false
	}
	p.enabled = false
}

func formatParams(n int64) string {
	return units.CustomSize("%.2f%s", float64(n), 1000.0, []string{"", " K", " M", " B", " T"})
}

func printSummary(w io.Writer, res *loader.Loaded) {
	g := res.Graph
	source := res.Configuration.String()
	if res.Fallback {
		source += " (hub unavailable, used local cache)"
	}
	_, _ = fmt.Fprintf(w, "model:      %s\n", source)
	_, _ = fmt.Fprintf(w, "type:       %s\n", res.Base.ModelType)
	_, _ = fmt.Fprintf(w, "directory:  %s\n", res.Directory)
	_, _ = fmt.Fprintf(w, "parameters: %s\n", formatParams(g.NumParameters()))
	_, _ = fmt.Fprintf(w, "vocab:      %d\n", g.VocabSize)
	if q := res.Base.Quantization; q != nil {
		_, _ = fmt.Fprintf(w, "quantized:  %d layers, %d-bit group %d, %s strategy\n",
			res.Quantized, q.Bits, q.GroupSize, res.Strategy)
	} else {
		_, _ = fmt.Fprintln(w, "quantized:  no")
	}
	if res.Tokenizer != nil {
		_, _ = fmt.Fprintf(w, "tokenizer:  %d tokens\n", res.Tokenizer.VocabSize())
	}
}

func printLayers(w io.Writer, g *model.Graph) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"LAYER", "KIND", "IN", "OUT", "BITS", "GROUP"})
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(false)
	table.SetHeaderLine(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("  ")
	for _, m := range g.Modules() {
		if m.Kind == model.KindOther {
			continue
		}
		bits, group := "-", "-"
		if m.Kind == model.KindQuantized {
			bits, group = strconv.Itoa(m.Bits), strconv.Itoa(m.GroupSize)
		}
		table.Append([]string{m.Path, m.Kind.String(), strconv.Itoa(m.InputDims), strconv.Itoa(m.OutputDims), bits, group})
	}
	table.Render()
}
