package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/docker/go-units"
	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/ferry/internal/loader"
	"github.com/samcharles93/ferry/internal/logger"
	"github.com/samcharles93/ferry/internal/weights"
)

func inspectCmd() *cli.Command {
	var (
		dir    string
		filter string
		limit  int64
	)

	return &cli.Command{
		Name:  "inspect",
		Usage: "List the tensors stored in a model directory",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "dir",
				Aliases:     []string{"d"},
				Usage:       "model directory",
				Required:    true,
				Destination: &dir,
			},
			&cli.StringFlag{
				Name:        "filter",
				Usage:       "only show tensors whose name contains this substring",
				Destination: &filter,
			},
			&cli.Int64Flag{
				Name:        "limit",
				Usage:       "max tensors to list (0 = all)",
				Destination: &limit,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)
			w := cmd.Root().Writer

			if base, err := loader.ReadBaseConfiguration(dir); err == nil {
				_, _ = fmt.Fprintf(w, "model_type: %s\n", base.ModelType)
				if q := base.Quantization; q != nil {
					_, _ = fmt.Fprintf(w, "quantization: %d-bit, group %d\n", q.Bits, q.GroupSize)
				}
			} else {
				log.Warn("no usable config.json", "error", err)
			}

			m, err := weights.NewAggregator().Aggregate(dir)
			if err != nil {
				return err
			}

			table := tablewriter.NewWriter(w)
			table.SetHeader([]string{"NAME", "DTYPE", "SHAPE", "SIZE"})
			table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
			table.SetAlignment(tablewriter.ALIGN_LEFT)
			table.SetBorder(false)
			table.SetHeaderLine(false)
			table.SetNoWhiteSpace(true)
			table.SetTablePadding("  ")
			shown := 0
			for _, name := range m.Keys() {
				if filter != "" && !strings.Contains(name, filter) {
					continue
				}
				if limit > 0 && int64(shown) >= limit {
					break
				}
				t := m[name]
				table.Append([]string{
					name,
					string(t.DType()),
					fmt.Sprint(t.Shape()),
					units.HumanSizeWithPrecision(float64(t.NBytes()), 3),
				})
				shown++
			}
			table.Render()

			_, _ = fmt.Fprintf(w, "%d tensors, %s\n", len(m), units.HumanSizeWithPrecision(float64(m.Bytes()), 3))
			if m.Has(loader.HeadScalesKey) {
				_, _ = fmt.Fprintln(w, "head is quantized")
			}
			return nil
		},
	}
}
