package main

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"sync"

	"github.com/notargets/DGMapper/comm"
	"github.com/notargets/DGMapper/config"
	"github.com/notargets/DGMapper/mapper"
	"github.com/notargets/DGMapper/meshio"
	"github.com/notargets/DGMapper/modelpart"
	"github.com/notargets/DGMapper/partitions"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/spatial/r3"
)

func newMapCmd(verbose *bool) *cobra.Command {
	var (
		casePath string
		ranks    int
		output   string
	)
	cmd := &cobra.Command{
		Use:   "map",
		Short: "Run the mapping case described by a TOML file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := config.LoadCase(casePath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("ranks") {
				c.Ranks = ranks
			}
			if output != "" {
				c.Output = output
			}
			log := newLogger(cmd, c.Mapper.EchoLevel, *verbose)

			out := cmd.OutOrStdout()
			if c.Output != "" {
				f, err := os.Create(c.Output)
				if err != nil {
					return err
				}
				defer f.Close()
				out = f
			}
			return runCase(cmd.Context(), c, log, out)
		},
	}
	cmd.Flags().StringVarP(&casePath, "case", "c", "case.toml", "mapping case file")
	cmd.Flags().IntVarP(&ranks, "ranks", "n", 1, "override the number of in-process ranks")
	cmd.Flags().StringVarP(&output, "output", "o", "", "override the CSV output path")
	return cmd
}

// nodeValues is one output row
type nodeValues struct {
	id     int
	coords r3.Vec
	values []float64
}

// runCase builds both meshes, distributes them, maps the field on every
// rank and writes the owned target values as CSV sorted by node ID
func runCase(ctx context.Context, c *config.Case, log logrus.FieldLogger, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if c.Ranks < 1 {
		return fmt.Errorf("ranks must be positive, got %d", c.Ranks)
	}
	settings := c.Mapper.Resolved()
	fe, err := compileField(c.Field.Type, c.Field.Expressions, settings.Dimension)
	if err != nil {
		return err
	}
	strategy, err := partitions.ParsePartitionStrategy(c.PartitionStrategy)
	if err != nil {
		return err
	}
	origin, err := loadMesh("origin", c.Origin)
	if err != nil {
		return err
	}
	destination, err := loadMesh("destination", c.Destination)
	if err != nil {
		return err
	}
	log.Infof("%s, %s on %d ranks", origin, destination, c.Ranks)

	origins, err := partitions.Distribute(origin, c.Ranks, strategy)
	if err != nil {
		return err
	}
	destinations, err := partitions.Distribute(destination, c.Ranks, strategy)
	if err != nil {
		return err
	}

	var (
		mu   sync.Mutex
		rows []nodeValues
		opts = mapper.MapOptions{
			SwapSign:     c.Options.SwapSign,
			AddValues:    c.Options.AddValues,
			Conservative: c.Options.Conservative,
		}
	)
	err = comm.NewWorld(c.Ranks).Run(ctx, func(ctx context.Context, cm comm.Communicator) error {
		o, d := origins[cm.Rank()], destinations[cm.Rank()]
		m, err := mapper.New(ctx, mapper.Context{Comm: cm, Settings: c.Mapper, Logger: log}, o, d)
		if err != nil {
			return err
		}
		// The field is defined on the source side of the transfer
		src, dst := o, d
		if c.Options.Inverse {
			src, dst = d, o
		}
		srcField, err := fe.evaluate(c.Field.Name, src)
		if err != nil {
			return err
		}
		dstField := fe.newField(c.Field.Name, dst)
		if c.Options.Inverse {
			err = m.InverseMap(ctx, dstField, srcField, opts)
		} else {
			err = m.Map(ctx, srcField, dstField, opts)
		}
		if err != nil {
			return err
		}

		mu.Lock()
		defer mu.Unlock()
		for _, i := range dst.OwnedNodes(cm.Rank()) {
			n := dst.Nodes[i]
			rows = append(rows, nodeValues{
				id:     n.ID,
				coords: n.Coords,
				values: dstField.Values[i*dstField.Components : (i+1)*dstField.Components],
			})
		}
		return nil
	})
	if err != nil {
		return err
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].id < rows[j].id })
	return writeCSV(out, c.Field.Name, rows)
}

func loadMesh(name string, spec config.MeshSpec) (*modelpart.ModelPart, error) {
	var (
		mp  *modelpart.ModelPart
		err error
	)
	if spec.File != "" {
		mp, err = meshio.Read(spec.File, name, spec.PointsOnly)
	} else {
		g := spec.Grid
		mp, err = modelpart.StructuredGrid{
			Nx: g.Cells[0], Ny: g.Cells[1], Nz: g.Cells[2],
			Min: r3.Vec{X: g.Min[0], Y: g.Min[1], Z: g.Min[2]},
			Max: r3.Vec{X: g.Max[0], Y: g.Max[1], Z: g.Max[2]},
		}.Build(name)
		if err == nil && spec.PointsOnly {
			mp.Elements = nil
		}
	}
	if err != nil {
		return nil, fmt.Errorf("%s mesh: %w", name, err)
	}
	return mp, nil
}

func writeCSV(out io.Writer, field string, rows []nodeValues) error {
	w := csv.NewWriter(out)
	header := []string{"id", "x", "y", "z"}
	if len(rows) > 0 && len(rows[0].values) > 1 {
		for c := range rows[0].values {
			header = append(header, fmt.Sprintf("%s_%d", field, c))
		}
	} else {
		header = append(header, field)
	}
	if err := w.Write(header); err != nil {
		return err
	}
	format := func(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }
	for _, r := range rows {
		rec := []string{strconv.Itoa(r.id), format(r.coords.X), format(r.coords.Y), format(r.coords.Z)}
		for _, v := range r.values {
			rec = append(rec, format(v))
		}
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}
