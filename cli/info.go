package cli

import (
	"fmt"
	"os"
	"strings"
	"sync"

	units "github.com/docker/go-units"
	"github.com/golang/geo/r3"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"go.viam.com/pccrop/logging"
	"go.viam.com/pccrop/pointcloud"
)

type infoArgs struct{}

// cloudStats summarizes one point cloud file.
type cloudStats struct {
	File       string
	Bytes      int64
	Points     int
	Attributes []string
	Min, Max   r3.Vector
	Mean       r3.Vector
	StdDev     r3.Vector
}

// InfoAction is the corresponding action for 'info'.
func InfoAction(c *cli.Context, args infoArgs) error {
	files := lo.Uniq(c.Args().Slice())
	if len(files) == 0 {
		return errors.New("at least one point cloud file is required")
	}
	summaries, err := loadStats(c, files, newLogger(c))
	if err != nil {
		return err
	}

	t := table.NewWriter()
	t.AppendHeader(table.Row{"File", "Size", "Points", "Attributes", "Min", "Max", "Mean", "Std Dev"})
	for _, s := range summaries {
		t.AppendRow(table.Row{
			s.File,
			units.HumanSize(float64(s.Bytes)),
			s.Points,
			attributesString(s.Attributes),
			formatVector(s.Min),
			formatVector(s.Max),
			formatVector(s.Mean),
			formatVector(s.StdDev),
		})
	}
	printf(c.App.Writer, "%s", t.Render())
	return nil
}

// loadStats reads the files concurrently and returns their summaries in the order given.
func loadStats(c *cli.Context, files []string, logger logging.Logger) ([]cloudStats, error) {
	summaries := make([]cloudStats, len(files))
	var mu sync.Mutex
	g, ctx := errgroup.WithContext(c.Context)
	for i, fn := range files {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			s, err := summarize(fn, logger)
			if err != nil {
				return err
			}
			mu.Lock()
			summaries[i] = s
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return summaries, nil
}

func summarize(fn string, logger logging.Logger) (cloudStats, error) {
	info, err := os.Stat(fn)
	if err != nil {
		return cloudStats{}, err
	}
	pc, err := pointcloud.NewFromFile(fn, logger)
	if err != nil {
		return cloudStats{}, err
	}
	meta := pc.MetaData()
	s := cloudStats{File: fn, Bytes: info.Size(), Points: pc.Size()}
	if meta.HasColor {
		s.Attributes = append(s.Attributes, "color")
	}
	if meta.HasNormal {
		s.Attributes = append(s.Attributes, "normal")
	}
	if meta.HasValue {
		s.Attributes = append(s.Attributes, "value")
	}
	if pc.Size() == 0 {
		return s, nil
	}
	s.Min, s.Max = pointcloud.BoundingBox(pc)

	points := pointcloud.Points(pc)
	axes := [3]stats.Float64Data{
		lo.Map(points, func(p r3.Vector, _ int) float64 { return p.X }),
		lo.Map(points, func(p r3.Vector, _ int) float64 { return p.Y }),
		lo.Map(points, func(p r3.Vector, _ int) float64 { return p.Z }),
	}
	var mean, stddev [3]float64
	for i, data := range axes {
		if mean[i], err = stats.Mean(data); err != nil {
			return cloudStats{}, err
		}
		if stddev[i], err = stats.StandardDeviation(data); err != nil {
			return cloudStats{}, err
		}
	}
	s.Mean = r3.Vector{X: mean[0], Y: mean[1], Z: mean[2]}
	s.StdDev = r3.Vector{X: stddev[0], Y: stddev[1], Z: stddev[2]}
	return s, nil
}

func attributesString(attrs []string) string {
	if len(attrs) == 0 {
		return "-"
	}
	return strings.Join(attrs, ", ")
}

func formatVector(v r3.Vector) string {
	return fmt.Sprintf("X:%.3f, Y:%.3f, Z:%.3f", v.X, v.Y, v.Z)
}
