// Package main provides refit-plot, a tool that builds a refitted perigee
// state (optionally a two-hypothesis mixture), propagates it onto a set of
// barrel layers and plots the transverse trajectory.
package main

import (
	"flag"
	"fmt"
	"image/color"
	"io"
	"log"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/banshee-data/trackrefit/internal/config"
	"github.com/banshee-data/trackrefit/internal/monitoring"
	"github.com/banshee-data/trackrefit/internal/refit"
	"github.com/banshee-data/trackrefit/internal/trajectory"
	"github.com/banshee-data/trackrefit/internal/version"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// Config holds the command line options.
type Config struct {
	ConfigFile string
	Rho        float64
	Theta      float64
	Phi        float64
	D0         float64
	Z0         float64
	Vertex     r3.Vec
	Spread     float64 // curvature offset of the second hypothesis; 0 disables the mixture
	Radii      []float64
	Output     string
	Verbose    bool
}

// LayerResult is the outcome of propagating onto one layer.
type LayerResult struct {
	Radius     float64
	Valid      bool
	Err        error
	Position   r3.Vec
	PathLength float64
	Components []r3.Vec
}

func main() {
	cfg, showVersion := parseFlags()
	if showVersion {
		fmt.Println(version.String("refit-plot"))
		return
	}
	if !cfg.Verbose {
		monitoring.SetLogger(nil)
	}
	if err := run(cfg, os.Stdout); err != nil {
		log.Fatal(err)
	}
}

func parseFlags() (Config, bool) {
	var cfg Config
	var radii, vertex string
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.StringVar(&cfg.ConfigFile, "config", "", "refit config JSON (defaults built in)")
	flag.Float64Var(&cfg.Rho, "rho", -0.3, "signed transverse curvature (1/m)")
	flag.Float64Var(&cfg.Theta, "theta", 1.2, "polar angle (rad)")
	flag.Float64Var(&cfg.Phi, "phi", 0.4, "azimuth at closest approach (rad)")
	flag.Float64Var(&cfg.D0, "d0", 0, "transverse impact parameter (m)")
	flag.Float64Var(&cfg.Z0, "z0", 0, "longitudinal impact parameter (m)")
	flag.StringVar(&vertex, "vertex", "0,0,0", "reference point x,y,z (m)")
	flag.Float64Var(&cfg.Spread, "spread", 0, "curvature offset for a second hypothesis (1/m)")
	flag.StringVar(&radii, "radii", "0.03,0.07,0.11,0.25,0.5,0.75,1.0", "comma-separated layer radii (m)")
	flag.StringVar(&cfg.Output, "out", "refit.png", "output PNG path")
	flag.BoolVar(&cfg.Verbose, "v", false, "log dropped components")
	flag.Parse()

	var err error
	if cfg.Radii, err = parseFloats(radii); err != nil {
		log.Fatalf("invalid -radii: %v", err)
	}
	v, err := parseFloats(vertex)
	if err != nil || len(v) != 3 {
		log.Fatalf("invalid -vertex %q: want x,y,z", vertex)
	}
	cfg.Vertex = r3.Vec{X: v[0], Y: v[1], Z: v[2]}
	return cfg, *showVersion
}

func parseFloats(s string) ([]float64, error) {
	var out []float64
	for _, f := range strings.Split(s, ",") {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		x, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, err
		}
		out = append(out, x)
	}
	return out, nil
}

func loadRefitConfig(path string) (*config.RefitConfig, error) {
	if path == "" {
		return config.DefaultRefitConfig(), nil
	}
	return config.LoadRefitConfig(path)
}

// buildState returns the perigee state, or a mixture of two curvature
// hypotheses when spread is non-zero.
func buildState(cfg Config, rc *config.RefitConfig) (*refit.Ref, error) {
	field := rc.GetFieldTesla()
	prop := refit.WithDefaultPropagator(trajectory.PropagatorFromConfig(rc))
	cov := mat.NewSymDense(refit.PerigeeDim, nil)
	for i, v := range []float64{1e-6, 1e-6, 1e-6, 1e-8, 1e-8} {
		cov.SetSym(i, i, v)
	}

	perigee := func(rho, w float64) (*refit.Ref, error) {
		params := mat.NewVecDense(refit.PerigeeDim, []float64{rho, cfg.Theta, cfg.Phi, cfg.D0, cfg.Z0})
		return refit.NewPerigee(params, cov, cfg.Vertex, field, refit.WithWeight(w), prop)
	}

	if cfg.Spread == 0 {
		return perigee(cfg.Rho, 1)
	}

	a, err := perigee(cfg.Rho-cfg.Spread, 0.5)
	if err != nil {
		return nil, err
	}
	defer a.Release()
	b, err := perigee(cfg.Rho+cfg.Spread, 0.5)
	if err != nil {
		return nil, err
	}
	defer b.Release()
	return refit.NewMixture([]*refit.Ref{a, b}, prop)
}

// propagateLayers places state on a cylinder at every radius.
func propagateLayers(state refit.State, radii []float64) ([]LayerResult, error) {
	results := make([]LayerResult, 0, len(radii))
	for _, r := range radii {
		cyl, err := trajectory.NewCylinder(r)
		if err != nil {
			return nil, err
		}
		ss := state.TrajectoryStateOnSurface(cyl, nil)
		res := LayerResult{Radius: r, Valid: ss.IsValid(), Err: ss.Err()}
		if res.Valid {
			res.Position = ss.Free.Position
			res.PathLength = ss.PathLength
			for _, c := range ss.Components {
				res.Components = append(res.Components, c.Free.Position)
			}
		}
		results = append(results, res)
	}
	return results, nil
}

func run(cfg Config, w io.Writer) error {
	rc, err := loadRefitConfig(cfg.ConfigFile)
	if err != nil {
		return err
	}
	state, err := buildState(cfg, rc)
	if err != nil {
		return fmt.Errorf("failed to build state: %w", err)
	}
	defer state.Release()

	fs, err := state.FreeTrajectoryState()
	if err != nil {
		return fmt.Errorf("failed to convert state: %w", err)
	}
	fmt.Fprintf(w, "state: %d component(s), weight %.3g, pT %.4g GeV, charge %+d\n",
		max(1, len(state.Components())), state.Weight(), fs.Pt(), fs.Charge)

	results, err := propagateLayers(state, cfg.Radii)
	if err != nil {
		return err
	}
	for _, res := range results {
		if !res.Valid {
			fmt.Fprintf(w, "r=%6.3f m  unreachable: %v\n", res.Radius, res.Err)
			continue
		}
		fmt.Fprintf(w, "r=%6.3f m  x=%8.4f y=%8.4f z=%8.4f  path=%.4f m\n",
			res.Radius, res.Position.X, res.Position.Y, res.Position.Z, res.PathLength)
	}

	if cfg.Output == "" {
		return nil
	}
	if err := plotLayers(results, cfg.Output); err != nil {
		return err
	}
	fmt.Fprintf(w, "wrote %s\n", cfg.Output)
	return nil
}

// plotLayers draws the collapsed crossing points, the per-component
// crossings and the layers in the transverse plane.
func plotLayers(results []LayerResult, path string) error {
	p := plot.New()
	p.Title.Text = "Refitted track: transverse view"
	p.X.Label.Text = "x (m)"
	p.Y.Label.Text = "y (m)"

	var collapsed, comps plotter.XYs
	for _, res := range results {
		if err := addLayer(p, res.Radius); err != nil {
			return err
		}
		if !res.Valid {
			continue
		}
		collapsed = append(collapsed, plotter.XY{X: res.Position.X, Y: res.Position.Y})
		for _, c := range res.Components {
			comps = append(comps, plotter.XY{X: c.X, Y: c.Y})
		}
	}

	if len(collapsed) > 0 {
		line, err := plotter.NewLine(collapsed)
		if err != nil {
			return fmt.Errorf("failed to create trajectory line: %w", err)
		}
		line.Width = vg.Points(1.5)
		line.Color = color.RGBA{R: 200, A: 255}
		p.Add(line)
		p.Legend.Add("collapsed", line)
	}
	if len(comps) > 0 {
		sc, err := plotter.NewScatter(comps)
		if err != nil {
			return fmt.Errorf("failed to create component scatter: %w", err)
		}
		sc.GlyphStyle.Color = color.RGBA{B: 200, A: 255}
		p.Add(sc)
		p.Legend.Add("components", sc)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}
	if err := p.Save(6*vg.Inch, 6*vg.Inch, path); err != nil {
		return fmt.Errorf("failed to save plot: %w", err)
	}
	return nil
}

// addLayer outlines a barrel layer as a grey circle.
func addLayer(p *plot.Plot, r float64) error {
	const segments = 90
	pts := make(plotter.XYs, segments+1)
	for i := range pts {
		c, s := cosSin(float64(i) / segments)
		pts[i] = plotter.XY{X: r * c, Y: r * s}
	}
	l, err := plotter.NewLine(pts)
	if err != nil {
		return fmt.Errorf("failed to create layer outline: %w", err)
	}
	l.Color = color.Gray{Y: 180}
	l.Width = vg.Points(0.5)
	p.Add(l)
	return nil
}

// cosSin returns the cosine and sine of a fraction of a full turn.
func cosSin(frac float64) (float64, float64) {
	s, c := math.Sincos(2 * math.Pi * frac)
	return c, s
}
