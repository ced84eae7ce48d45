package main

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/banshee-data/trackrefit/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) Config {
	t.Helper()
	return Config{
		Rho:    -0.3,
		Theta:  1.2,
		Phi:    0.4,
		Radii:  []float64{0.05, 0.5, 1.0},
		Output: filepath.Join(t.TempDir(), "plots", "refit.png"),
	}
}

func TestParseFloats(t *testing.T) {
	got, err := parseFloats(" 0.1, 0.2,,1 ")
	require.NoError(t, err)
	assert.Equal(t, []float64{0.1, 0.2, 1}, got)

	_, err = parseFloats("0.1,abc")
	assert.Error(t, err)
}

func TestRunWritesPlot(t *testing.T) {
	cfg := testConfig(t)
	var out bytes.Buffer
	require.NoError(t, run(cfg, &out))

	info, err := os.Stat(cfg.Output)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))

	text := out.String()
	assert.Contains(t, text, "1 component(s)")
	assert.Equal(t, len(cfg.Radii), strings.Count(text, "path="))
	assert.Contains(t, text, "wrote "+cfg.Output)
}

func TestRunMixtureAndUnreachableLayer(t *testing.T) {
	cfg := testConfig(t)
	cfg.Spread = 0.02
	// The helix diameter at 3.8 T and rho=-0.3 is under 7 m.
	cfg.Radii = []float64{0.5, 10}
	cfg.Output = ""

	var out bytes.Buffer
	require.NoError(t, run(cfg, &out))
	text := out.String()
	assert.Contains(t, text, "2 component(s)")
	assert.Contains(t, text, "unreachable")
	assert.NotContains(t, text, "wrote")
}

func TestPropagateLayersComponents(t *testing.T) {
	cfg := testConfig(t)
	cfg.Spread = 0.01
	state, err := buildState(cfg, config.DefaultRefitConfig())
	require.NoError(t, err)
	defer state.Release()

	results, err := propagateLayers(state, []float64{0.3})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.True(t, results[0].Valid)
	assert.Len(t, results[0].Components, 2)
	assert.InDelta(t, 0.3, math.Hypot(results[0].Position.X, results[0].Position.Y), 5e-3)

	_, err = propagateLayers(state, []float64{-1})
	assert.Error(t, err)
}

func TestRunRejectsBadConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.ConfigFile = filepath.Join(t.TempDir(), "refit.yaml")
	err := run(cfg, &bytes.Buffer{})
	assert.ErrorContains(t, err, ".json extension")
}
