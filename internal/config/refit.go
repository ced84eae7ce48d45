package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
)

// DefaultConfigPath is the path to the canonical refit defaults file.
const DefaultConfigPath = "config/refit.defaults.json"

// Propagator names accepted by the "propagator" field.
const (
	PropagatorDefault  = "default"  // helix in a field, straight line without one
	PropagatorHelix    = "helix"    // always helix (falls back to a line when field is zero)
	PropagatorStraight = "straight" // always straight line
)

// Direction names accepted by the "direction" field.
const (
	DirectionForward = "forward" // only positive path lengths
	DirectionAny     = "any"     // shortest path in either direction
)

// RefitConfig is the root configuration for refitted state conversion and
// propagation. Fields omitted from JSON keep their defaults through the
// Get* accessors, so partial configs are safe.
type RefitConfig struct {
	// Magnetic field along z, in Tesla.
	FieldTesla *float64 `json:"field_tesla,omitempty"`

	// Propagation params
	Propagator            *string  `json:"propagator,omitempty"`
	Direction             *string  `json:"direction,omitempty"`
	MaxPathLength         *float64 `json:"max_path_length,omitempty"`        // metres
	IntersectionTolerance *float64 `json:"intersection_tolerance,omitempty"` // metres
	MaxIterations         *int     `json:"max_iterations,omitempty"`
	JacobianStep          *float64 `json:"jacobian_step,omitempty"` // finite-difference step
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyRefitConfig returns a RefitConfig with all fields set to nil.
func EmptyRefitConfig() *RefitConfig {
	return &RefitConfig{}
}

// DefaultRefitConfig returns a RefitConfig with every field populated with
// its default value.
func DefaultRefitConfig() *RefitConfig {
	return &RefitConfig{
		FieldTesla:            ptrFloat64(3.8),
		Propagator:            ptrString(PropagatorDefault),
		Direction:             ptrString(DirectionForward),
		MaxPathLength:         ptrFloat64(100),
		IntersectionTolerance: ptrFloat64(1e-9),
		MaxIterations:         ptrInt(50),
		JacobianStep:          ptrFloat64(1e-6),
	}
}

// LoadRefitConfig loads a RefitConfig from a JSON file.
// The file must have a .json extension and be under 1MB.
func LoadRefitConfig(path string) (*RefitConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyRefitConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical refit defaults from DefaultConfigPath.
// It searches the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *RefitConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,       // from cmd/
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // deeper packages
	}
	for _, path := range candidates {
		if cfg, err := LoadRefitConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *RefitConfig) Validate() error {
	if c.FieldTesla != nil {
		if math.IsNaN(*c.FieldTesla) || math.IsInf(*c.FieldTesla, 0) {
			return fmt.Errorf("field_tesla must be finite, got %f", *c.FieldTesla)
		}
	}

	if c.Propagator != nil {
		switch *c.Propagator {
		case PropagatorDefault, PropagatorHelix, PropagatorStraight:
		default:
			return fmt.Errorf("unknown propagator %q", *c.Propagator)
		}
	}

	if c.Direction != nil {
		switch *c.Direction {
		case DirectionForward, DirectionAny:
		default:
			return fmt.Errorf("unknown direction %q", *c.Direction)
		}
	}

	if c.MaxPathLength != nil && !(*c.MaxPathLength > 0) {
		return fmt.Errorf("max_path_length must be positive, got %f", *c.MaxPathLength)
	}
	if c.IntersectionTolerance != nil && !(*c.IntersectionTolerance > 0) {
		return fmt.Errorf("intersection_tolerance must be positive, got %g", *c.IntersectionTolerance)
	}
	if c.MaxIterations != nil && *c.MaxIterations < 1 {
		return fmt.Errorf("max_iterations must be at least 1, got %d", *c.MaxIterations)
	}
	if c.JacobianStep != nil && !(*c.JacobianStep > 0) {
		return fmt.Errorf("jacobian_step must be positive, got %g", *c.JacobianStep)
	}

	return nil
}

// GetFieldTesla returns the field_tesla value or the default.
func (c *RefitConfig) GetFieldTesla() float64 {
	if c.FieldTesla == nil {
		return 3.8
	}
	return *c.FieldTesla
}

// GetPropagator returns the propagator value or the default.
func (c *RefitConfig) GetPropagator() string {
	if c.Propagator == nil || *c.Propagator == "" {
		return PropagatorDefault
	}
	return *c.Propagator
}

// GetDirection returns the direction value or the default.
func (c *RefitConfig) GetDirection() string {
	if c.Direction == nil || *c.Direction == "" {
		return DirectionForward
	}
	return *c.Direction
}

// GetMaxPathLength returns the max_path_length value or the default.
func (c *RefitConfig) GetMaxPathLength() float64 {
	if c.MaxPathLength == nil {
		return 100
	}
	return *c.MaxPathLength
}

// GetIntersectionTolerance returns the intersection_tolerance value or the default.
func (c *RefitConfig) GetIntersectionTolerance() float64 {
	if c.IntersectionTolerance == nil {
		return 1e-9
	}
	return *c.IntersectionTolerance
}

// GetMaxIterations returns the max_iterations value or the default.
func (c *RefitConfig) GetMaxIterations() int {
	if c.MaxIterations == nil {
		return 50
	}
	return *c.MaxIterations
}

// GetJacobianStep returns the jacobian_step value or the default.
func (c *RefitConfig) GetJacobianStep() float64 {
	if c.JacobianStep == nil {
		return 1e-6
	}
	return *c.JacobianStep
}
