package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultRefitConfig(t *testing.T) {
	cfg := DefaultRefitConfig()

	if cfg.FieldTesla == nil || *cfg.FieldTesla != 3.8 {
		t.Errorf("Expected FieldTesla 3.8, got %v", cfg.FieldTesla)
	}
	if cfg.Propagator == nil || *cfg.Propagator != PropagatorDefault {
		t.Errorf("Expected Propagator %q, got %v", PropagatorDefault, cfg.Propagator)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config failed validation: %v", err)
	}
}

func TestEmptyConfigGetters(t *testing.T) {
	cfg := EmptyRefitConfig()
	def := DefaultRefitConfig()

	if cfg.GetFieldTesla() != def.GetFieldTesla() {
		t.Errorf("GetFieldTesla() = %f, want %f", cfg.GetFieldTesla(), def.GetFieldTesla())
	}
	if cfg.GetPropagator() != PropagatorDefault {
		t.Errorf("GetPropagator() = %q, want %q", cfg.GetPropagator(), PropagatorDefault)
	}
	if cfg.GetDirection() != DirectionForward {
		t.Errorf("GetDirection() = %q, want %q", cfg.GetDirection(), DirectionForward)
	}
	if cfg.GetMaxPathLength() != 100 {
		t.Errorf("GetMaxPathLength() = %f, want 100", cfg.GetMaxPathLength())
	}
	if cfg.GetIntersectionTolerance() != 1e-9 {
		t.Errorf("GetIntersectionTolerance() = %g, want 1e-9", cfg.GetIntersectionTolerance())
	}
	if cfg.GetMaxIterations() != 50 {
		t.Errorf("GetMaxIterations() = %d, want 50", cfg.GetMaxIterations())
	}
	if cfg.GetJacobianStep() != 1e-6 {
		t.Errorf("GetJacobianStep() = %g, want 1e-6", cfg.GetJacobianStep())
	}
}

func TestLoadRefitConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "refit.json")

	testJSON := `{
  "field_tesla": 2.0,
  "propagator": "straight",
  "max_iterations": 10
}`
	if err := os.WriteFile(configPath, []byte(testJSON), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	cfg, err := LoadRefitConfig(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.GetFieldTesla() != 2.0 {
		t.Errorf("GetFieldTesla() = %f, want 2.0", cfg.GetFieldTesla())
	}
	if cfg.GetPropagator() != PropagatorStraight {
		t.Errorf("GetPropagator() = %q, want %q", cfg.GetPropagator(), PropagatorStraight)
	}
	if cfg.GetMaxIterations() != 10 {
		t.Errorf("GetMaxIterations() = %d, want 10", cfg.GetMaxIterations())
	}
	// Omitted fields fall back to defaults.
	if cfg.GetDirection() != DirectionForward {
		t.Errorf("GetDirection() = %q, want %q", cfg.GetDirection(), DirectionForward)
	}
}

func TestLoadRefitConfig_Errors(t *testing.T) {
	tmpDir := t.TempDir()

	tests := []struct {
		name     string
		file     string
		contents string
		wantErr  string
	}{
		{"wrong extension", "refit.yaml", `{}`, ".json extension"},
		{"bad json", "bad.json", `{"field_tesla": `, "failed to parse"},
		{"unknown propagator", "prop.json", `{"propagator": "rk4"}`, "unknown propagator"},
		{"unknown direction", "dir.json", `{"direction": "backward"}`, "unknown direction"},
		{"non-positive path", "path.json", `{"max_path_length": 0}`, "max_path_length"},
		{"non-positive tolerance", "tol.json", `{"intersection_tolerance": -1}`, "intersection_tolerance"},
		{"zero iterations", "iter.json", `{"max_iterations": 0}`, "max_iterations"},
		{"zero jacobian step", "step.json", `{"jacobian_step": 0}`, "jacobian_step"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(tmpDir, tt.file)
			if err := os.WriteFile(path, []byte(tt.contents), 0644); err != nil {
				t.Fatalf("Failed to write test config: %v", err)
			}
			_, err := LoadRefitConfig(path)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}

	if _, err := LoadRefitConfig(filepath.Join(tmpDir, "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestMustLoadDefaultConfig(t *testing.T) {
	cfg := MustLoadDefaultConfig()
	if cfg.GetFieldTesla() != 3.8 {
		t.Errorf("GetFieldTesla() = %f, want 3.8", cfg.GetFieldTesla())
	}
	if cfg.GetPropagator() != PropagatorDefault {
		t.Errorf("GetPropagator() = %q, want %q", cfg.GetPropagator(), PropagatorDefault)
	}
}
