package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// TestDefault_IsValid verifies the defaults pass validation
// Given: The default config
// When: Validate is called
// Then: No error is returned
func TestDefault_IsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("Default().Validate() = %v, want nil", err)
	}
}

// TestLoad_OverridesDefaults verifies YAML values replace defaults field by field
// Given: A YAML file setting some fields
// When: Load is called
// Then: Set fields are overridden and the rest keep their defaults
func TestLoad_OverridesDefaults(t *testing.T) {
	// Arrange
	dir := t.TempDir()
	path := filepath.Join(dir, "modeljobs.yaml")
	content := `
name: render
pool:
  max_workers: 8
  keep_alive: 2s
log:
  format: json
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	// Act
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	// Assert
	if cfg.Name != "render" {
		t.Errorf("Name: got = %q, want = %q", cfg.Name, "render")
	}
	if cfg.Pool.MaxWorkers != 8 {
		t.Errorf("Pool.MaxWorkers: got = %d, want = %d", cfg.Pool.MaxWorkers, 8)
	}
	if cfg.Pool.KeepAlive != 2*time.Second {
		t.Errorf("Pool.KeepAlive: got = %v, want = %v", cfg.Pool.KeepAlive, 2*time.Second)
	}
	if cfg.Pool.MinWorkers != 1 {
		t.Errorf("Pool.MinWorkers: got = %d, want default %d", cfg.Pool.MinWorkers, 1)
	}
	if cfg.Log.Format != "json" {
		t.Errorf("Log.Format: got = %q, want = %q", cfg.Log.Format, "json")
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level: got = %q, want default %q", cfg.Log.Level, "info")
	}
}

// TestLoad_EmptyPath verifies an empty path yields the defaults
func TestLoad_EmptyPath(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") error = %v", err)
	}
	if cfg.Name != Default().Name {
		t.Errorf("Name: got = %q, want = %q", cfg.Name, Default().Name)
	}
}

// TestLoad_Errors verifies missing and malformed files are reported
func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()

	if _, err := Load(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("Load(missing) error = nil, want error")
	}

	bad := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(bad, []byte("pool: [unclosed"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(bad); err == nil {
		t.Error("Load(bad) error = nil, want error")
	}
}

// TestApplyEnv verifies MODELJOBS_* variables override the config
// Given: Environment variables for several fields, one of them malformed
// When: ApplyEnv is called
// Then: Valid values are applied and the malformed one is ignored
func TestApplyEnv(t *testing.T) {
	// Arrange
	t.Setenv("MODELJOBS_NAME", "from-env")
	t.Setenv("MODELJOBS_MAX_WORKERS", "16")
	t.Setenv("MODELJOBS_MIN_WORKERS", "not-a-number")
	t.Setenv("MODELJOBS_SHUTDOWN_TIMEOUT", "3s")
	t.Setenv("MODELJOBS_METRICS_ENABLED", "true")
	cfg := Default()

	// Act
	cfg.ApplyEnv()

	// Assert
	if cfg.Name != "from-env" {
		t.Errorf("Name: got = %q, want = %q", cfg.Name, "from-env")
	}
	if cfg.Pool.MaxWorkers != 16 {
		t.Errorf("Pool.MaxWorkers: got = %d, want = %d", cfg.Pool.MaxWorkers, 16)
	}
	if cfg.Pool.MinWorkers != 1 {
		t.Errorf("Pool.MinWorkers: got = %d, want unchanged %d", cfg.Pool.MinWorkers, 1)
	}
	if cfg.ShutdownTimeout != 3*time.Second {
		t.Errorf("ShutdownTimeout: got = %v, want = %v", cfg.ShutdownTimeout, 3*time.Second)
	}
	if !cfg.Metrics.Enabled {
		t.Error("Metrics.Enabled: got = false, want = true")
	}
}

// TestValidate_ReportsAllErrors verifies every invalid field is reported
func TestValidate_ReportsAllErrors(t *testing.T) {
	// Arrange
	cfg := Default()
	cfg.Name = ""
	cfg.Pool.MinWorkers = 4
	cfg.Pool.MaxWorkers = 2
	cfg.Log.Format = "xml"

	// Act
	err := cfg.Validate()

	// Assert
	if err == nil {
		t.Fatal("Validate() = nil, want error")
	}
	for _, want := range []string{"name", "exceeds", "log.format"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("Validate() = %q, want it to mention %q", err.Error(), want)
		}
	}
}

// TestYAML_RoundTrip verifies the rendered YAML loads back to the same values
func TestYAML_RoundTrip(t *testing.T) {
	// Arrange
	cfg := Default()
	cfg.Pool.MaxWorkers = 32
	cfg.Pool.KeepAlive = 45 * time.Second

	// Act
	out, err := cfg.YAML()
	if err != nil {
		t.Fatalf("YAML() error = %v", err)
	}
	path := filepath.Join(t.TempDir(), "out.yaml")
	if err := os.WriteFile(path, out, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	// Assert
	if *loaded != *cfg {
		t.Errorf("round trip: got = %+v, want = %+v", *loaded, *cfg)
	}
}
