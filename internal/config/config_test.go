package config

import "testing"

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("OPAL_DATA_DIR", "")
	t.Setenv("OPAL_NATS_URL", "")
	t.Setenv("OPAL_MAX_DEPTH", "")
	t.Setenv("OPAL_MAX_NODES", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DataDir == "" {
		t.Error("DataDir should default to a home subdirectory")
	}
	if cfg.MaxTraversalDepth != 5 {
		t.Errorf("MaxTraversalDepth = %d, want 5", cfg.MaxTraversalDepth)
	}
	if cfg.MaxTraversalNodes != 500 {
		t.Errorf("MaxTraversalNodes = %d, want 500", cfg.MaxTraversalNodes)
	}
	if cfg.NATSURL != "" {
		t.Errorf("NATSURL = %q, want empty", cfg.NATSURL)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("OPAL_DATA_DIR", "/tmp/opal-test")
	t.Setenv("OPAL_NATS_URL", "nats://localhost:4222")
	t.Setenv("OPAL_MAX_DEPTH", "3")
	t.Setenv("OPAL_MAX_NODES", "100")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DataDir != "/tmp/opal-test" {
		t.Errorf("DataDir = %q", cfg.DataDir)
	}
	if cfg.NATSURL != "nats://localhost:4222" {
		t.Errorf("NATSURL = %q", cfg.NATSURL)
	}
	if cfg.MaxTraversalDepth != 3 {
		t.Errorf("MaxTraversalDepth = %d", cfg.MaxTraversalDepth)
	}
	if cfg.MaxTraversalNodes != 100 {
		t.Errorf("MaxTraversalNodes = %d", cfg.MaxTraversalNodes)
	}
}
