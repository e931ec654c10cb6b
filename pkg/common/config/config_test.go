package config

import "testing"

func TestLoadClampsWorkers(t *testing.T) {
	t.Setenv("PIPELINE_WORKERS", "0")
	if got := Load().Workers; got != 1 {
		t.Fatalf("Workers = %d, want clamp to 1", got)
	}

	t.Setenv("PIPELINE_WORKERS", "-3")
	if got := Load().Workers; got != 1 {
		t.Fatalf("Workers = %d, want clamp to 1", got)
	}

	t.Setenv("PIPELINE_WORKERS", "4")
	if got := Load().Workers; got != 4 {
		t.Fatalf("Workers = %d, want 4", got)
	}
}
