package config

import (
	"testing"
	"time"
)

func TestLoadPipelineDefaults(t *testing.T) {
	t.Setenv("PIPELINE_AUTO_COMMIT_THRESHOLD", "")
	t.Setenv("PIPELINE_TOP_K_CANDIDATES", "")
	t.Setenv("PIPELINE_CONFIRMATION_TTL", "")
	t.Setenv("PIPELINE_SWEEP_INTERVAL", "")
	t.Setenv("AI_BACKEND_ORDER", "")

	cfg := Load()
	if cfg.AutoCommitThreshold != 0.8 {
		t.Fatalf("expected default auto-commit threshold 0.8, got %v", cfg.AutoCommitThreshold)
	}
	if cfg.TopKCandidates != 3 {
		t.Fatalf("expected default top-k 3, got %d", cfg.TopKCandidates)
	}
	if cfg.ConfirmationTTL != 300*time.Second {
		t.Fatalf("expected default confirmation ttl 300s, got %v", cfg.ConfirmationTTL)
	}
	if cfg.SweepInterval != 5*time.Second {
		t.Fatalf("expected default sweep interval 5s, got %v", cfg.SweepInterval)
	}
	if len(cfg.BackendOrder) != 2 || cfg.BackendOrder[0] != "gemini" || cfg.BackendOrder[1] != "openai" {
		t.Fatalf("expected default backend order [gemini openai], got %v", cfg.BackendOrder)
	}
}

func TestLoadParsesOverrides(t *testing.T) {
	t.Setenv("PIPELINE_AUTO_COMMIT_THRESHOLD", "0.65")
	t.Setenv("PIPELINE_CONFIRMATION_TTL", "90s")
	t.Setenv("ENGINE_JOB_MAX_ATTEMPTS", "5")
	t.Setenv("AI_BACKEND_ORDER", "openai, gemini ,")

	cfg := Load()
	if cfg.AutoCommitThreshold != 0.65 {
		t.Fatalf("expected threshold override 0.65, got %v", cfg.AutoCommitThreshold)
	}
	if cfg.ConfirmationTTL != 90*time.Second {
		t.Fatalf("expected ttl override 90s, got %v", cfg.ConfirmationTTL)
	}
	if cfg.JobMaxAttempts != 5 {
		t.Fatalf("expected max attempts 5, got %d", cfg.JobMaxAttempts)
	}
	if len(cfg.BackendOrder) != 2 || cfg.BackendOrder[0] != "openai" {
		t.Fatalf("expected trimmed backend order [openai gemini], got %v", cfg.BackendOrder)
	}
}

func TestLoadFallsBackOnBadValues(t *testing.T) {
	t.Setenv("PIPELINE_AUTO_COMMIT_THRESHOLD", "not-a-number")
	t.Setenv("PIPELINE_SWEEP_INTERVAL", "soon")

	cfg := Load()
	if cfg.AutoCommitThreshold != 0.8 {
		t.Fatalf("expected fallback threshold 0.8, got %v", cfg.AutoCommitThreshold)
	}
	if cfg.SweepInterval != 5*time.Second {
		t.Fatalf("expected fallback sweep interval 5s, got %v", cfg.SweepInterval)
	}
}
