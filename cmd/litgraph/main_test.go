package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/OFFIS-RIT/litgraph/internal/config"
)

func isolatedEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"DATABASE_URL", "NEO4J_URI", "AWS_BUCKET", "REDIS_URL", "CITATION_SNAPSHOT",
		"OTEL_EXPORTER_OTLP_ENDPOINT", "OTEL_STDOUT", "LEASE_ENABLED", "AI_ADAPTER",
	} {
		t.Setenv(k, "")
	}
	t.Setenv("STORE_BACKEND", "memory")
}

func TestRunUsageErrors(t *testing.T) {
	isolatedEnv(t)
	cases := map[string][]string{
		"no command":       nil,
		"unknown command":  {"crawl"},
		"run without seed": {"run", "-limit", "3"},
		"run zero limit":   {"run", "-seed", "p1"},
		"validate no id":   {"validate"},
		"bad flag":         {"run", "-seed", "p1", "-limit", "x"},
	}
	for name, args := range cases {
		var stdout, stderr bytes.Buffer
		if code := run(context.Background(), args, &stdout, &stderr); code != 2 {
			t.Errorf("%s: exit code %d, want 2 (stderr %q)", name, code, stderr.String())
		}
	}
}

func TestValidateUnknownPaperFails(t *testing.T) {
	isolatedEnv(t)
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"validate", "-paper", "missing"}, &stdout, &stderr)
	if code != 1 {
		t.Fatalf("exit code %d, want 1", code)
	}
	if !strings.Contains(stderr.String(), "validate missing") {
		t.Fatalf("stderr = %q", stderr.String())
	}
	if stdout.Len() != 0 {
		t.Fatalf("nothing should be printed on stdout, got %q", stdout.String())
	}
}

func TestRunOptionsOverrideConfig(t *testing.T) {
	var stderr bytes.Buffer
	opts, err := parseRunFlags([]string{"-seed", "p1", "-limit", "4", "-workers", "2", "-timeout", "30s", "-snapshot", "graph.json"}, &stderr)
	if err != nil {
		t.Fatalf("parseRunFlags: %v", err)
	}

	cfg := config.Config{Pipeline: config.PipelineConfig{ParallelPapers: 8, PaperTimeout: time.Minute}}
	opts.apply(&cfg)
	if cfg.Pipeline.ParallelPapers != 2 || cfg.Pipeline.PaperTimeout != 30*time.Second {
		t.Fatalf("pipeline = %+v", cfg.Pipeline)
	}
	if cfg.Citation.SnapshotPath != "graph.json" {
		t.Fatalf("snapshot = %q", cfg.Citation.SnapshotPath)
	}

	opts, err = parseRunFlags([]string{"-seed", "p1", "-limit", "1"}, &stderr)
	if err != nil {
		t.Fatalf("parseRunFlags: %v", err)
	}
	cfg = config.Config{Pipeline: config.PipelineConfig{ParallelPapers: 8}}
	opts.apply(&cfg)
	if cfg.Pipeline.ParallelPapers != 8 {
		t.Fatalf("unset flags must keep the environment value")
	}
}
