package main

import (
	"testing"

	"blockmend/internal/config"
)

func TestResolveTargets(t *testing.T) {
	cfg = config.Default()

	if _, err := resolveTargets(nil); err == nil {
		t.Error("no args and no configured targets should error")
	}

	cfg.Targets = []string{"app/services"}
	got, err := resolveTargets(nil)
	if err != nil {
		t.Fatalf("resolveTargets: %v", err)
	}
	if len(got) != 1 || got[0] != "app/services" {
		t.Errorf("configured targets not used: %v", got)
	}

	got, err = resolveTargets([]string{"x.py"})
	if err != nil {
		t.Fatalf("resolveTargets: %v", err)
	}
	if len(got) != 1 || got[0] != "x.py" {
		t.Errorf("command-line args should win over config: %v", got)
	}
}

func TestNewRepairerBadSignature(t *testing.T) {
	cfg = config.Default()
	cfg.SignaturePath = "/does/not/exist.yaml"
	if _, _, err := newRepairer(); err == nil {
		t.Error("missing signature file should error")
	}
}

func TestNewRepairerDefaults(t *testing.T) {
	cfg = config.Default()
	cfg.DryRun = true
	r, sig, err := newRepairer()
	if err != nil {
		t.Fatalf("newRepairer: %v", err)
	}
	if !r.DryRun {
		t.Error("DryRun not propagated to repairer")
	}
	if sig.SpecificException != "AttributeError" {
		t.Errorf("default signature not used: %+v", sig)
	}
}
