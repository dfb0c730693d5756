// internal/models/models_test.go
package models

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestLookupPresets(t *testing.T) {
	cases := map[string]Config{
		"gpt2_small":  {EmbedDim: 768, NumHeads: 12, NumLayers: 12},
		"gpt2_medium": {EmbedDim: 1024, NumHeads: 16, NumLayers: 24},
		"gpt2_xl":     {EmbedDim: 1600, NumHeads: 25, NumLayers: 48},
		"gpt3_175b":   {EmbedDim: 12288, NumHeads: 96, NumLayers: 96},
	}
	for name, want := range cases {
		got, err := Lookup(name)
		if err != nil {
			t.Fatalf("Lookup(%q) error: %v", name, err)
		}
		if got != want {
			t.Fatalf("Lookup(%q) = %+v, want %+v", name, got, want)
		}
	}
}

func TestLookupUnknownModel(t *testing.T) {
	_, err := Lookup("gpt4_secret")
	var unknown *UnknownModelError
	if !errors.As(err, &unknown) {
		t.Fatalf("expected UnknownModelError, got %v", err)
	}
	if unknown.Name != "gpt4_secret" {
		t.Fatalf("unexpected name in error: %q", unknown.Name)
	}
	if !strings.Contains(err.Error(), "gpt2_small") {
		t.Fatalf("expected known names in message, got %q", err.Error())
	}
}

func TestAllPresetsAreValid(t *testing.T) {
	for _, name := range Names() {
		cfg, err := Lookup(name)
		if err != nil {
			t.Fatalf("Lookup(%q): %v", name, err)
		}
		if err := cfg.Validate(); err != nil {
			t.Fatalf("preset %q invalid: %v", name, err)
		}
	}
}

func TestValidateRejectsBadShapes(t *testing.T) {
	cases := map[string]Config{
		"zero embed":     {EmbedDim: 0, NumHeads: 1, NumLayers: 1},
		"zero heads":     {EmbedDim: 8, NumHeads: 0, NumLayers: 1},
		"zero layers":    {EmbedDim: 8, NumHeads: 2, NumLayers: 0},
		"not divisible":  {EmbedDim: 10, NumHeads: 3, NumLayers: 1},
		"negative embed": {EmbedDim: -4, NumHeads: 2, NumLayers: 1},
	}
	for name, cfg := range cases {
		var cfgErr *ConfigurationError
		if err := cfg.Validate(); !errors.As(err, &cfgErr) {
			t.Fatalf("%s: expected ConfigurationError, got %v", name, err)
		}
	}
}

func TestParamsPerLayer(t *testing.T) {
	cfg := Config{EmbedDim: 768, NumHeads: 12, NumLayers: 12}
	// 12*E^2 + 13*E for a GPT-2 block.
	want := 12*768*768 + 13*768
	if got := cfg.ParamsPerLayer(); got != want {
		t.Fatalf("ParamsPerLayer = %d, want %d", got, want)
	}
	if cfg.HeadDim() != 64 {
		t.Fatalf("HeadDim = %d", cfg.HeadDim())
	}
	if cfg.TotalParams() != want*12 {
		t.Fatalf("TotalParams = %d", cfg.TotalParams())
	}
}

func TestListModelsIncludesEveryPreset(t *testing.T) {
	var buf bytes.Buffer
	ListModels(&buf)
	out := buf.String()
	for _, name := range Names() {
		if !strings.Contains(out, name) {
			t.Fatalf("expected %q in listing:\n%s", name, out)
		}
	}
}
