// internal/models/models.go
// Package models holds the registry of decoder model shapes that can be benchmarked.
package models

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
)

// Config describes the structural shape of a GPT-style decoder.
// It says nothing about how the model is executed; stream counts and other
// execution knobs belong to the executor that runs it.
type Config struct {
	EmbedDim  int `json:"embedDim"`
	NumHeads  int `json:"numHeads"`
	NumLayers int `json:"numLayers"`
}

// presets mirrors the published GPT-2 and GPT-3 layer shapes.
var presets = map[string]Config{
	"gpt2_small":  {EmbedDim: 768, NumHeads: 12, NumLayers: 12},
	"gpt2_medium": {EmbedDim: 1024, NumHeads: 16, NumLayers: 24},
	"gpt2_large":  {EmbedDim: 1280, NumHeads: 20, NumLayers: 36},
	"gpt2_xl":     {EmbedDim: 1600, NumHeads: 25, NumLayers: 48},
	"gpt3_6.7b":   {EmbedDim: 4096, NumHeads: 32, NumLayers: 32},
	"gpt3_13b":    {EmbedDim: 5200, NumHeads: 40, NumLayers: 40},
	"gpt3_175b":   {EmbedDim: 12288, NumHeads: 96, NumLayers: 96},
}

// DefaultModel is the preset used when none is configured.
const DefaultModel = "gpt2_xl"

// Lookup returns the preset registered under name.
func Lookup(name string) (Config, error) {
	cfg, ok := presets[strings.TrimSpace(name)]
	if !ok {
		return Config{}, &UnknownModelError{Name: name, Known: Names()}
	}
	return cfg, nil
}

// Names returns the registered preset names in sorted order.
func Names() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate checks the structural invariants of the shape.
func (c Config) Validate() error {
	switch {
	case c.EmbedDim <= 0:
		return &ConfigurationError{Field: "embedDim", Value: c.EmbedDim, Reason: "must be positive"}
	case c.NumHeads <= 0:
		return &ConfigurationError{Field: "numHeads", Value: c.NumHeads, Reason: "must be positive"}
	case c.NumLayers <= 0:
		return &ConfigurationError{Field: "numLayers", Value: c.NumLayers, Reason: "must be positive"}
	case c.EmbedDim%c.NumHeads != 0:
		return &ConfigurationError{
			Field:  "embedDim",
			Value:  c.EmbedDim,
			Reason: fmt.Sprintf("must be divisible by numHeads (%d)", c.NumHeads),
		}
	}
	return nil
}

// HeadDim is the per-head width.
func (c Config) HeadDim() int { return c.EmbedDim / c.NumHeads }

// FFNDim is the hidden width of the feed-forward sublayer (4x expansion, as in GPT-2).
func (c Config) FFNDim() int { return 4 * c.EmbedDim }

// ParamsPerLayer counts the float parameters of one transformer block:
// two layer norms, the fused QKV projection, the output projection and the MLP.
func (c Config) ParamsPerLayer() int {
	e := c.EmbedDim
	f := c.FFNDim()
	return 2*e + // ln1
		e*3*e + 3*e + // qkv
		e*e + e + // attention output
		2*e + // ln2
		e*f + f + // fc
		f*e + e // proj
}

// TotalParams counts block parameters over all layers (embeddings excluded).
func (c Config) TotalParams() int {
	return c.ParamsPerLayer() * c.NumLayers
}

// ListModels writes a styled summary of every registered preset.
func ListModels(out io.Writer) {
	nameStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("86")).Bold(true)
	detailStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("245"))

	for _, name := range Names() {
		cfg := presets[name]
		fmt.Fprintln(out, nameStyle.Render(name))
		fmt.Fprintln(out, detailStyle.Render(fmt.Sprintf(
			"  embed=%d heads=%d layers=%d block params=%s (%s fp32)",
			cfg.EmbedDim, cfg.NumHeads, cfg.NumLayers,
			humanize.Comma(int64(cfg.TotalParams())),
			humanize.Bytes(uint64(cfg.TotalParams())*4),
		)))
	}
}
