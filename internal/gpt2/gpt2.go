// Package gpt2 holds synthetic GPT-2 weights and the per-layer computations
// an executor schedules onto device streams.
//
// Block weights live in one contiguous host buffer per layer so a layer can
// be staged to the device with a single copy; Block views a staged buffer.
package gpt2

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/mwiater/prefetchbench/internal/models"
	"github.com/mwiater/prefetchbench/internal/nn"
)

const (
	initStd = 0.02
	normEps = 1e-5
)

// Model is a GPT-2 decoder stack with randomly initialized weights.
type Model struct {
	cfg    models.Config
	seqLen int
	vocab  int

	wte    []float32 // (vocab, dim)
	wpe    []float32 // (seqLen, dim)
	lnfG   []float32 // (dim,)
	lnfB   []float32 // (dim,)
	layers [][]float32
}

// New builds a model for sequences of seqLen tokens drawn from [0, vocab).
// A zero seed draws one from the clock.
func New(cfg models.Config, seqLen, vocab int, seed int64) (*Model, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if seqLen <= 0 {
		return nil, &models.ConfigurationError{Field: "seqLen", Value: seqLen, Reason: "must be positive"}
	}
	if vocab <= 0 {
		return nil, &models.ConfigurationError{Field: "vocabSize", Value: vocab, Reason: "must be positive"}
	}
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	dim := cfg.EmbedDim
	m := &Model{
		cfg:    cfg,
		seqLen: seqLen,
		vocab:  vocab,
		wte:    make([]float32, vocab*dim),
		wpe:    make([]float32, seqLen*dim),
		lnfG:   ones(dim),
		lnfB:   make([]float32, dim),
		layers: make([][]float32, cfg.NumLayers),
	}

	var wg sync.WaitGroup
	wg.Add(2 + cfg.NumLayers)
	go func() { defer wg.Done(); fillNormal(m.wte, seed) }()
	go func() { defer wg.Done(); fillNormal(m.wpe, seed+1) }()
	for l := range m.layers {
		go func(l int) {
			defer wg.Done()
			m.layers[l] = m.newLayer(seed + 2 + int64(l))
		}(l)
	}
	wg.Wait()
	return m, nil
}

func ones(n int) []float32 {
	s := make([]float32, n)
	for i := range s {
		s[i] = 1
	}
	return s
}

func fillNormal(s []float32, seed int64) {
	rng := rand.New(rand.NewSource(seed))
	for i := range s {
		s[i] = float32(rng.NormFloat64() * initStd)
	}
}

func (m *Model) newLayer(seed int64) []float32 {
	buf := make([]float32, m.cfg.ParamsPerLayer())
	b := m.View(buf)
	for _, w := range [][]float32{b.WQKV, b.WO, b.WFC, b.WProj} {
		fillNormal(w, seed)
		seed += 1 << 20
	}
	copy(b.LN1G, ones(len(b.LN1G)))
	copy(b.LN2G, ones(len(b.LN2G)))
	return buf
}

// Config returns the model shape.
func (m *Model) Config() models.Config { return m.cfg }

// SeqLen is the sequence length the model was built for.
func (m *Model) SeqLen() int { return m.seqLen }

// VocabSize is the exclusive upper bound of accepted token ids.
func (m *Model) VocabSize() int { return m.vocab }

// NumLayers is the depth of the stack.
func (m *Model) NumLayers() int { return m.cfg.NumLayers }

// LayerLen is the number of floats in one layer's weight buffer.
func (m *Model) LayerLen() int { return m.cfg.ParamsPerLayer() }

// HostLayer returns the host-resident weights of layer l. Callers must not modify it.
func (m *Model) HostLayer(l int) []float32 { return m.layers[l] }

// OutputShape is the shape of the final hidden state.
func (m *Model) OutputShape() []int { return []int{m.seqLen, m.cfg.EmbedDim} }

// Block is a view of one layer's weights.
type Block struct {
	LN1G, LN1B []float32
	WQKV, BQKV []float32
	WO, BO     []float32
	LN2G, LN2B []float32
	WFC, BFC   []float32
	WProj      []float32
	BProj      []float32
}

// View slices a layer-sized buffer into named weights.
func (m *Model) View(buf []float32) Block {
	e, f := m.cfg.EmbedDim, m.cfg.FFNDim()
	if len(buf) < m.LayerLen() {
		panic(fmt.Sprintf("gpt2: layer buffer has %d floats, need %d", len(buf), m.LayerLen()))
	}
	off := 0
	take := func(n int) []float32 {
		s := buf[off : off+n : off+n]
		off += n
		return s
	}
	return Block{
		LN1G: take(e), LN1B: take(e),
		WQKV: take(e * 3 * e), BQKV: take(3 * e),
		WO: take(e * e), BO: take(e),
		LN2G: take(e), LN2B: take(e),
		WFC: take(e * f), BFC: take(f),
		WProj: take(f * e), BProj: take(e),
	}
}

// Workspace holds the activations of one forward pass. Buffers are allocated
// on first use.
type Workspace struct {
	X   []float32 // (seq, dim) residual stream
	H   []float32 // (seq, dim) normalized input
	QKV []float32 // (seq, 3*dim)
	Att []float32 // (heads, seq, seq)
	A   []float32 // (seq, dim) attention output
	F   []float32 // (seq, 4*dim)
	P   []float32 // (seq, dim) projection output
}

func (ws *Workspace) ensure(m *Model) {
	if ws.X != nil {
		return
	}
	t, e, f, h := m.seqLen, m.cfg.EmbedDim, m.cfg.FFNDim(), m.cfg.NumHeads
	ws.X = make([]float32, t*e)
	ws.H = make([]float32, t*e)
	ws.QKV = make([]float32, t*3*e)
	ws.Att = make([]float32, h*t*t)
	ws.A = make([]float32, t*e)
	ws.F = make([]float32, t*f)
	ws.P = make([]float32, t*e)
}

// WorkspaceBytes reports the activation footprint of one forward pass.
func WorkspaceBytes(cfg models.Config, seqLen int) int64 {
	t, e, f, h := int64(seqLen), int64(cfg.EmbedDim), int64(cfg.FFNDim()), int64(cfg.NumHeads)
	return 4 * (4*t*e + t*3*e + h*t*t + t*f)
}

// WeightBytes reports the host memory New allocates for weights.
func WeightBytes(cfg models.Config, seqLen, vocab int) int64 {
	e := int64(cfg.EmbedDim)
	layers := int64(cfg.NumLayers) * int64(cfg.ParamsPerLayer())
	return 4 * (int64(vocab)*e + int64(seqLen)*e + 2*e + layers)
}

// Footprint is the memory a model needs with stagingSlots layer-sized
// staging buffers: weights, staging and one activation workspace.
// It is computed from the shape alone, so it can be checked before New.
func Footprint(cfg models.Config, seqLen, vocab, stagingSlots int) int64 {
	staging := 4 * int64(stagingSlots) * int64(cfg.ParamsPerLayer())
	return WeightBytes(cfg, seqLen, vocab) + staging + WorkspaceBytes(cfg, seqLen)
}

// Embed writes token plus position embeddings of tokens into ws.X.
func (m *Model) Embed(ws *Workspace, tokens []int) error {
	if len(tokens) != m.seqLen {
		return fmt.Errorf("gpt2: batch has %d tokens, model expects %d", len(tokens), m.seqLen)
	}
	ws.ensure(m)
	e := m.cfg.EmbedDim
	for t, tok := range tokens {
		if tok < 0 || tok >= m.vocab {
			return fmt.Errorf("gpt2: token %d at position %d outside vocabulary [0,%d)", tok, t, m.vocab)
		}
		row := ws.X[t*e : (t+1)*e]
		copy(row, m.wte[tok*e:(tok+1)*e])
		nn.Acc(row, m.wpe[t*e:(t+1)*e])
	}
	return nil
}

// TileSelector picks a MatMul column tile for a problem shape.
type TileSelector interface {
	Select(key string, candidates []int, run func(choice int)) int
}

// tileCandidates lists MatMul column tiles; the first is the untuned default.
var tileCandidates = []int{64, 32, 128, 256}

func matmul(sel TileSelector, o, x, w, b []float32, rows, k, n int) {
	tile := tileCandidates[0]
	if sel != nil {
		key := fmt.Sprintf("matmul/%dx%dx%d", rows, k, n)
		tile = sel.Select(key, tileCandidates, func(c int) { nn.MatMul(o, x, w, b, k, n, c) })
	}
	nn.MatMul(o, x, w, b, k, n, tile)
}

// Forward runs one transformer block on ws.X in place using weights w.
func (m *Model) Forward(ws *Workspace, w Block, sel TileSelector) {
	ws.ensure(m)
	t, e, f := m.seqLen, m.cfg.EmbedDim, m.cfg.FFNDim()

	// attention sublayer
	nn.LayerNorm(ws.H, ws.X, w.LN1G, w.LN1B, normEps)
	matmul(sel, ws.QKV, ws.H, w.WQKV, w.BQKV, t, e, 3*e)
	nn.CausalSelfAttention(ws.A, ws.QKV, ws.Att, t, e, m.cfg.NumHeads)
	matmul(sel, ws.P, ws.A, w.WO, w.BO, t, e, e)
	nn.Acc(ws.X, ws.P)

	// feed-forward sublayer
	nn.LayerNorm(ws.H, ws.X, w.LN2G, w.LN2B, normEps)
	matmul(sel, ws.F, ws.H, w.WFC, w.BFC, t, e, f)
	nn.GELU(ws.F)
	matmul(sel, ws.P, ws.F, w.WProj, w.BProj, t, f, e)
	nn.Acc(ws.X, ws.P)
}

// FinalNorm applies the last layer norm of ws.X into out.
func (m *Model) FinalNorm(ws *Workspace, out []float32) {
	nn.LayerNorm(out, ws.X, m.lnfG, m.lnfB, normEps)
}
