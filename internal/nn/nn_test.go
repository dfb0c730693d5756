package nn

import (
	"fmt"
	"math"
	"math/rand"
	"testing"
)

func almostEqual(a, b []float32, eps float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if math.Abs(float64(a[i]-b[i])) > eps {
			return false
		}
	}
	return true
}

func TestAcc(t *testing.T) {
	a := []float32{1, 2, 3, 0, -1}
	b := []float32{4, 5, 6, 0, 1}
	Acc(a, b)
	if a[0] != 5 || a[1] != 7 || a[2] != 9 || a[3] != 0 || a[4] != 0 {
		t.Errorf("Acc failed: %v", a)
	}
}

func TestSoftMax(t *testing.T) {
	tests := []struct {
		x   []float32
		exp []float32
	}{
		{x: []float32{1, 1, 2}, exp: []float32{0.21194156, 0.21194156, 0.57611686}},
		{x: []float32{0.2, 7, 13}, exp: []float32{2.7539384e-06, 0.0024726165, 0.9975247}},
	}
	for i, tc := range tests {
		t.Run(fmt.Sprint(i), func(t *testing.T) {
			SoftMax(tc.x)
			if !almostEqual(tc.x, tc.exp, 1e-6) {
				t.Errorf("got %v, want %v", tc.x, tc.exp)
			}
		})
	}
}

func TestLayerNorm(t *testing.T) {
	x := []float32{1, 2, 3, 4, 10, 10, 10, 10}
	gamma := []float32{1, 1, 1, 1}
	beta := []float32{0, 0, 0, 0}
	o := make([]float32, len(x))
	LayerNorm(o, x, gamma, beta, 1e-5)

	exp := []float32{-1.3416355, -0.44721183, 0.44721183, 1.3416355, 0, 0, 0, 0}
	if !almostEqual(o, exp, 1e-4) {
		t.Errorf("got %v, want %v", o, exp)
	}
}

func TestMatMul(t *testing.T) {
	// (2,3) @ (3,2) + b
	x := []float32{1, 2, 3, 4, 5, 6}
	w := []float32{1, 0, 0, 1, 1, 1}
	b := []float32{0.5, -0.5}
	o := make([]float32, 4)
	MatMul(o, x, w, b, 3, 2, 1)
	exp := []float32{4.5, 4.5, 10.5, 10.5}
	if !almostEqual(o, exp, 0) {
		t.Errorf("got %v, want %v", o, exp)
	}
}

func TestMatMulTileDoesNotChangeResult(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	const rows, k, n = 7, 33, 65
	x := make([]float32, rows*k)
	w := make([]float32, k*n)
	b := make([]float32, n)
	for _, s := range [][]float32{x, w, b} {
		for i := range s {
			s[i] = rng.Float32()*2 - 1
		}
	}
	ref := make([]float32, rows*n)
	MatMul(ref, x, w, b, k, n, n)
	for _, tile := range []int{1, 8, 16, 64, 128} {
		o := make([]float32, rows*n)
		MatMul(o, x, w, b, k, n, tile)
		if !almostEqual(o, ref, 0) {
			t.Fatalf("tile %d changed the result", tile)
		}
	}
}

func TestGELU(t *testing.T) {
	x := []float32{0, 1, -1}
	GELU(x)
	exp := []float32{0, 0.8411920, -0.1588080}
	if !almostEqual(x, exp, 1e-5) {
		t.Errorf("got %v, want %v", x, exp)
	}
}

func TestCausalSelfAttentionFirstTokenCopiesValue(t *testing.T) {
	// With one visible position the attention weight is 1 and the output is v.
	const seq, dim, heads = 2, 4, 2
	qkv := make([]float32, seq*3*dim)
	for i := range qkv {
		qkv[i] = float32(i%5) * 0.1
	}
	o := make([]float32, seq*dim)
	att := make([]float32, heads*seq*seq)
	CausalSelfAttention(o, qkv, att, seq, dim, heads)

	v0 := qkv[2*dim : 3*dim]
	if !almostEqual(o[:dim], v0, 1e-6) {
		t.Errorf("first token output %v, want %v", o[:dim], v0)
	}
	// Row sums of causal weights are 1.
	for h := 0; h < heads; h++ {
		row := att[h*seq*seq+seq : h*seq*seq+seq+2]
		if s := row[0] + row[1]; math.Abs(float64(s-1)) > 1e-6 {
			t.Errorf("head %d weights sum to %v", h, s)
		}
	}
}

func TestMaxAbsDiff(t *testing.T) {
	a := NewTensor(2, 2)
	b := a.Clone()
	b.Data[3] = 0.25
	if d := MaxAbsDiff(a, b); d != 0.25 {
		t.Errorf("MaxAbsDiff = %v", d)
	}
	if d := MaxAbsDiff(a, NewTensor(4)); !math.IsInf(d, 1) {
		t.Errorf("expected +Inf for shape mismatch, got %v", d)
	}
}
