// Package nn holds the numeric kernels of a GPT-2 decoder block.
//
// All kernels operate on row-major slices. Every output element is reduced by
// exactly one goroutine in a fixed order, so results do not depend on the
// number of workers or on the tile width chosen for MatMul.
package nn

import (
	"math"
	"runtime"
	"sync"

	"golang.org/x/exp/constraints"
)

// parallelFor splits [0, n) into contiguous chunks, one per worker.
func parallelFor(n int, fn func(lo, hi int)) {
	workers := runtime.GOMAXPROCS(0)
	if workers > n {
		workers = n
	}
	if workers <= 1 {
		fn(0, n)
		return
	}
	chunk := (n + workers - 1) / workers
	var wg sync.WaitGroup
	for lo := 0; lo < n; lo += chunk {
		hi := lo + chunk
		if hi > n {
			hi = n
		}
		wg.Add(1)
		go func(lo, hi int) {
			defer wg.Done()
			fn(lo, hi)
		}(lo, hi)
	}
	wg.Wait()
}

// Acc adds b into a element-wise.
func Acc[T constraints.Float](a, b []T) {
	for i := range a {
		a[i] += b[i]
	}
}

// LayerNorm normalizes each row of x (rows of width len(gamma)) into o.
func LayerNorm[T constraints.Float](o, x, gamma, beta []T, eps T) {
	width := len(gamma)
	rows := len(x) / width
	parallelFor(rows, func(lo, hi int) {
		for r := lo; r < hi; r++ {
			row := x[r*width : (r+1)*width]
			out := o[r*width : (r+1)*width]
			var mean T
			for _, v := range row {
				mean += v
			}
			mean /= T(width)
			var variance T
			for _, v := range row {
				d := v - mean
				variance += d * d
			}
			variance /= T(width)
			inv := T(1 / math.Sqrt(float64(variance+eps)))
			for i, v := range row {
				out[i] = (v-mean)*inv*gamma[i] + beta[i]
			}
		}
	})
}

// MatMul computes o (rows,n) = x (rows,k) @ w (k,n) + b (n,).
// tile is the column block width; it changes memory access only, not results.
func MatMul[T constraints.Float](o, x, w, b []T, k, n, tile int) {
	if tile <= 0 || tile > n {
		tile = n
	}
	rows := len(x) / k
	parallelFor(rows, func(lo, hi int) {
		for r := lo; r < hi; r++ {
			xr := x[r*k : (r+1)*k]
			or := o[r*n : (r+1)*n]
			if b != nil {
				copy(or, b)
			} else {
				clear(or)
			}
			for j0 := 0; j0 < n; j0 += tile {
				j1 := j0 + tile
				if j1 > n {
					j1 = n
				}
				blk := or[j0:j1]
				for kk, xv := range xr {
					wr := w[kk*n+j0 : kk*n+j1]
					for j := range blk {
						blk[j] += xv * wr[j]
					}
				}
			}
		}
	})
}

// GELU applies the tanh approximation used by GPT-2, in place.
func GELU[T constraints.Float](x []T) {
	const c = 0.7978845608028654 // sqrt(2/pi)
	parallelFor(len(x), func(lo, hi int) {
		for i := lo; i < hi; i++ {
			v := float64(x[i])
			x[i] = T(0.5 * v * (1 + math.Tanh(c*(v+0.044715*v*v*v))))
		}
	})
}

// SoftMax normalizes x in place.
func SoftMax[T constraints.Float](x []T) {
	max := x[0]
	for _, v := range x {
		if v > max {
			max = v
		}
	}
	var sum T
	for i := range x {
		x[i] = T(math.Exp(float64(x[i] - max)))
		sum += x[i]
	}
	for i := range x {
		x[i] /= sum
	}
}

// CausalSelfAttention computes multi-head attention over a fused qkv buffer
// of shape (seq, 3*dim) into o (seq, dim). att is scratch of size heads*seq*seq
// or larger; heads run concurrently, each on its own scratch rows.
func CausalSelfAttention[T constraints.Float](o, qkv, att []T, seq, dim, heads int) {
	headDim := dim / heads
	scale := T(1 / math.Sqrt(float64(headDim)))
	stride := 3 * dim

	var wg sync.WaitGroup
	wg.Add(heads)
	for h := 0; h < heads; h++ {
		go func(h int) {
			defer wg.Done()
			qOff, kOff, vOff := h*headDim, dim+h*headDim, 2*dim+h*headDim
			scores := att[h*seq*seq : (h+1)*seq*seq]
			for t := 0; t < seq; t++ {
				q := qkv[t*stride+qOff : t*stride+qOff+headDim]
				row := scores[t*seq : t*seq+t+1]
				for s := 0; s <= t; s++ {
					k := qkv[s*stride+kOff : s*stride+kOff+headDim]
					var dot T
					for i := range q {
						dot += q[i] * k[i]
					}
					row[s] = dot * scale
				}
				SoftMax(row)

				out := o[t*dim+h*headDim : t*dim+(h+1)*headDim]
				clear(out)
				for s, a := range row {
					v := qkv[s*stride+vOff : s*stride+vOff+headDim]
					for i := range out {
						out[i] += a * v[i]
					}
				}
			}
		}(h)
	}
	wg.Wait()
}
