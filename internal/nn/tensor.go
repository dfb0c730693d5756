package nn

import (
	"fmt"
	"math"
)

// Tensor is a dense row-major float32 array.
type Tensor struct {
	Shape []int
	Data  []float32
}

// NewTensor allocates a zeroed tensor.
func NewTensor(shape ...int) *Tensor {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return &Tensor{Shape: append([]int(nil), shape...), Data: make([]float32, n)}
}

// Len is the number of elements.
func (t *Tensor) Len() int { return len(t.Data) }

// Clone returns a deep copy.
func (t *Tensor) Clone() *Tensor {
	return &Tensor{Shape: append([]int(nil), t.Shape...), Data: append([]float32(nil), t.Data...)}
}

func (t *Tensor) String() string { return fmt.Sprintf("Tensor%v", t.Shape) }

// MaxAbsDiff returns the largest element-wise absolute difference, or +Inf
// when the shapes differ.
func MaxAbsDiff(a, b *Tensor) float64 {
	if len(a.Shape) != len(b.Shape) || len(a.Data) != len(b.Data) {
		return math.Inf(1)
	}
	for i := range a.Shape {
		if a.Shape[i] != b.Shape[i] {
			return math.Inf(1)
		}
	}
	var worst float64
	for i := range a.Data {
		if d := math.Abs(float64(a.Data[i] - b.Data[i])); d > worst {
			worst = d
		}
	}
	return worst
}
