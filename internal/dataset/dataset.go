// Package dataset produces synthetic token batches for benchmarking.
package dataset

import (
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"
)

// DefaultVocabSize is the exclusive upper bound of sampled token ids (GPT-2 BPE).
const DefaultVocabSize = 50256

// ErrExhausted is returned by Next once every batch has been produced.
var ErrExhausted = errors.New("dataset: source exhausted")

// TokenBatch is one input sequence (batch size 1).
type TokenBatch []int

// Source is a finite, restartable sequence of random token batches.
// Batches are sampled lazily on each Next call.
type Source struct {
	mu        sync.Mutex
	count     int
	seqLen    int
	vocab     int
	seed      int64
	rng       *rand.Rand
	delivered int
}

// New builds a source of count batches with seqLen tokens each.
// A zero seed draws one from the clock.
func New(count, seqLen, vocab int, seed int64) (*Source, error) {
	if count <= 0 {
		return nil, fmt.Errorf("dataset: count must be positive, got %d", count)
	}
	if seqLen <= 0 {
		return nil, fmt.Errorf("dataset: sequence length must be positive, got %d", seqLen)
	}
	if vocab <= 0 {
		return nil, fmt.Errorf("dataset: vocabulary size must be positive, got %d", vocab)
	}
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Source{
		count:  count,
		seqLen: seqLen,
		vocab:  vocab,
		seed:   seed,
		rng:    rand.New(rand.NewSource(seed)),
	}, nil
}

// Next returns a fresh batch, or ErrExhausted after Len batches.
func (s *Source) Next() (TokenBatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.delivered >= s.count {
		return nil, ErrExhausted
	}
	batch := make(TokenBatch, s.seqLen)
	for i := range batch {
		batch[i] = s.rng.Intn(s.vocab)
	}
	s.delivered++
	return batch, nil
}

// Reset rewinds the source. The same seed replays the same batches.
func (s *Source) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delivered = 0
	s.rng = rand.New(rand.NewSource(s.seed))
}

// Len is the total number of batches the source yields per pass.
func (s *Source) Len() int { return s.count }

// SeqLen is the number of tokens per batch.
func (s *Source) SeqLen() int { return s.seqLen }

// Remaining is the number of batches left before exhaustion.
func (s *Source) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count - s.delivered
}
