// Package face compares face embeddings. The embedding itself is produced
// by an external pipeline; this package only decides whether two of them
// belong to the same person.
package face

import (
	"context"
	"errors"
	"fmt"
	"math"
)

// MaxDimensions bounds the size of an accepted embedding.
const MaxDimensions = 4096

var (
	// ErrDimensionMismatch is returned when the probe and the enrolled
	// embedding have different lengths.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	// ErrInvalidEmbedding is returned for empty, oversized or non-finite input.
	ErrInvalidEmbedding = errors.New("invalid embedding")
)

// Result is the outcome of one comparison. Score is for logs only.
type Result struct {
	Score  float64
	Passed bool
}

// Matcher decides whether probe matches enrolled.
type Matcher interface {
	Match(ctx context.Context, enrolled, probe []float32) (Result, error)
}

// CosineMatcher accepts a probe whose cosine similarity to the enrolled
// embedding is at least MinScore.
type CosineMatcher struct {
	MinScore float64
}

// NewCosineMatcher returns a CosineMatcher with the given threshold.
func NewCosineMatcher(minScore float64) *CosineMatcher {
	return &CosineMatcher{MinScore: minScore}
}

// Match implements Matcher.
func (m *CosineMatcher) Match(ctx context.Context, enrolled, probe []float32) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	if err := Validate(probe); err != nil {
		return Result{}, err
	}
	if len(enrolled) != len(probe) {
		return Result{}, fmt.Errorf("%w: enrolled %d, probe %d", ErrDimensionMismatch, len(enrolled), len(probe))
	}

	score := Cosine(enrolled, probe)
	return Result{Score: score, Passed: score >= m.MinScore}, nil
}

// Cosine returns the cosine similarity of a and b, or 0 when either has
// zero length or norm. a and b must have equal length.
func Cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// Validate checks that e can be stored or compared.
func Validate(e []float32) error {
	if len(e) == 0 || len(e) > MaxDimensions {
		return fmt.Errorf("%w: %d dimensions", ErrInvalidEmbedding, len(e))
	}
	for _, v := range e {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("%w: non-finite value", ErrInvalidEmbedding)
		}
	}
	return nil
}
