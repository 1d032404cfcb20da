// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package compress

import (
	"fmt"
	"sort"
)

// StrategyFrequencyDense is the only token optimisation strategy: remap
// dictionary indices to dense ranks ordered by descending frequency.
const StrategyFrequencyDense = "frequency-dense"

// Plan maps dictionary indices onto a dense alphabet before entropy
// coding. It is recorded in the archive's compression extras so the
// decoder can restore the original indices.
type Plan struct {
	Strategy        string `json:"strategy"`
	DenseToOriginal []int  `json:"dense_to_original"`

	originalToDense map[int]int
}

// BuildPlan ranks the distinct tokens by descending count, breaking
// ties by index. It returns nil for an empty stream.
func BuildPlan(tokens []int) *Plan {
	if len(tokens) == 0 {
		return nil
	}
	counts := make(map[int]int)
	for _, token := range tokens {
		counts[token]++
	}
	ordered := make([]int, 0, len(counts))
	for token := range counts {
		ordered = append(ordered, token)
	}
	sort.Slice(ordered, func(a, b int) bool {
		if counts[ordered[a]] != counts[ordered[b]] {
			return counts[ordered[a]] > counts[ordered[b]]
		}
		return ordered[a] < ordered[b]
	})
	plan := &Plan{Strategy: StrategyFrequencyDense, DenseToOriginal: ordered}
	plan.index()
	return plan
}

func (p *Plan) index() {
	p.originalToDense = make(map[int]int, len(p.DenseToOriginal))
	for dense, original := range p.DenseToOriginal {
		p.originalToDense[original] = dense
	}
}

// AlphabetSize is the size of the dense alphabet, at least one.
func (p *Plan) AlphabetSize() int {
	return max(1, len(p.DenseToOriginal))
}

// Apply maps original tokens to dense ranks.
func (p *Plan) Apply(tokens []int) ([]int, error) {
	if p.originalToDense == nil {
		p.index()
	}
	dense := make([]int, len(tokens))
	for position, token := range tokens {
		rank, ok := p.originalToDense[token]
		if !ok {
			return nil, fmt.Errorf("token %d at position %d is not covered by the optimisation plan", token, position)
		}
		dense[position] = rank
	}
	return dense, nil
}

// Restore maps dense ranks back to original tokens.
func (p *Plan) Restore(dense []int) ([]int, error) {
	tokens := make([]int, len(dense))
	for position, rank := range dense {
		if rank < 0 || rank >= len(p.DenseToOriginal) {
			return nil, fmt.Errorf("dense token %d at position %d outside plan of %d entries",
				rank, position, len(p.DenseToOriginal))
		}
		tokens[position] = p.DenseToOriginal[rank]
	}
	return tokens, nil
}

// Validate checks a plan read from an archive: a known strategy and a
// duplicate-free mapping into an alphabet of alphabetSize symbols.
func (p *Plan) Validate(alphabetSize int) error {
	if p.Strategy != StrategyFrequencyDense {
		return fmt.Errorf("unknown optimisation strategy %q", p.Strategy)
	}
	seen := make(map[int]bool, len(p.DenseToOriginal))
	for _, original := range p.DenseToOriginal {
		if original < 0 || original >= alphabetSize {
			return fmt.Errorf("optimisation plan maps to index %d outside dictionary of %d", original, alphabetSize)
		}
		if seen[original] {
			return fmt.Errorf("optimisation plan maps index %d twice", original)
		}
		seen[original] = true
	}
	p.index()
	return nil
}
