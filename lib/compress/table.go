// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package compress

import (
	"encoding/binary"
	"sort"
)

// Precision bounds for rANS tables. The coder keeps its state in
// [2^24, 2^32) and renormalises one byte at a time, which leaves room
// for at most 16 bits of probability precision.
const (
	MinPrecisionBits     = 8
	MaxPrecisionBits     = 16
	DefaultPrecisionBits = 12
)

const (
	ransInitialState = uint64(1) << 31
	ransLowerBound   = uint64(1) << 24

	// maxFrequency bounds a single stored count so that scaling by the
	// table total cannot overflow.
	maxFrequency = 1 << 40
)

// Table is a normalised rANS frequency table. Frequencies sum to
// exactly 1<<PrecisionBits and every symbol has a frequency of at least
// one, so any symbol of the alphabet can be coded.
type Table struct {
	PrecisionBits int
	Frequencies   []int

	cumulative []uint32
	lookup     []uint16
}

// BuildTable counts symbols (each count starting at one) and scales the
// counts to the table precision.
func BuildTable(symbols []int, alphabetSize, precisionBits int) (*Table, error) {
	if alphabetSize <= 0 {
		return nil, errorf("rans", "alphabet size must be positive, got %d", alphabetSize)
	}
	counts := make([]int, alphabetSize)
	for index := range counts {
		counts[index] = 1
	}
	for _, symbol := range symbols {
		if symbol < 0 || symbol >= alphabetSize {
			return nil, errorf("rans", "symbol %d outside alphabet of %d", symbol, alphabetSize)
		}
		counts[symbol]++
	}
	return TableFromFrequencies(counts, precisionBits)
}

// TableFromFrequencies normalises arbitrary non-negative frequencies to
// the table precision. Frequencies that already sum to the table total
// with no zero entries are used unchanged.
func TableFromFrequencies(frequencies []int, precisionBits int) (*Table, error) {
	if precisionBits < MinPrecisionBits || precisionBits > MaxPrecisionBits {
		return nil, errorf("rans", "precision bits must be between %d and %d, got %d",
			MinPrecisionBits, MaxPrecisionBits, precisionBits)
	}
	if len(frequencies) == 0 {
		return nil, errorf("rans", "empty model")
	}
	target := 1 << precisionBits
	if len(frequencies) > target {
		return nil, errorf("rans", "alphabet of %d symbols does not fit %d-bit precision",
			len(frequencies), precisionBits)
	}
	total := 0
	exact := true
	for index, frequency := range frequencies {
		if frequency < 0 || frequency > maxFrequency {
			return nil, errorf("rans", "frequency %d for symbol %d out of range", frequency, index)
		}
		if frequency == 0 {
			exact = false
		}
		total += frequency
	}

	var normalised []int
	if exact && total == target {
		normalised = append([]int(nil), frequencies...)
	} else {
		normalised = scaleCounts(frequencies, total, target)
	}
	return newTable(normalised, precisionBits), nil
}

// scaleCounts maps counts onto target proportionally with a floor of
// one. The rounding remainder is added to the least frequent symbols
// first and removed from the most frequent first, with ties resolved by
// symbol order.
func scaleCounts(counts []int, total, target int) []int {
	scaled := make([]int, len(counts))
	sum := 0
	for index, count := range counts {
		value := 1
		if total > 0 {
			value = max(1, count*target/total)
		}
		scaled[index] = value
		sum += value
	}
	diff := target - sum
	if diff == 0 {
		return scaled
	}

	order := make([]int, len(counts))
	for index := range order {
		order[index] = index
	}
	if diff > 0 {
		sort.SliceStable(order, func(a, b int) bool { return counts[order[a]] < counts[order[b]] })
		for diff > 0 {
			for _, index := range order {
				if diff == 0 {
					break
				}
				scaled[index]++
				diff--
			}
		}
		return scaled
	}

	sort.SliceStable(order, func(a, b int) bool { return counts[order[a]] > counts[order[b]] })
	for diff < 0 {
		for _, index := range order {
			if diff == 0 {
				break
			}
			if scaled[index] > 1 {
				scaled[index]--
				diff++
			}
		}
	}
	return scaled
}

func newTable(frequencies []int, precisionBits int) *Table {
	table := &Table{
		PrecisionBits: precisionBits,
		Frequencies:   frequencies,
		cumulative:    make([]uint32, len(frequencies)),
		lookup:        make([]uint16, 1<<precisionBits),
	}
	running := 0
	for symbol, frequency := range frequencies {
		table.cumulative[symbol] = uint32(running)
		for offset := range frequency {
			table.lookup[running+offset] = uint16(symbol)
		}
		running += frequency
	}
	return table
}

// AlphabetSize returns the number of symbols the table can code.
func (t *Table) AlphabetSize() int { return len(t.Frequencies) }

// Encode codes symbols in reverse order, emitting renormalisation bytes
// as the state overflows, and appends the final 32-bit state in
// little-endian order.
func (t *Table) Encode(symbols []int) ([]byte, error) {
	precision := uint(t.PrecisionBits)
	state := ransInitialState
	output := make([]byte, 0, len(symbols)/2+4)
	for position := len(symbols) - 1; position >= 0; position-- {
		symbol := symbols[position]
		if symbol < 0 || symbol >= len(t.Frequencies) {
			return nil, errorf("rans", "symbol %d outside alphabet of %d", symbol, len(t.Frequencies))
		}
		frequency := uint64(t.Frequencies[symbol])
		limit := frequency << (32 - precision)
		for state >= limit {
			output = append(output, byte(state))
			state >>= 8
		}
		state = (state/frequency)<<precision + state%frequency + uint64(t.cumulative[symbol])
	}
	return binary.LittleEndian.AppendUint32(output, uint32(state)), nil
}

// Decode recovers count symbols from data produced by [Table.Encode].
// The stream must be consumed exactly and end in the initial state, so
// truncated, padded and corrupted streams are rejected.
func (t *Table) Decode(data []byte, count int) ([]int, error) {
	if count < 0 {
		return nil, errorf("rans", "negative symbol count %d", count)
	}
	if len(data) < 4 {
		return nil, errorf("rans", "encoded stream too short")
	}
	precision := uint(t.PrecisionBits)
	mask := uint64(1)<<precision - 1
	state := uint64(binary.LittleEndian.Uint32(data[len(data)-4:]))
	buffer := data[:len(data)-4]
	index := len(buffer) - 1

	symbols := make([]int, 0, min(count, 1<<20))
	for range count {
		slot := state & mask
		symbol := int(t.lookup[slot])
		if symbol >= len(t.Frequencies) {
			return nil, errorf("rans", "decoded symbol %d outside alphabet of %d", symbol, len(t.Frequencies))
		}
		symbols = append(symbols, symbol)
		state = uint64(t.Frequencies[symbol])*(state>>precision) + slot - uint64(t.cumulative[symbol])
		for state < ransLowerBound {
			if index < 0 {
				return nil, errorf("rans", "ran out of renormalisation bytes")
			}
			state = state<<8 | uint64(buffer[index])
			index--
		}
	}
	if index >= 0 {
		return nil, errorf("rans", "%d unconsumed renormalisation bytes", index+1)
	}
	if state != ransInitialState {
		return nil, errorf("rans", "final decoder state 0x%08x does not match the initial state", state)
	}
	return symbols, nil
}
