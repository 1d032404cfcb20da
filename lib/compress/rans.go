// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package compress

// maxAlphabetSize bounds alphabet sizes read from stored models before
// any table is allocated.
const maxAlphabetSize = 1 << MaxPrecisionBits

type ransBackend struct {
	precisionBits int
}

func newRANSBackend(options Options) (Backend, error) {
	precision := options.PrecisionBits
	if precision == 0 {
		precision = DefaultPrecisionBits
	}
	if precision < MinPrecisionBits || precision > MaxPrecisionBits {
		return nil, errorf(NameRANS, "precision bits must be between %d and %d, got %d",
			MinPrecisionBits, MaxPrecisionBits, precision)
	}
	return &ransBackend{precisionBits: precision}, nil
}

func (b *ransBackend) Name() string { return NameRANS }

func (b *ransBackend) BuildModel(tokens []int, alphabetSize int) (*Model, error) {
	table, err := BuildTable(tokens, alphabetSize, b.precisionBits)
	if err != nil {
		return nil, rename(err, NameRANS)
	}
	return &Model{PrecisionBits: table.PrecisionBits, Frequencies: table.Frequencies}, nil
}

func (b *ransBackend) Encode(tokens []int, model *Model) ([]byte, error) {
	table, err := b.tableFor(model)
	if err != nil {
		return nil, err
	}
	encoded, err := table.Encode(tokens)
	return encoded, rename(err, NameRANS)
}

func (b *ransBackend) Decode(data []byte, model *Model, count int) ([]int, error) {
	table, err := b.tableFor(model)
	if err != nil {
		return nil, err
	}
	decoded, err := table.Decode(data, count)
	if err != nil {
		return nil, rename(err, NameRANS)
	}
	return decoded, nil
}

// tableFor reconstructs the coding table described by a stored model.
func (b *ransBackend) tableFor(model *Model) (*Table, error) {
	if model == nil {
		return nil, errorf(NameRANS, "empty model")
	}
	precision := model.PrecisionBits
	if precision == 0 {
		precision = b.precisionBits
	}

	var frequencies []int
	switch Mode(model.Mode) {
	case "", ModeAdaptive:
		frequencies = model.Frequencies

	case ModeStatic, ModeHybrid:
		if model.AlphabetSize <= 0 || model.AlphabetSize > maxAlphabetSize {
			return nil, errorf(NameRANS, "%s model alphabet size %d out of range", model.Mode, model.AlphabetSize)
		}
		global, err := LoadGlobalModel(model.ModelID)
		if err != nil {
			return nil, rename(err, NameRANS)
		}
		frequencies = global.FrequenciesFor(model.AlphabetSize)
		if Mode(model.Mode) == ModeHybrid {
			frequencies, err = ApplyOverrides(frequencies, model.Overrides)
			if err != nil {
				return nil, rename(err, NameRANS)
			}
		}

	default:
		return nil, errorf(NameRANS, "unsupported model mode %q", model.Mode)
	}

	table, err := TableFromFrequencies(frequencies, precision)
	if err != nil {
		return nil, rename(err, NameRANS)
	}
	return table, nil
}
