// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package compress

// DefaultTableLog is the fse backend's default table log.
const DefaultTableLog = 12

// fseBackend stores raw symbol counts and a table log. Coding uses the
// rANS table normalised from those counts at a precision equal to the
// table log clamped to the supported range. Archives using it advertise
// the compression:fse feature.
type fseBackend struct {
	tableLog int
}

func newFSEBackend(options Options) (Backend, error) {
	tableLog := options.TableLog
	if tableLog == 0 {
		tableLog = DefaultTableLog
	}
	if tableLog < 0 {
		return nil, errorf(NameFSE, "table log must be positive, got %d", tableLog)
	}
	return &fseBackend{tableLog: tableLog}, nil
}

func (b *fseBackend) Name() string { return NameFSE }

func (b *fseBackend) BuildModel(tokens []int, alphabetSize int) (*Model, error) {
	if alphabetSize <= 0 || alphabetSize > maxAlphabetSize {
		return nil, errorf(NameFSE, "alphabet size %d out of range", alphabetSize)
	}
	counts := make([]int, alphabetSize)
	for _, token := range tokens {
		if token < 0 || token >= alphabetSize {
			return nil, errorf(NameFSE, "symbol %d outside alphabet of %d", token, alphabetSize)
		}
		counts[token]++
	}
	return &Model{TableLog: b.tableLog, Counts: counts}, nil
}

func (b *fseBackend) Encode(tokens []int, model *Model) ([]byte, error) {
	table, err := b.tableFor(model)
	if err != nil {
		return nil, err
	}
	encoded, err := table.Encode(tokens)
	return encoded, rename(err, NameFSE)
}

func (b *fseBackend) Decode(data []byte, model *Model, count int) ([]int, error) {
	table, err := b.tableFor(model)
	if err != nil {
		return nil, err
	}
	decoded, err := table.Decode(data, count)
	if err != nil {
		return nil, rename(err, NameFSE)
	}
	return decoded, nil
}

func (b *fseBackend) tableFor(model *Model) (*Table, error) {
	if model == nil || len(model.Counts) == 0 {
		return nil, errorf(NameFSE, "compression model missing frequency table")
	}
	tableLog := model.TableLog
	if tableLog == 0 {
		tableLog = b.tableLog
	}
	precision := min(MaxPrecisionBits, max(MinPrecisionBits, tableLog))
	table, err := TableFromFrequencies(model.Counts, precision)
	if err != nil {
		return nil, rename(err, NameFSE)
	}
	return table, nil
}
