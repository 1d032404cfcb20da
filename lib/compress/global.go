// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package compress

import (
	"embed"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// DefaultGlobalModelID names the packaged model used by static and
// hybrid modes when none is specified.
const DefaultGlobalModelID = "global_v1"

//go:embed models/*.yaml
var globalModelFiles embed.FS

// GlobalModel is a packaged frequency table shared by every archive
// that references it by identifier.
type GlobalModel struct {
	ModelID       string `yaml:"model_id"`
	PrecisionBits int    `yaml:"precision_bits"`
	AlphabetSize  int    `yaml:"alphabet_size"`
	Frequencies   []int  `yaml:"frequencies"`
}

var (
	globalModelsOnce sync.Once
	globalModels     map[string]*GlobalModel
	globalModelsErr  error
)

// LoadGlobalModel returns the packaged model with the given identifier.
// The returned model is shared and must not be modified.
func LoadGlobalModel(modelID string) (*GlobalModel, error) {
	globalModelsOnce.Do(func() {
		globalModels, globalModelsErr = parseGlobalModels()
	})
	if globalModelsErr != nil {
		return nil, globalModelsErr
	}
	if modelID == "" {
		modelID = DefaultGlobalModelID
	}
	model, ok := globalModels[modelID]
	if !ok {
		return nil, errorf("", "unknown global model %q", modelID)
	}
	return model, nil
}

// GlobalModelIDs returns the identifiers of every packaged model.
func GlobalModelIDs() ([]string, error) {
	if _, err := LoadGlobalModel(DefaultGlobalModelID); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(globalModels))
	for id := range globalModels {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func parseGlobalModels() (map[string]*GlobalModel, error) {
	entries, err := globalModelFiles.ReadDir("models")
	if err != nil {
		return nil, fmt.Errorf("reading packaged models: %w", err)
	}
	models := make(map[string]*GlobalModel, len(entries))
	for _, entry := range entries {
		data, err := globalModelFiles.ReadFile("models/" + entry.Name())
		if err != nil {
			return nil, fmt.Errorf("reading packaged model %s: %w", entry.Name(), err)
		}
		var model GlobalModel
		if err := yaml.Unmarshal(data, &model); err != nil {
			return nil, fmt.Errorf("parsing packaged model %s: %w", entry.Name(), err)
		}
		if model.ModelID == "" {
			model.ModelID = strings.TrimSuffix(entry.Name(), ".yaml")
		}
		if model.AlphabetSize == 0 {
			model.AlphabetSize = len(model.Frequencies)
		}
		if model.PrecisionBits == 0 {
			model.PrecisionBits = DefaultPrecisionBits
		}
		models[model.ModelID] = &model
	}
	return models, nil
}

// FrequenciesFor returns the model's frequencies sized to exactly
// alphabetSize entries, padding missing symbols with a count of one.
func (g *GlobalModel) FrequenciesFor(alphabetSize int) []int {
	frequencies := make([]int, alphabetSize)
	for index := range frequencies {
		frequencies[index] = 1
	}
	copy(frequencies, g.Frequencies)
	return frequencies
}

// SparseOverrides returns the positions at which adaptive differs from
// base, keyed by decimal symbol index as stored in hybrid models.
func SparseOverrides(adaptive, base []int) map[string]int {
	overrides := make(map[string]int)
	for index, frequency := range adaptive {
		if index >= len(base) || base[index] != frequency {
			overrides[strconv.Itoa(index)] = frequency
		}
	}
	return overrides
}

// ApplyOverrides returns base with the hybrid overrides applied.
func ApplyOverrides(base []int, overrides map[string]int) ([]int, error) {
	frequencies := append([]int(nil), base...)
	for key, frequency := range overrides {
		index, err := strconv.Atoi(key)
		if err != nil || index < 0 || index >= len(frequencies) {
			return nil, errorf("rans", "hybrid override for symbol %q outside alphabet of %d", key, len(frequencies))
		}
		frequencies[index] = frequency
	}
	return frequencies, nil
}
