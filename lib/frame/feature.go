// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package frame

import (
	"sort"
)

// Features is the set of optional capabilities a frame's content uses.
type Features uint16

// Named feature bits.
const (
	FeatureOptimisation Features = 1 << 0
	FeatureExtras       Features = 1 << 1
	FeatureSourceMap    Features = 1 << 2
	FeatureFSE          Features = 1 << 3

	knownFeatures = FeatureOptimisation | FeatureExtras | FeatureSourceMap | FeatureFSE
)

var featureNames = map[Features]string{
	FeatureOptimisation: "compression:optimisation",
	FeatureExtras:       "compression:extras",
	FeatureSourceMap:    "payload:source-map",
	FeatureFSE:          "compression:fse",
}

// FeaturesFromNames builds a feature set from feature names. Order and
// duplicates are irrelevant; an unrecognised name is a format error.
func FeaturesFromNames(names []string) (Features, error) {
	var set Features
	for _, name := range names {
		bit, ok := featureBit(name)
		if !ok {
			return 0, formatErrorf("unknown feature %q", name)
		}
		set |= bit
	}
	return set, nil
}

func featureBit(name string) (Features, bool) {
	for bit, candidate := range featureNames {
		if candidate == name {
			return bit, true
		}
	}
	return 0, false
}

// Names returns the names of the known bits in f, sorted.
func (f Features) Names() []string {
	names := make([]string, 0, 4)
	for bit, name := range featureNames {
		if f&bit != 0 {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Has reports whether every bit of other is set in f.
func (f Features) Has(other Features) bool { return f&other == other }

// Unknown returns the bits of f that carry no defined meaning.
func (f Features) Unknown() Features { return f &^ knownFeatures }
