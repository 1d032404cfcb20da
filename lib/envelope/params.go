// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package envelope

import (
	"fmt"
)

// Argon2Params are the Argon2id cost parameters. MemoryCost is in KiB.
type Argon2Params struct {
	TimeCost    uint32
	MemoryCost  uint32
	Parallelism uint32
	HashLength  uint32
}

// DefaultArgon2 is used for every field left zero.
var DefaultArgon2 = Argon2Params{
	TimeCost:    4,
	MemoryCost:  64 * 1024,
	Parallelism: 4,
	HashLength:  32,
}

// Upper bounds accepted from archives. Without them a crafted wrapper
// could demand gigabytes of memory before authentication fails.
const (
	maxTimeCost   = 64
	maxMemoryCost = 1 << 20
	maxRounds     = 10_000_000
)

// PBKDF2Rounds is the iteration count of the legacy scheme.
const PBKDF2Rounds = 200_000

func (p Argon2Params) withDefaults() Argon2Params {
	if p.TimeCost == 0 {
		p.TimeCost = DefaultArgon2.TimeCost
	}
	if p.MemoryCost == 0 {
		p.MemoryCost = DefaultArgon2.MemoryCost
	}
	if p.Parallelism == 0 {
		p.Parallelism = DefaultArgon2.Parallelism
	}
	if p.HashLength == 0 {
		p.HashLength = DefaultArgon2.HashLength
	}
	return p
}

func (p Argon2Params) validate() error {
	switch {
	case p.TimeCost < 1 || p.TimeCost > maxTimeCost:
		return fmt.Errorf("argon2 time_cost %d outside 1..%d", p.TimeCost, maxTimeCost)
	case p.Parallelism < 1 || p.Parallelism > 255:
		return fmt.Errorf("argon2 parallelism %d outside 1..255", p.Parallelism)
	case p.MemoryCost < 8*p.Parallelism || p.MemoryCost > maxMemoryCost:
		return fmt.Errorf("argon2 memory_cost %d KiB outside %d..%d", p.MemoryCost, 8*p.Parallelism, maxMemoryCost)
	case p.HashLength != KeySize:
		return fmt.Errorf("argon2 hash_len must be %d, got %d", KeySize, p.HashLength)
	}
	return nil
}

// Map renders the parameters under the names stored in wrappers.
func (p Argon2Params) Map() map[string]int {
	return map[string]int{
		"time_cost":   int(p.TimeCost),
		"memory_cost": int(p.MemoryCost),
		"parallelism": int(p.Parallelism),
		"hash_len":    int(p.HashLength),
	}
}

// Argon2ParamsFromMap merges stored parameters over the defaults and
// validates the result. Unknown keys are ignored.
func Argon2ParamsFromMap(stored map[string]int) (Argon2Params, error) {
	params := DefaultArgon2
	fields := map[string]*uint32{
		"time_cost":   &params.TimeCost,
		"memory_cost": &params.MemoryCost,
		"parallelism": &params.Parallelism,
		"hash_len":    &params.HashLength,
	}
	for name, target := range fields {
		value, ok := stored[name]
		if !ok {
			continue
		}
		if value < 0 || int64(value) > int64(^uint32(0)) {
			return params, fmt.Errorf("argon2 %s %d out of range", name, value)
		}
		*target = uint32(value)
	}
	return params, params.validate()
}

// Work is the key-derivation effort Decrypt would spend on a result.
// Argon2 counts KiB of memory filled across all passes; Rounds counts
// PBKDF2 iterations.
type Work struct {
	Argon2 int
	Rounds int
}

// RequiredWork reports the work Decrypt would perform for result,
// letting a caller refuse an expensive archive before deriving a key.
// Parameters Decrypt would reject report zero work.
func RequiredWork(result *Result) Work {
	if result == nil {
		return Work{}
	}
	switch result.Version {
	case VersionLegacy:
		rounds := PBKDF2Rounds
		if stored, ok := result.KDFParameters["rounds"]; ok {
			rounds = stored
		}
		if rounds < 1 || rounds > maxRounds {
			return Work{}
		}
		return Work{Rounds: rounds}
	case VersionCurrent:
		params, err := Argon2ParamsFromMap(result.KDFParameters)
		if err != nil {
			return Work{}
		}
		return Work{Argon2: int(params.TimeCost) * int(params.MemoryCost)}
	}
	return Work{}
}
