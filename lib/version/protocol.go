// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Version is a protocol version triple. The zero value is 0.0.0, which
// is never supported.
type Version struct {
	Major int
	Minor int
	Patch int
}

// Protocol window of the archive format.
var (
	Current = Version{1, 2, 0}
	Minimum = Version{1, 0, 0}
)

// supported lists every version this build can write. Reading accepts
// any version inside [Minimum, Current] with a matching major.
var supported = []Version{{1, 0, 0}, {1, 1, 0}, {1, 2, 0}}

// Supported returns the versions this build can produce, oldest first.
func Supported() []Version {
	return append([]Version(nil), supported...)
}

// String renders the full dotted triple ("1.2.0").
func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// Short renders the version without a zero patch component ("1.2").
func (v Version) Short() string {
	if v.Patch == 0 {
		return fmt.Sprintf("%d.%d", v.Major, v.Minor)
	}
	return v.String()
}

// Compare returns -1, 0 or +1 as v is older than, equal to or newer
// than other.
func (v Version) Compare(other Version) int {
	switch {
	case v.Major != other.Major:
		return sign(v.Major - other.Major)
	case v.Minor != other.Minor:
		return sign(v.Minor - other.Minor)
	default:
		return sign(v.Patch - other.Patch)
	}
}

// Less reports whether v sorts before other.
func (v Version) Less(other Version) bool { return v.Compare(other) < 0 }

func sign(n int) int {
	switch {
	case n < 0:
		return -1
	case n > 0:
		return 1
	}
	return 0
}

// MarshalText implements encoding.TextMarshaler.
func (v Version) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler and accepts the
// two-component shorthand.
func (v *Version) UnmarshalText(text []byte) error {
	parsed, err := ParseAny(string(text))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// Error reports a version that cannot be parsed or falls outside the
// supported window.
type Error struct {
	// Value is the version text as it appeared in the input.
	Value string
	// Reason describes the rejection.
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("unsupported version %q: %s", e.Value, e.Reason)
}

// Parse parses a strict "major.minor.patch" string.
func Parse(text string) (Version, error) {
	parts := strings.Split(strings.TrimSpace(text), ".")
	if len(parts) != 3 {
		return Version{}, &Error{Value: text, Reason: "expected major.minor.patch"}
	}
	return parseParts(text, parts)
}

// ParseAny parses "major.minor.patch" or the "major.minor" shorthand,
// which implies a zero patch.
func ParseAny(text string) (Version, error) {
	parts := strings.Split(strings.TrimSpace(text), ".")
	switch len(parts) {
	case 2:
		parts = append(parts, "0")
	case 3:
	default:
		return Version{}, &Error{Value: text, Reason: "expected major.minor[.patch]"}
	}
	return parseParts(text, parts)
}

func parseParts(text string, parts []string) (Version, error) {
	var numbers [3]int
	for index, part := range parts {
		number, err := strconv.Atoi(part)
		if err != nil || number < 0 || strings.HasPrefix(part, "+") {
			return Version{}, &Error{Value: text, Reason: fmt.Sprintf("component %q is not a non-negative integer", part)}
		}
		numbers[index] = number
	}
	return Version{numbers[0], numbers[1], numbers[2]}, nil
}

// EnsureSupported rejects any version that this decoder cannot read:
// a major different from [Current], anything older than [Minimum], and
// anything newer than [Current].
func EnsureSupported(v Version) error {
	if v.Major != Current.Major {
		return &Error{Value: v.String(), Reason: fmt.Sprintf("major version %d is not readable by a %d.x decoder", v.Major, Current.Major)}
	}
	if v.Less(Minimum) {
		return &Error{Value: v.String(), Reason: fmt.Sprintf("older than minimum supported %s", Minimum)}
	}
	if Current.Less(v) {
		return &Error{Value: v.String(), Reason: fmt.Sprintf("newer than current %s", Current)}
	}
	return nil
}

// IsSupported reports whether EnsureSupported would accept v.
func IsSupported(v Version) bool {
	return EnsureSupported(v) == nil
}

// Negotiate returns the highest version that is both in preferred and
// writable by this build. An empty preference list yields [Current].
func Negotiate(preferred []Version) (Version, error) {
	if len(preferred) == 0 {
		return Current, nil
	}
	var best *Version
	for index := range preferred {
		candidate := preferred[index]
		if !writable(candidate) {
			continue
		}
		if best == nil || best.Less(candidate) {
			best = &preferred[index]
		}
	}
	if best == nil {
		names := make([]string, len(preferred))
		for index, v := range preferred {
			names[index] = v.String()
		}
		return Version{}, &Error{Value: strings.Join(names, ","), Reason: "no overlap with supported versions"}
	}
	return *best, nil
}

func writable(v Version) bool {
	for _, candidate := range supported {
		if candidate == v {
			return true
		}
	}
	return false
}

// CompatibilityMatrix reports, for each decoder version, which payload
// versions it can read. A decoder reads a payload when the majors match
// and Minimum <= payload <= decoder.
func CompatibilityMatrix(decoders, payloads []Version) map[string]map[string]bool {
	if decoders == nil {
		decoders = Supported()
	}
	if payloads == nil {
		payloads = Supported()
	}
	matrix := make(map[string]map[string]bool, len(decoders))
	for _, decoder := range decoders {
		row := make(map[string]bool, len(payloads))
		for _, payload := range payloads {
			row[payload.String()] = decoder.Major == payload.Major &&
				!payload.Less(Minimum) && !decoder.Less(payload)
		}
		matrix[decoder.String()] = row
	}
	return matrix
}

// Sort orders versions oldest first in place.
func Sort(versions []Version) {
	sort.Slice(versions, func(i, j int) bool { return versions[i].Less(versions[j]) })
}
