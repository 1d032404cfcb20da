// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"errors"
	"fmt"

	"github.com/bureau-foundation/quenyan/lib/compress"
	"github.com/bureau-foundation/quenyan/lib/envelope"
	"github.com/bureau-foundation/quenyan/lib/frame"
	"github.com/bureau-foundation/quenyan/lib/langprofile"
	"github.com/bureau-foundation/quenyan/lib/morphcodec"
	"github.com/bureau-foundation/quenyan/lib/morpheme"
	"github.com/bureau-foundation/quenyan/lib/payload"
	"github.com/bureau-foundation/quenyan/lib/sourcemap"
	"github.com/bureau-foundation/quenyan/lib/stringtable"
	"github.com/bureau-foundation/quenyan/lib/syntax"
	"github.com/bureau-foundation/quenyan/lib/version"
)

// Kind is the category of a failure.
type Kind int

const (
	KindOther Kind = iota
	KindFormat
	KindVersion
	KindCrypto
	KindCompression
	KindMorpheme
	KindBudget
	KindSyntax
)

var kindNames = [...]string{
	KindOther:       "other",
	KindFormat:      "format",
	KindVersion:     "version",
	KindCrypto:      "crypto",
	KindCompression: "compression",
	KindMorpheme:    "morpheme",
	KindBudget:      "budget",
	KindSyntax:      "syntax",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("kind(%d)", int(k))
	}
	return kindNames[k]
}

// Classify maps an error from any layer to its Kind. A nil error is
// KindOther.
//
// Budget and version failures are checked first because they may wrap
// lower-level errors. A corrupt token stream, payload channel, string
// table or source map inside an authenticated payload is a format
// failure.
func Classify(err error) Kind {
	if err == nil {
		return KindOther
	}
	var (
		budgetError      *BudgetError
		versionError     *version.Error
		compressionError *compress.Error
		unknownMorpheme  *morphcodec.UnknownMorphemeError
		unknownKey       *morpheme.UnknownKeyError
		syntaxError      *syntax.Error
		formatError      *frame.FormatError
	)
	switch {
	case errors.As(err, &budgetError):
		return KindBudget
	case errors.As(err, &versionError):
		return KindVersion
	case errors.Is(err, envelope.ErrDecrypt), errors.Is(err, envelope.ErrEmptyPassphrase):
		return KindCrypto
	case errors.As(err, &compressionError):
		return KindCompression
	case errors.As(err, &unknownMorpheme), errors.As(err, &unknownKey):
		return KindMorpheme
	case errors.As(err, &syntaxError), errors.Is(err, langprofile.ErrNotText):
		return KindSyntax
	case errors.As(err, &formatError),
		errors.Is(err, morphcodec.ErrMalformed),
		errors.Is(err, payload.ErrMalformed),
		errors.Is(err, stringtable.ErrCorrupt),
		errors.Is(err, sourcemap.ErrCorrupt):
		return KindFormat
	}
	return KindOther
}

func formatErrorf(format string, args ...any) error {
	return &frame.FormatError{Reason: fmt.Sprintf(format, args...)}
}
