// Package linker implements the Transaction Linkability Analyzer: the
// combinatorial engine that computes the entropy, linkability matrix and
// deterministic links of a Bitcoin transaction modeled abstractly as ordered
// input/output value lists plus a fee.
//
// The package performs no I/O, no blockchain access and no script/address
// parsing. It is a pure function of its arguments: Process is safe to call
// concurrently from independent goroutines, one transaction per call, with
// no shared mutable state between calls.
package linker

import (
	"errors"
	"math/big"
)

// MaxTxos is the default hard limit on max(nIn, nOut). Transactions that
// exceed it after packing are skipped: Process returns a nil matrix and a
// zero combination count rather than attempting enumeration.
const MaxTxos = 12

// DefaultMaxDurationSecs is the default wall-clock budget for the traversal,
// matching the original implementation's default.
const DefaultMaxDurationSecs = 180

// Reserved id prefixes/values produced by the engine during packing. Callers
// must not use these as txo ids.
const (
	packInputPrefix  = "PACK_I"
	packOutputPrefix = "PACK_O"
	// FeesID is the synthetic output id used by MergeFees.
	FeesID = "FEES"
)

// Txo is a transaction input or output, abstracted to an opaque id and a
// positive satoshi value. Zero-value txos are filtered out before
// processing (spec.md §3).
type Txo struct {
	ID    string
	Value int64
}

// Options selects which passes Process runs, mirroring spec.md §6's
// {PRECHECK, LINKABILITY, MERGE_FEES, MERGE_INPUTS, MERGE_OUTPUTS}.
type Options struct {
	Precheck     bool
	Linkability  bool
	MergeFees    bool
	MergeInputs  bool
	MergeOutputs bool
}

// Intrafees is the (fees_maker, fees_taker) pair used for joinmarket-style
// coinjoins (spec.md §4.2). Both must be non-negative.
type Intrafees struct {
	Maker int64
	Taker int64
}

func (f Intrafees) hasIntrafees() bool {
	return f.Maker != 0 || f.Taker != 0
}

// Matrix is the linkability matrix L, shaped (len(Outputs), len(Inputs))
// after unpacking. Matrix[o][i] is the number of valid interpretations in
// which output o and input i belong to the same participant.
type Matrix [][]*big.Int

// Result is the four-tuple returned by Process (spec.md §6).
type Result struct {
	Links   Matrix
	NbCmbn  *big.Int
	Inputs  []Txo
	Outputs []Txo
}

// Sentinel errors for the InvalidInput class (spec.md §7). These are
// programmer errors: Process fails fast with one of these wrapped in
// context rather than silently coercing bad input.
var (
	ErrDuplicateID       = errors.New("linker: duplicate txo id on one side")
	ErrNegativeValue     = errors.New("linker: txo value must not be negative")
	ErrNegativeFees      = errors.New("linker: fees must not be negative")
	ErrNegativeIntrafee  = errors.New("linker: intrafee values must not be negative")
	ErrUnknownLinkedID   = errors.New("linker: linked set references an id not present on that side")
	ErrReservedID        = errors.New("linker: txo id uses a reserved prefix ('PACK_' or 'FEES')")
)
