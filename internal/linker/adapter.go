package linker

import (
	"fmt"
	"math/big"
	"time"

	"github.com/rawblock/txo-linker/pkg/models"
)

// TxosFromInputs converts a transaction's inputs into the engine's opaque
// Txo representation. Ids are synthesized from the previous outpoint
// (txid:vout), which is unique within a transaction's input list and
// legible in logs, so callers never need to invent their own scheme.
func TxosFromInputs(inputs []models.TxIn) []Txo {
	out := make([]Txo, len(inputs))
	for i, in := range inputs {
		out[i] = Txo{ID: fmt.Sprintf("%s:%d", in.Txid, in.Vout), Value: in.Value}
	}
	return out
}

// TxosFromOutputs converts a transaction's outputs into Txos, synthesizing
// ids from the output's position since models.TxOut carries no index of
// its own.
func TxosFromOutputs(outputs []models.TxOut) []Txo {
	out := make([]Txo, len(outputs))
	for i, o := range outputs {
		out[i] = Txo{ID: fmt.Sprintf("vout%d", i), Value: o.Value}
	}
	return out
}

// AnalyzeTransaction runs Process over a models.Transaction with the
// defaults used throughout the rest of this repository (precheck +
// linkability, no intrafees, DefaultMaxDurationSecs budget). It is the
// entry point external collaborators (entropy analysis, unmix analysis,
// the API handler) call instead of touching the engine's internal types.
func AnalyzeTransaction(tx models.Transaction) (Matrix, *big.Int, []Txo, []Txo, error) {
	return AnalyzeTransactionWithLinks(tx, nil, Intrafees{})
}

// AnalyzeTransactionWithLinks is AnalyzeTransaction with caller-supplied
// pre-packing (address-reuse linked sets, see heuristics.LinkedByAddress)
// and a non-zero Intrafees window (see heuristics.ComputeCoinjoinIntrafees).
func AnalyzeTransactionWithLinks(tx models.Transaction, linkedSets []map[string]bool, intrafees Intrafees) (Matrix, *big.Int, []Txo, []Txo, error) {
	ins := TxosFromInputs(tx.Inputs)
	outs := TxosFromOutputs(tx.Outputs)
	opts := Options{Precheck: true, Linkability: true, MergeInputs: true, MergeOutputs: true}
	maxDuration := time.Duration(DefaultMaxDurationSecs) * time.Second
	return Process(ins, outs, tx.Fee, linkedSets, opts, intrafees, maxDuration, MaxTxos)
}

// LinkedInputID returns the synthetic id an input's Txid:Vout maps to, for
// callers assembling linkedSets from their own address-clustering data.
func LinkedInputID(in models.TxIn) string {
	return fmt.Sprintf("%s:%d", in.Txid, in.Vout)
}

// LinkedOutputID returns the synthetic id an output at the given position
// maps to.
func LinkedOutputID(index int) string {
	return fmt.Sprintf("vout%d", index)
}
