package heuristics

import (
	"math"
	"math/big"

	"github.com/rawblock/txo-linker/internal/linker"
	"github.com/rawblock/txo-linker/pkg/models"
)

// Boltzmann Transaction Entropy Analysis
//
// Implements the information-theoretic measure of transaction ambiguity.
// Entropy = log₂(N) where N = number of valid input→output mappings.
//
// This is the core metric used by OXT Research (Laurent MT) and Samourai
// Wallet to quantify CoinJoin mixing quality. A perfect 5×5 Whirlpool
// mix has 1496 interpretations, entropy = log₂(1496) ≈ 10.5 bits, while a simple 1-in-2-out
// payment has entropy ≈ 0 bits (fully deterministic).
//
// References:
//   - Laurent MT, "Boltzmann: an Entropy Metric for UTXO Transactions" (2018)
//   - OXT Research, "Understanding Wallet Entropy" (2020)
//   - Erdin et al., "Transaction Entropy Analysis" (ESORICS 2023)

// ComputeBoltzmannEntropy calculates the Boltzmann entropy of a transaction.
// It counts the number of valid interpretations (input→output mappings)
// where each input can fund each output, then returns log₂(count).
//
// Algorithm:
//  1. Up to linker.MaxTxos inputs and outputs, take the exact combination
//     count from linker.AnalyzeTransactionWithLinks
//  2. Above that size, or when the engine returns an error or no count, use
//     the equal-output approximation in estimateMappingsLarge
//  3. Entropy = log₂(count)
//
// Complexity is bounded: for txs with >12 I/O, we use statistical estimation.
func ComputeBoltzmannEntropy(tx models.Transaction) models.EntropyResult {
	nIn := len(tx.Inputs)
	nOut := len(tx.Outputs)

	if nIn == 0 || nOut == 0 {
		return models.EntropyResult{Level: "transparent"}
	}

	// Simple transactions have zero entropy
	if nIn == 1 && nOut <= 2 {
		return models.EntropyResult{
			Entropy:         0,
			MaxEntropy:      0,
			Efficiency:      0,
			Level:           "transparent",
			Interpretations: 1,
		}
	}

	// Maximum possible entropy = log₂(min(nIn, nOut)!)
	// This is the entropy if every input could fund every output
	minDim := nIn
	if nOut < minDim {
		minDim = nOut
	}
	maxEntropy := log2Factorial(minDim)

	// Count valid interpretations. The exact count comes from the
	// combinatorial linkability engine (internal/linker); above its
	// MAX_TXOS budget we fall back to the equal-output approximation.
	var interpretations int
	var lastNbCmbn *big.Int
	if nIn <= linker.MaxTxos && nOut <= linker.MaxTxos {
		linkedSets := LinkedByAddress(tx)
		intrafees := ComputeCoinjoinIntrafees(tx)
		_, nbCmbn, _, _, err := linker.AnalyzeTransactionWithLinks(tx, linkedSets, intrafees)
		lastNbCmbn = nbCmbn
		if err != nil || nbCmbn == nil || nbCmbn.Sign() == 0 {
			// Engine declined (invalid input) or timed out; approximate
			// rather than report a fully transparent transaction.
			interpretations = estimateMappingsLarge(tx.Inputs, tx.Outputs)
		} else if nbCmbn.IsInt64() {
			interpretations = int(nbCmbn.Int64())
		} else {
			interpretations = math.MaxInt32
		}
	} else {
		// Statistical estimation for large transactions (CoinJoins)
		interpretations = estimateMappingsLarge(tx.Inputs, tx.Outputs)
	}

	if interpretations < 1 {
		interpretations = 1
	}

	entropy := math.Log2(float64(interpretations))

	// Wallet efficiency: actual entropy / max possible entropy. Prefer the
	// exact engine's combination count when available over re-deriving it
	// from the (possibly estimated) interpretations count above.
	var efficiency float64
	if lastNbCmbn != nil && lastNbCmbn.Sign() > 0 {
		efficiency = ComputeWalletEfficiency(lastNbCmbn, nIn, nOut)
	} else if maxEntropy > 0 {
		efficiency = entropy / maxEntropy
		if efficiency > 1.0 {
			efficiency = 1.0
		}
	}

	level := classifyEntropyLevel(entropy)

	return models.EntropyResult{
		Entropy:         math.Round(entropy*100) / 100,
		MaxEntropy:      math.Round(maxEntropy*100) / 100,
		Efficiency:      math.Round(efficiency*100) / 100,
		Level:           level,
		Interpretations: interpretations,
	}
}

// LinkedByAddress groups a transaction's input and output txo ids by shared
// address, mirroring boltzmann's MERGE_INPUTS/MERGE_OUTPUTS pre-packing
// (get_linked_txos in tx_processor.py): two txos reusing the same address
// are known to share a common owner regardless of what the combinatorial
// engine concludes, so they're fed to linker.Process as a caller-supplied
// linked set rather than left for the engine to (not) discover on its own.
func LinkedByAddress(tx models.Transaction) []map[string]bool {
	byAddr := make(map[string]map[string]bool)
	for _, in := range tx.Inputs {
		if in.Address == "" {
			continue
		}
		id := linker.LinkedInputID(in)
		if byAddr[in.Address] == nil {
			byAddr[in.Address] = make(map[string]bool)
		}
		byAddr[in.Address][id] = true
	}
	for i, out := range tx.Outputs {
		if out.Address == "" {
			continue
		}
		id := linker.LinkedOutputID(i)
		if byAddr[out.Address] == nil {
			byAddr[out.Address] = make(map[string]bool)
		}
		byAddr[out.Address][id] = true
	}

	var groups []map[string]bool
	for _, set := range byAddr {
		if len(set) > 1 {
			groups = append(groups, set)
		}
	}
	return groups
}

// ComputeCoinjoinIntrafees detects a JoinMarket-style equal-output coinjoin
// and estimates the (maker, taker) intrafee split boltzmann's
// compute_coinjoin_intrafees derives from the transaction's fee and output
// structure: the coordinator (taker) pays the mining fee while each maker's
// change output absorbs a small negotiated premium. Returns a zero
// Intrafees when no such pattern is detected, meaning "exact value matching,
// no coordinator fee window".
func ComputeCoinjoinIntrafees(tx models.Transaction) linker.Intrafees {
	if len(tx.Outputs) < 3 {
		return linker.Intrafees{}
	}

	// The coinjoin denomination is the most frequent output value; the
	// other (change) outputs are not inspected.
	counts := make(map[int64]int)
	for _, out := range tx.Outputs {
		counts[out.Value]++
	}
	var denom int64
	var denomCount int
	for v, c := range counts {
		if c > denomCount {
			denom, denomCount = v, c
		}
	}
	if denomCount < 2 {
		return linker.Intrafees{}
	}

	// A maker's premium is bounded by the tx-wide mining fee; this matches
	// the order of magnitude boltzmann uses when it can't read the actual
	// PSBT fee negotiation (a handful of sats per participant).
	makerFee := tx.Fee / int64(denomCount)
	if makerFee < 0 {
		makerFee = 0
	}
	return linker.Intrafees{Maker: makerFee, Taker: 0}
}

// ComputeWalletEfficiency measures how close a transaction's actual
// combination count comes to the theoretical maximum for its dimensions,
// i.e. log₂(nb_cmbn) relative to log₂(min(nIn,nOut)!), capped at 1 — boltzmann's ludwig.py table of
// "perfect coinjoin" combinatorics, now driven by the exact engine output
// instead of a Stirling-approximated entropy ratio.
func ComputeWalletEfficiency(nbCmbn *big.Int, nIn, nOut int) float64 {
	if nbCmbn == nil || nbCmbn.Sign() <= 0 {
		return 0
	}
	minDim := nIn
	if nOut < minDim {
		minDim = nOut
	}
	maxEntropy := log2Factorial(minDim)
	if maxEntropy <= 0 {
		return 0
	}

	actual, _ := new(big.Float).SetInt(nbCmbn).Float64()
	entropy := math.Log2(actual)
	efficiency := entropy / maxEntropy
	if efficiency > 1.0 {
		efficiency = 1.0
	}
	return math.Round(efficiency*100) / 100
}

// estimateMappingsLarge provides a statistical estimate for large transactions
// (WabiSabi CoinJoins with 50+ I/O) where exact enumeration is infeasible.
//
// Uses the equal-output approximation: if K outputs share the same value
// and M inputs can fund them, then those K outputs contribute C(M,K) * K!
// valid mappings.
func estimateMappingsLarge(inputs []models.TxIn, outputs []models.TxOut) int {
	// Group outputs by equal value
	outputGroups := make(map[int64]int)
	for _, out := range outputs {
		outputGroups[out.Value]++
	}

	// For each group, count how many inputs can fund that denomination
	totalMappings := 1.0
	for val, groupSize := range outputGroups {
		eligibleInputs := 0
		for _, in := range inputs {
			if in.Value >= val {
				eligibleInputs++
			}
		}

		if eligibleInputs >= groupSize {
			// C(eligible, groupSize) * groupSize!
			combination := binomialCoeff(eligibleInputs, groupSize)
			factorial := factorialInt(groupSize)
			totalMappings *= float64(combination) * float64(factorial)
		}
	}

	if totalMappings > 1e9 {
		totalMappings = 1e9 // Cap for numerical stability
	}

	return int(totalMappings)
}

// classifyEntropyLevel maps entropy bits to human-readable quality bands
func classifyEntropyLevel(entropy float64) string {
	switch {
	case entropy <= 0:
		return "transparent" // Fully deterministic (0 bits)
	case entropy < 2:
		return "low" // Weak mix (< 2 bits = < 4 interpretations)
	case entropy < 4:
		return "moderate" // Decent mix (4-16 interpretations)
	case entropy < 7:
		return "high" // Strong mix (16-128 interpretations)
	default:
		return "maximum" // Industrial grade (128+ interpretations)
	}
}

// log2Factorial computes log₂(n!) using Stirling's approximation for large n
func log2Factorial(n int) float64 {
	if n <= 1 {
		return 0
	}
	if n <= 20 {
		// Exact computation for small values
		f := 1.0
		for i := 2; i <= n; i++ {
			f *= float64(i)
		}
		return math.Log2(f)
	}
	// Stirling's approximation: log₂(n!) ≈ n*log₂(n) - n*log₂(e) + 0.5*log₂(2πn)
	fn := float64(n)
	return fn*math.Log2(fn) - fn*math.Log2(math.E) + 0.5*math.Log2(2*math.Pi*fn)
}

// binomialCoeff computes C(n, k) = n! / (k! * (n-k)!)
func binomialCoeff(n, k int) int {
	if k > n || k < 0 {
		return 0
	}
	if k == 0 || k == n {
		return 1
	}
	if k > n-k {
		k = n - k
	}
	result := 1
	for i := 0; i < k; i++ {
		result *= (n - i)
		result /= (i + 1)
	}
	return result
}

// factorialInt computes n! for small n (capped at 12 to avoid overflow)
func factorialInt(n int) int {
	if n <= 1 {
		return 1
	}
	if n > 12 {
		n = 12 // Cap to prevent overflow
	}
	result := 1
	for i := 2; i <= n; i++ {
		result *= i
	}
	return result
}
