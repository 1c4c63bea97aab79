package txbuilder

import (
	"fmt"
	"sort"

	"github.com/btcsuite/btcd/txscript"
	"github.com/hashicorp/go-hclog"
)

const (
	// DefaultMaxIterations caps the sigops multiplier fixed point loop.
	DefaultMaxIterations = 32

	// MaxReasonableFeeRate bounds requested fee rates in sat/vB. Anything
	// above it is treated as a unit mistake, such as sat/kvB passed as sat/vB.
	MaxReasonableFeeRate = 1000
)

// ValidateFeeRate rejects rates that are not positive or exceed
// MaxReasonableFeeRate.
func ValidateFeeRate(feeRate int64) error {
	if feeRate <= 0 {
		return fmt.Errorf("%w: %d sat/vB must be positive", ErrInvalidFeeRate, feeRate)
	}
	if feeRate > MaxReasonableFeeRate {
		return fmt.Errorf("%w: %d sat/vB exceeds safety limit of %d sat/vB", ErrInvalidFeeRate, feeRate, MaxReasonableFeeRate)
	}
	return nil
}

// Selection is the result of a coin selection run.
//
// Sum(Inputs.Value) == Sum(outputs) + Change + Fee and Change >= 0.
type Selection struct {
	Inputs []UTXO
	Fee    int64
	Change int64

	// FeeRate is the sigops adjusted rate the fee was charged at.
	FeeRate int64

	// Iterations is the number of selection passes run.
	Iterations int

	// UnknownInputs counts selected inputs whose script matched no size
	// pattern. Their size is underestimated.
	UnknownInputs int
}

// Selector picks inputs largest-first under the sigops adjusted fee model.
type Selector struct {
	MaxIterations int
	Logger        hclog.Logger
}

// multiplier is (inputs + simple + 3*multisig) / (inputs + simple + multisig)
// kept as an exact fraction.
type multiplier struct {
	num, den int64
}

var unitMultiplier = multiplier{1, 1}

func sigopsMultiplier(inputs, simple, msig int) multiplier {
	den := int64(inputs + simple + msig)
	if den == 0 {
		return unitMultiplier
	}
	return multiplier{num: int64(inputs+simple+3*msig), den: den}
}

func (m multiplier) equal(o multiplier) bool {
	return m.num*o.den == o.num*m.den
}

// apply returns floor(rate * m).
func (m multiplier) apply(rate int64) int64 {
	return rate * m.num / m.den
}

func (m multiplier) String() string {
	return fmt.Sprintf("%d/%d", m.num, m.den)
}

type pass struct {
	mult      multiplier
	rate      int64
	inputs    []UTXO
	total     int64
	inSize    int
	unknown   int
	iteration int
}

// Select chooses inputs from utxos to pay for outputs at feeRate sat/vB.
// It never returns a partial result: on failure the Selection is nil.
func (s *Selector) Select(utxos []UTXO, outputs []Output, feeRate int64) (*Selection, error) {
	if feeRate <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidFeeRate, feeRate)
	}
	if len(utxos) == 0 {
		return nil, fmt.Errorf("%w: no UTXOs available", ErrInsufficientFunds)
	}

	var (
		target  int64
		outSize int
		simple  int
		msig    int
	)
	for i, o := range outputs {
		if o.Value < 0 {
			return nil, fmt.Errorf("%w: output %d has negative value %d", ErrInvalidOutput, i, o.Value)
		}
		if o.IsScript() && len(o.Script) == 0 {
			return nil, fmt.Errorf("%w: output %d has neither address nor script", ErrInvalidOutput, i)
		}
		target += o.Value
		outSize += EstimateOutputSize(o)
		if o.IsScript() && txscript.GetScriptClass(o.Script) == txscript.MultiSigTy {
			msig++
		} else {
			simple++
		}
	}

	sorted := SortUTXOs(utxos)
	logger := s.logger()
	maxIter := s.MaxIterations
	if maxIter <= 0 {
		maxIter = DefaultMaxIterations
	}

	var history []pass
	mult := unitMultiplier
	for iter := 1; iter <= maxIter; iter++ {
		p := greedy(sorted, target, outSize, mult.apply(feeRate))
		p.mult = mult
		p.iteration = iter

		next := sigopsMultiplier(len(p.inputs), simple, msig)
		logger.Trace("selection pass", "iteration", iter, "multiplier", mult.String(), "rate", p.rate,
			"inputs", len(p.inputs), "next_multiplier", next.String())

		if next.equal(mult) {
			return s.finish(p, target, outSize)
		}

		// A multiplier seen before means the passes repeat from here on.
		// Settle on the most expensive pass of the cycle so the fee never
		// undershoots the rate its own input count implies.
		for i := range history {
			if history[i].mult.equal(next) {
				best := p
				for _, h := range history[i:] {
					if h.rate > best.rate {
						best = h
					}
				}
				logger.Warn("sigops multiplier oscillates, using highest rate of cycle",
					"cycle_length", len(history)-i+1, "rate", best.rate)
				best.iteration = iter
				return s.finish(best, target, outSize)
			}
		}

		history = append(history, p)
		mult = next
	}

	return nil, fmt.Errorf("%w after %d iterations", ErrSelectionNotConverged, maxIter)
}

func greedy(sorted []UTXO, target int64, outSize int, rate int64) pass {
	p := pass{rate: rate}
	for _, u := range sorted {
		size, known := u.InputSize()
		p.inputs = append(p.inputs, u)
		p.total += u.Value
		p.inSize += size
		if !known {
			p.unknown++
		}
		if p.total >= target+estimateFee(p.inSize, outSize, rate) {
			break
		}
	}
	return p
}

func estimateFee(inSize, outSize int, rate int64) int64 {
	return int64(inSize+outSize+TxOverhead) * rate
}

func (s *Selector) finish(p pass, target int64, outSize int) (*Selection, error) {
	fee := estimateFee(p.inSize, outSize, p.rate)
	change := p.total - target - fee
	if change < 0 {
		return nil, fmt.Errorf("%w: have %d, need %d + %d fee", ErrInsufficientFunds, p.total, target, fee)
	}
	if p.unknown > 0 {
		s.logger().Warn("input size estimate incomplete", "unknown_inputs", p.unknown)
	}
	s.logger().Debug("selection converged", "iterations", p.iteration, "inputs", len(p.inputs),
		"fee_rate", p.rate, "fee", fee, "change", change)

	return &Selection{
		Inputs:        p.inputs,
		Fee:           fee,
		Change:        change,
		FeeRate:       p.rate,
		Iterations:    p.iteration,
		UnknownInputs: p.unknown,
	}, nil
}

func (s *Selector) logger() hclog.Logger {
	if s == nil || s.Logger == nil {
		return hclog.NewNullLogger()
	}
	return s.Logger
}

// SortUTXOs returns a copy of utxos ordered by value, largest first. Ties
// keep their original order.
func SortUTXOs(utxos []UTXO) []UTXO {
	sorted := make([]UTXO, len(utxos))
	copy(sorted, utxos)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Value > sorted[j].Value
	})
	return sorted
}
