package eth

import (
	"errors"
	"math/big"
)

var ErrInvalidFeeArgs = errors.New("eth: invalid fee args")

// InitialFees prices a fresh transaction. The tip is the larger of the
// node's suggestion and floor, and the fee cap leaves room for the base fee
// to double before the transaction prices out:
//
//	tip    = max(suggested, floor)
//	feeCap = 2*baseFee + tip
func InitialFees(baseFee, suggested, floor *big.Int) (tip, feeCap *big.Int, err error) {
	for _, v := range []*big.Int{baseFee, suggested, floor} {
		if v == nil || v.Sign() < 0 {
			return nil, nil, ErrInvalidFeeArgs
		}
	}

	tip = new(big.Int).Set(suggested)
	if tip.Cmp(floor) < 0 {
		tip.Set(floor)
	}

	feeCap = new(big.Int).Lsh(baseFee, 1)
	feeCap.Add(feeCap, tip)
	return tip, feeCap, nil
}

// ReplacementFees reprices a stuck transaction. The pool only accepts a
// replacement priced sufficiently above the original, and a pure percentage
// bump rounds away on small values, so each cap also rises by at least the
// given absolute step. The fee cap never ends up below the tip.
func ReplacementFees(tip, feeCap *big.Int, bumpPercent int, minTipStep, minFeeStep *big.Int) (newTip, newFeeCap *big.Int, err error) {
	if tip == nil || feeCap == nil || tip.Sign() < 0 || feeCap.Sign() < 0 {
		return nil, nil, ErrInvalidFeeArgs
	}
	if bumpPercent <= 0 {
		return nil, nil, ErrInvalidFeeArgs
	}
	if (minTipStep != nil && minTipStep.Sign() < 0) || (minFeeStep != nil && minFeeStep.Sign() < 0) {
		return nil, nil, ErrInvalidFeeArgs
	}

	newTip = bumped(tip, bumpPercent, minTipStep)
	newFeeCap = bumped(feeCap, bumpPercent, minFeeStep)
	if newFeeCap.Cmp(newTip) < 0 {
		newFeeCap = new(big.Int).Set(newTip)
	}
	return newTip, newFeeCap, nil
}

func bumped(v *big.Int, percent int, minStep *big.Int) *big.Int {
	out := new(big.Int).Mul(v, big.NewInt(int64(100+percent)))
	out.Div(out, big.NewInt(100))
	if minStep != nil && minStep.Sign() > 0 {
		if floor := new(big.Int).Add(v, minStep); out.Cmp(floor) < 0 {
			out = floor
		}
	}
	return out
}
