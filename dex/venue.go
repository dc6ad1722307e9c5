package dex

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/SkenaFi/skena-sc/oracle"
)

var (
	// ErrSwapFailed wraps venue execution failures so callers can tell them
	// apart from validation errors.
	ErrSwapFailed = errors.New("dex: swap execution failed")
	// ErrSlippageBps rejects tolerances above 100%.
	ErrSlippageBps = errors.New("dex: slippage tolerance exceeds 10000 bps")
)

const bpsDenominator = 10_000

// Venue executes a single-hop exact-input swap. The payer's book balance of
// tokenIn is debited and credited with the returned amount of tokenOut.
// Multi-hop routing is out of scope.
type Venue interface {
	SwapExactInput(tokenIn, tokenOut common.Address, feeTier uint32, amountIn, minAmountOut *big.Int, payer common.Address) (*big.Int, error)
}

// Quoter derives expected swap output from registered price feeds. It backs
// the liquidation and repay paths' minimum-output protection.
type Quoter struct {
	feeds *oracle.Registry
}

// NewQuoter constructs a quoter over the supplied feed registry.
func NewQuoter(feeds *oracle.Registry) *Quoter {
	return &Quoter{feeds: feeds}
}

// ExpectedOut estimates the output of swapping amountIn of tokenIn for
// tokenOut using oracle prices normalised to 18 decimals:
//
//	out = amountIn * priceIn/10^decIn * 10^decOut / priceOut
func (q *Quoter) ExpectedOut(tokenIn, tokenOut common.Address, amountIn *big.Int) (*big.Int, error) {
	if amountIn == nil || amountIn.Sign() <= 0 {
		return big.NewInt(0), nil
	}
	priceIn, err := q.feeds.NormalizedPrice(tokenIn)
	if err != nil {
		return nil, err
	}
	priceOut, err := q.feeds.NormalizedPrice(tokenOut)
	if err != nil {
		return nil, err
	}
	decIn, err := q.feeds.TokenDecimals(tokenIn)
	if err != nil {
		return nil, err
	}
	decOut, err := q.feeds.TokenDecimals(tokenOut)
	if err != nil {
		return nil, err
	}
	valueIn := new(big.Int).Mul(amountIn, priceIn)
	valueIn.Quo(valueIn, oracle.Pow10(decIn))
	out := new(big.Int).Mul(valueIn, oracle.Pow10(decOut))
	return out.Quo(out, priceOut), nil
}

// FallbackOut estimates output from token decimals alone, a 1:1 value ratio
// used only when the oracle-based estimate is unavailable.
func (q *Quoter) FallbackOut(tokenIn, tokenOut common.Address, amountIn *big.Int) (*big.Int, error) {
	decIn, err := q.feeds.TokenDecimals(tokenIn)
	if err != nil {
		return nil, err
	}
	decOut, err := q.feeds.TokenDecimals(tokenOut)
	if err != nil {
		return nil, err
	}
	out := new(big.Int).Mul(amountIn, oracle.Pow10(decOut))
	return out.Quo(out, oracle.Pow10(decIn)), nil
}

// MinOut applies a slippage tolerance in basis points to an expected output.
func MinOut(expected *big.Int, slippageBps uint64) (*big.Int, error) {
	if slippageBps > bpsDenominator {
		return nil, fmt.Errorf("%w: %d", ErrSlippageBps, slippageBps)
	}
	if expected == nil || expected.Sign() <= 0 {
		return big.NewInt(0), nil
	}
	out := new(big.Int).Mul(expected, big.NewInt(int64(bpsDenominator-slippageBps)))
	return out.Quo(out, big.NewInt(bpsDenominator)), nil
}
