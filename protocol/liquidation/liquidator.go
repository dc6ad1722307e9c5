package liquidation

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/SkenaFi/skena-sc/dex"
	"github.com/SkenaFi/skena-sc/oracle"
	"github.com/SkenaFi/skena-sc/protocol/lending"
	"github.com/SkenaFi/skena-sc/protocol/risk"
	"github.com/SkenaFi/skena-sc/token"
)

var (
	ErrInvalidAmount    = errors.New("liquidation: amount must be positive")
	ErrIncentiveTooHigh = errors.New("liquidation: incentive exceeds 5000 bps")
	ErrNotLiquidatable  = errors.New("liquidation: position is healthy")
	ErrRepayTooLarge    = errors.New("liquidation: repay exceeds half of outstanding debt")
	ErrNothingToSeize   = errors.New("liquidation: position holds no collateral")
)

const (
	maxIncentiveBps = 5_000
	bpsDenominator  = 10_000
	// dexSlippageBps is the fixed tolerance applied against the oracle
	// estimate on the DEX path.
	dexSlippageBps = 1_000
)

// Liquidator executes the two liquidation strategies against a router and
// the borrower's position vault. Its own address acts as interim custody on
// the DEX path and must be authorized as a withdrawer on positions and as a
// liquidation authority on the router.
type Liquidator struct {
	addr    common.Address
	eval    *risk.Evaluator
	feeds   *oracle.Registry
	quoter  *dex.Quoter
	venue   dex.Venue
	book    token.Book
	feeTier uint32
}

// NewLiquidator wires a liquidator with its collaborators.
func NewLiquidator(addr common.Address, eval *risk.Evaluator, feeds *oracle.Registry, venue dex.Venue, book token.Book) *Liquidator {
	return &Liquidator{
		addr:   addr,
		eval:   eval,
		feeds:  feeds,
		quoter: dex.NewQuoter(feeds),
		venue:  venue,
		book:   book,
	}
}

// Address returns the liquidator's custody address.
func (l *Liquidator) Address() common.Address { return l.addr }

// LiquidateByDEX closes up to half the position's collateral value worth of
// debt by seizing collateral, swapping it on the venue and writing the
// proceeds down against the borrower's debt. Swap surplus beyond the repaid
// debt is forwarded to the protocol treasury.
func (l *Liquidator) LiquidateByDEX(borrower common.Address, router *lending.Router, incentiveBps uint64) (*big.Int, error) {
	if incentiveBps > maxIncentiveBps {
		return nil, fmt.Errorf("%w: %d", ErrIncentiveTooHigh, incentiveBps)
	}
	pos := router.PositionOf(borrower)
	if pos == nil {
		return nil, lending.ErrNoPosition
	}
	account, err := router.AccountOf(borrower)
	if err != nil {
		return nil, err
	}
	market, err := router.Snapshot()
	if err != nil {
		return nil, err
	}
	report, err := l.eval.Evaluate(router.BorrowToken(), pos, router.LTV(), market.TotalBorrowAssets, market.TotalBorrowShares, account.BorrowShares)
	if err != nil {
		return nil, err
	}
	if !report.Liquidatable {
		return nil, ErrNotLiquidatable
	}

	// A single call can close at most half the collateral value worth of
	// debt; large liquidations take multiple calls.
	debtValue := new(big.Int).Set(report.BorrowValue)
	halfCollateral := new(big.Int).Quo(report.CollateralValue, big.NewInt(2))
	if debtValue.Cmp(halfCollateral) > 0 {
		debtValue = halfCollateral
	}
	if debtValue.Sign() <= 0 {
		return nil, ErrNothingToSeize
	}

	collateralToken := router.CollateralToken()
	borrowToken := router.BorrowToken()

	seizeValue := new(big.Int).Mul(debtValue, big.NewInt(bpsDenominator+int64(incentiveBps)))
	seizeValue.Quo(seizeValue, big.NewInt(bpsDenominator))
	seizeAmount, err := l.amountFromValue(collateralToken, seizeValue)
	if err != nil {
		return nil, err
	}
	available := pos.Balance(collateralToken)
	if seizeAmount.Cmp(available) > 0 {
		seizeAmount = available
	}
	if seizeAmount.Sign() <= 0 {
		return nil, ErrNothingToSeize
	}

	if err := pos.Withdraw(l.addr, collateralToken, seizeAmount, l.addr); err != nil {
		return nil, err
	}

	minOut, err := l.minOutWithFallback(collateralToken, borrowToken, seizeAmount)
	if err != nil {
		return nil, err
	}
	out, err := l.venue.SwapExactInput(collateralToken, borrowToken, l.feeTier, seizeAmount, minOut, l.addr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", dex.ErrSwapFailed, err)
	}

	debtAmount, err := l.amountFromValue(borrowToken, debtValue)
	if err != nil {
		return nil, err
	}
	repaid := new(big.Int).Set(out)
	if repaid.Cmp(debtAmount) > 0 {
		repaid = new(big.Int).Set(debtAmount)
	}

	if err := l.book.Transfer(borrowToken, l.addr, router.LendingPool(), repaid); err != nil {
		return nil, err
	}
	if err := router.LiquidatePosition(l.addr, borrower, repaid); err != nil {
		return nil, err
	}

	surplus := new(big.Int).Sub(out, repaid)
	if surplus.Sign() > 0 {
		if err := l.book.Transfer(borrowToken, l.addr, router.Treasury(), surplus); err != nil {
			return nil, err
		}
	}
	return repaid, nil
}

// LiquidateByMEV lets an external buyer repay up to half the borrower's debt
// in the borrow token and receive discounted collateral directly. No swap
// occurs inside the protocol; the caller carries the execution-price risk.
func (l *Liquidator) LiquidateByMEV(caller, borrower common.Address, router *lending.Router, repayAmount *big.Int, incentiveBps uint64) (*big.Int, error) {
	if repayAmount == nil || repayAmount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	if incentiveBps > maxIncentiveBps {
		return nil, fmt.Errorf("%w: %d", ErrIncentiveTooHigh, incentiveBps)
	}
	pos := router.PositionOf(borrower)
	if pos == nil {
		return nil, lending.ErrNoPosition
	}
	account, err := router.AccountOf(borrower)
	if err != nil {
		return nil, err
	}
	market, err := router.Snapshot()
	if err != nil {
		return nil, err
	}
	report, err := l.eval.Evaluate(router.BorrowToken(), pos, router.LTV(), market.TotalBorrowAssets, market.TotalBorrowShares, account.BorrowShares)
	if err != nil {
		return nil, err
	}
	if !report.Liquidatable {
		return nil, ErrNotLiquidatable
	}

	// Half-position cap computed directly from shares.
	debt := big.NewInt(0)
	if market.TotalBorrowShares.Sign() > 0 {
		debt = new(big.Int).Mul(account.BorrowShares, market.TotalBorrowAssets)
		debt.Quo(debt, market.TotalBorrowShares)
	}
	doubled := new(big.Int).Mul(repayAmount, big.NewInt(2))
	if doubled.Cmp(debt) > 0 {
		return nil, fmt.Errorf("%w: repay %s, debt %s", ErrRepayTooLarge, repayAmount, debt)
	}

	collateralToken := router.CollateralToken()
	borrowToken := router.BorrowToken()

	repayValue, err := l.valueOfAmount(borrowToken, repayAmount)
	if err != nil {
		return nil, err
	}
	giveValue := new(big.Int).Mul(repayValue, big.NewInt(bpsDenominator+int64(incentiveBps)))
	giveValue.Quo(giveValue, big.NewInt(bpsDenominator))
	collateralToGive, err := l.amountFromValue(collateralToken, giveValue)
	if err != nil {
		return nil, err
	}
	available := pos.Balance(collateralToken)
	if collateralToGive.Cmp(available) > 0 {
		collateralToGive = available
	}
	if collateralToGive.Sign() <= 0 {
		return nil, ErrNothingToSeize
	}

	// Pull the repayment before any collateral leaves the vault.
	if err := l.book.Transfer(borrowToken, caller, l.addr, repayAmount); err != nil {
		return nil, err
	}
	if err := pos.Withdraw(l.addr, collateralToken, collateralToGive, caller); err != nil {
		refundErr := l.book.Transfer(borrowToken, l.addr, caller, repayAmount)
		if refundErr != nil {
			return nil, fmt.Errorf("%v: refund failed: %v", err, refundErr)
		}
		return nil, err
	}

	if err := l.book.Transfer(borrowToken, l.addr, router.LendingPool(), repayAmount); err != nil {
		return nil, err
	}
	if err := router.LiquidatePosition(l.addr, borrower, repayAmount); err != nil {
		return nil, err
	}
	return collateralToGive, nil
}

// minOutWithFallback derives the DEX path's minimum acceptable output from
// the oracle estimate with the fixed 10% tolerance. Only when the estimate
// itself fails for lack of a usable feed does the decimals-only ratio apply.
func (l *Liquidator) minOutWithFallback(tokenIn, tokenOut common.Address, amountIn *big.Int) (*big.Int, error) {
	expected, err := l.quoter.ExpectedOut(tokenIn, tokenOut, amountIn)
	if err != nil {
		if !errors.Is(err, oracle.ErrNoFeed) && !errors.Is(err, oracle.ErrStalePrice) {
			return nil, err
		}
		expected, err = l.quoter.FallbackOut(tokenIn, tokenOut, amountIn)
		if err != nil {
			return nil, err
		}
	}
	return dex.MinOut(expected, dexSlippageBps)
}

// valueOfAmount converts a token amount to the common 18-decimal value unit.
func (l *Liquidator) valueOfAmount(asset common.Address, amount *big.Int) (*big.Int, error) {
	price, err := l.feeds.NormalizedPrice(asset)
	if err != nil {
		return nil, err
	}
	decimals, err := l.feeds.TokenDecimals(asset)
	if err != nil {
		return nil, err
	}
	value := new(big.Int).Mul(amount, price)
	return value.Quo(value, oracle.Pow10(decimals)), nil
}

// amountFromValue converts an 18-decimal value back into token units.
func (l *Liquidator) amountFromValue(asset common.Address, value *big.Int) (*big.Int, error) {
	price, err := l.feeds.NormalizedPrice(asset)
	if err != nil {
		return nil, err
	}
	decimals, err := l.feeds.TokenDecimals(asset)
	if err != nil {
		return nil, err
	}
	amount := new(big.Int).Mul(value, oracle.Pow10(decimals))
	return amount.Quo(amount, price), nil
}
