package risk

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/SkenaFi/skena-sc/oracle"
	"github.com/SkenaFi/skena-sc/protocol/position"
	"github.com/SkenaFi/skena-sc/token"
)

// ErrUnhealthy is returned by the gating entry point when a position's borrow
// value exceeds its collateral value or its LTV-scaled maximum borrow.
var ErrUnhealthy = errors.New("risk: position is liquidatable")

var wad = big.NewInt(1_000_000_000_000_000_000)

// Report carries the evaluator's computed values. All values are normalised
// to a common 18-decimal USD-like unit.
type Report struct {
	Liquidatable    bool
	BorrowValue     *big.Int
	CollateralValue *big.Int
	MaxBorrow       *big.Int
}

// Evaluator is the stateless risk function shared by the router's hard gate
// and the liquidation entry points. Prices and balances are read fresh on
// every call; nothing is cached between invocations.
type Evaluator struct {
	feeds *oracle.Registry
	book  token.Book
}

// NewEvaluator constructs an evaluator over the injected feed registry and
// custody book.
func NewEvaluator(feeds *oracle.Registry, book token.Book) *Evaluator {
	return &Evaluator{feeds: feeds, book: book}
}

// Evaluate computes collateral value, borrow value and liquidatability for a
// position. It never treats an unhealthy position as an error; callers that
// need a gate use RequireHealthy, which runs this exact computation.
func (e *Evaluator) Evaluate(borrowToken common.Address, pos *position.Position, ltv, totalBorrowAssets, totalBorrowShares, userBorrowShares *big.Int) (Report, error) {
	collateralValue := big.NewInt(0)
	// The full historical token list is walked, zero-balance entries
	// included; only the placeholder slot is skipped.
	for _, asset := range pos.Tokens() {
		if asset == (common.Address{}) {
			continue
		}
		balance := e.book.BalanceOf(asset, pos.Address())
		if balance.Sign() == 0 {
			continue
		}
		price, err := e.feeds.NormalizedPrice(asset)
		if err != nil {
			return Report{}, err
		}
		decimals, err := e.feeds.TokenDecimals(asset)
		if err != nil {
			return Report{}, err
		}
		value := new(big.Int).Mul(balance, price)
		value.Quo(value, oracle.Pow10(decimals))
		collateralValue.Add(collateralValue, value)
	}

	borrowed := big.NewInt(0)
	if userBorrowShares != nil && userBorrowShares.Sign() > 0 && totalBorrowShares != nil && totalBorrowShares.Sign() > 0 {
		borrowed = new(big.Int).Mul(userBorrowShares, totalBorrowAssets)
		borrowed.Quo(borrowed, totalBorrowShares)
	}

	borrowValue := big.NewInt(0)
	if borrowed.Sign() > 0 {
		price, err := e.feeds.NormalizedPrice(borrowToken)
		if err != nil {
			return Report{}, err
		}
		decimals, err := e.feeds.TokenDecimals(borrowToken)
		if err != nil {
			return Report{}, err
		}
		borrowValue = new(big.Int).Mul(borrowed, price)
		borrowValue.Quo(borrowValue, oracle.Pow10(decimals))
	}

	maxBorrow := new(big.Int).Mul(collateralValue, ltv)
	maxBorrow.Quo(maxBorrow, wad)

	liquidatable := borrowValue.Cmp(collateralValue) > 0 || borrowValue.Cmp(maxBorrow) > 0
	return Report{
		Liquidatable:    liquidatable,
		BorrowValue:     borrowValue,
		CollateralValue: collateralValue,
		MaxBorrow:       maxBorrow,
	}, nil
}

// RequireHealthy is the gating form of Evaluate: it returns ErrUnhealthy when
// the position is liquidatable and propagates oracle failures unchanged.
func (e *Evaluator) RequireHealthy(borrowToken common.Address, pos *position.Position, ltv, totalBorrowAssets, totalBorrowShares, userBorrowShares *big.Int) error {
	report, err := e.Evaluate(borrowToken, pos, ltv, totalBorrowAssets, totalBorrowShares, userBorrowShares)
	if err != nil {
		return err
	}
	if report.Liquidatable {
		return fmt.Errorf("%w: borrow value %s, max borrow %s", ErrUnhealthy, report.BorrowValue, report.MaxBorrow)
	}
	return nil
}
