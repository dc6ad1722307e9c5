package position

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/SkenaFi/skena-sc/dex"
	"github.com/SkenaFi/skena-sc/oracle"
	"github.com/SkenaFi/skena-sc/token"
)

var (
	errUnauthorized        = errors.New("position: caller not authorized")
	errInvalidAmount       = errors.New("position: amount must be positive")
	errSameToken           = errors.New("position: tokenIn equals tokenOut")
	errInsufficientBalance = errors.New("position: insufficient balance")
	errRepayShortfall      = errors.New("position: swap output below required repay amount")
)

// ErrUnauthorized reports a caller outside the operation's allow-list.
var ErrUnauthorized = errUnauthorized

// ErrRepayShortfall reports that a repay-with-swap produced less borrow token
// than the requested repayment.
var ErrRepayShortfall = errRepayShortfall

// Position is a user's per-pool vault. It custodies collateral and any
// auxiliary tokens the user has swapped into, and keeps an append-only
// registry of every token it has ever held so health checks can enumerate
// collateral value. Slot zero of the registry is a placeholder and is skipped
// during enumeration; a token once listed stays listed even at zero balance.
type Position struct {
	addr        common.Address
	owner       common.Address
	pool        common.Address
	router      common.Address
	borrowToken common.Address
	feeTier     uint32

	tokens []common.Address
	index  map[common.Address]int

	book        token.Book
	feeds       *oracle.Registry
	venue       dex.Venue
	quoter      *dex.Quoter
	withdrawers map[common.Address]struct{}
}

// New constructs a position vault for owner inside the given pool. The pool's
// collateral token is seeded into the token registry at creation.
func New(owner, pool, router, collateralToken, borrowToken common.Address, book token.Book, feeds *oracle.Registry, venue dex.Venue) *Position {
	p := &Position{
		addr:        DeriveAddress(owner, pool),
		owner:       owner,
		pool:        pool,
		router:      router,
		borrowToken: borrowToken,
		tokens:      []common.Address{{}},
		index:       make(map[common.Address]int),
		book:        book,
		feeds:       feeds,
		venue:       venue,
		quoter:      dex.NewQuoter(feeds),
		withdrawers: make(map[common.Address]struct{}),
	}
	p.RegisterToken(collateralToken)
	return p
}

// DeriveAddress computes the deterministic custody address for an owner's
// vault within a pool.
func DeriveAddress(owner, pool common.Address) common.Address {
	digest := ethcrypto.Keccak256(owner.Bytes(), pool.Bytes(), []byte("skena/position"))
	return common.BytesToAddress(digest[12:])
}

// Address returns the vault's custody address.
func (p *Position) Address() common.Address { return p.addr }

// Owner returns the vault owner.
func (p *Position) Owner() common.Address { return p.owner }

// Tokens returns the full historical token registry, placeholder slot
// included. Callers enumerate it and skip the zero address.
func (p *Position) Tokens() []common.Address {
	out := make([]common.Address, len(p.tokens))
	copy(out, p.tokens)
	return out
}

// Balance reports the vault's custody balance for a token.
func (p *Position) Balance(asset common.Address) *big.Int {
	return p.book.BalanceOf(asset, p.addr)
}

// RegisterToken appends a token to the registry. Re-registering an already
// listed token is a no-op; tokens are never removed.
func (p *Position) RegisterToken(asset common.Address) {
	if asset == (common.Address{}) {
		return
	}
	if _, ok := p.index[asset]; ok {
		return
	}
	p.index[asset] = len(p.tokens)
	p.tokens = append(p.tokens, asset)
}

// AuthorizeWithdrawer adds an address to the set allowed to move value out of
// the vault, used for the pool's registered liquidation authorities.
func (p *Position) AuthorizeWithdrawer(addr common.Address) {
	p.withdrawers[addr] = struct{}{}
}

func (p *Position) canWithdraw(caller common.Address) bool {
	if caller == p.pool || caller == p.router {
		return true
	}
	_, ok := p.withdrawers[caller]
	return ok
}

func (p *Position) canSwap(caller common.Address) bool {
	// The vault's own address is authorized so repay-with-swap can route
	// through SwapToken when invoked directly on the position.
	return caller == p.owner || caller == p.pool || caller == p.addr
}

// Withdraw moves amount of asset out of the vault to recipient. Only the pool
// facade and registered liquidation authorities may move custody out, since
// they are the entities that have already passed a health decision.
func (p *Position) Withdraw(caller, asset common.Address, amount *big.Int, recipient common.Address) error {
	if !p.canWithdraw(caller) {
		return fmt.Errorf("%w: %s", errUnauthorized, caller.Hex())
	}
	if amount == nil || amount.Sign() <= 0 {
		return errInvalidAmount
	}
	if p.book.BalanceOf(asset, p.addr).Cmp(amount) < 0 {
		return errInsufficientBalance
	}
	return p.book.Transfer(asset, p.addr, recipient, amount)
}

// SwapToken executes a single-hop exact-input swap of vault funds. Both
// tokens are registered into the vault's token list, the expected output is
// derived from price feeds and the supplied slippage tolerance bounds the
// acceptable execution.
func (p *Position) SwapToken(caller, tokenIn, tokenOut common.Address, amountIn *big.Int, slippageBps uint64) (*big.Int, error) {
	if !p.canSwap(caller) {
		return nil, fmt.Errorf("%w: %s", errUnauthorized, caller.Hex())
	}
	if amountIn == nil || amountIn.Sign() <= 0 {
		return nil, errInvalidAmount
	}
	if tokenIn == tokenOut {
		return nil, errSameToken
	}
	if _, err := p.feeds.FeedFor(tokenIn); err != nil {
		return nil, err
	}
	if _, err := p.feeds.FeedFor(tokenOut); err != nil {
		return nil, err
	}
	if p.book.BalanceOf(tokenIn, p.addr).Cmp(amountIn) < 0 {
		return nil, errInsufficientBalance
	}

	p.RegisterToken(tokenIn)
	p.RegisterToken(tokenOut)

	expected, err := p.quoter.ExpectedOut(tokenIn, tokenOut, amountIn)
	if err != nil {
		return nil, err
	}
	minOut, err := dex.MinOut(expected, slippageBps)
	if err != nil {
		return nil, err
	}
	out, err := p.venue.SwapExactInput(tokenIn, tokenOut, p.feeTier, amountIn, minOut, p.addr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", dex.ErrSwapFailed, err)
	}
	return out, nil
}

// RepayWithToken delivers exactly amount of the pool's borrow token to the
// pool facade, funded from the vault's balance of the selected token. A
// non-borrow token is first swapped in full; output beyond the repayment is
// swapped back to the original token. A shortfall unwinds the swap and fails.
func (p *Position) RepayWithToken(caller common.Address, amount *big.Int, asset common.Address, slippageBps uint64) error {
	if !p.canWithdraw(caller) {
		return fmt.Errorf("%w: %s", errUnauthorized, caller.Hex())
	}
	if amount == nil || amount.Sign() <= 0 {
		return errInvalidAmount
	}

	if asset == p.borrowToken {
		if p.book.BalanceOf(asset, p.addr).Cmp(amount) < 0 {
			return errInsufficientBalance
		}
		return p.book.Transfer(asset, p.addr, p.pool, amount)
	}

	available := p.book.BalanceOf(asset, p.addr)
	if available.Sign() <= 0 {
		return errInsufficientBalance
	}
	// The entire balance of the selected token is swapped, not just the
	// requested amount; the remainder is swapped back below.
	out, err := p.SwapToken(p.addr, asset, p.borrowToken, available, slippageBps)
	if err != nil {
		return err
	}
	if out.Cmp(amount) < 0 {
		if _, backErr := p.SwapToken(p.addr, p.borrowToken, asset, out, slippageBps); backErr != nil {
			return fmt.Errorf("%w: unwind after shortfall failed: %v", errRepayShortfall, backErr)
		}
		return errRepayShortfall
	}
	if err := p.book.Transfer(p.borrowToken, p.addr, p.pool, amount); err != nil {
		return err
	}
	remainder := new(big.Int).Sub(out, amount)
	if remainder.Sign() > 0 {
		if _, err := p.SwapToken(p.addr, p.borrowToken, asset, remainder, slippageBps); err != nil {
			return err
		}
	}
	return nil
}
