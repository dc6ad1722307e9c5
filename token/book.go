package token

import (
	"errors"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

var (
	// ErrInvalidAmount rejects nil, zero or negative transfer amounts.
	ErrInvalidAmount = errors.New("token: amount must be positive")
	// ErrInsufficientBalance rejects moves exceeding the holder's balance.
	ErrInsufficientBalance = errors.New("token: insufficient balance")
)

// Book is the custody ledger the protocol moves token value through. Actual
// ERC-20 transfer mechanics live outside the core; the book only records who
// holds how much of which token.
type Book interface {
	BalanceOf(token, holder common.Address) *big.Int
	Transfer(token, from, to common.Address, amount *big.Int) error
	Mint(token common.Address, to common.Address, amount *big.Int) error
	Burn(token common.Address, from common.Address, amount *big.Int) error
}

// MemBook is an in-memory Book used by tests and single-process wiring.
type MemBook struct {
	mu       sync.RWMutex
	balances map[common.Address]map[common.Address]*big.Int
}

// NewMemBook constructs an empty in-memory balance book.
func NewMemBook() *MemBook {
	return &MemBook{balances: make(map[common.Address]map[common.Address]*big.Int)}
}

// BalanceOf returns a copy of the holder's balance for the token.
func (b *MemBook) BalanceOf(token, holder common.Address) *big.Int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	holders, ok := b.balances[token]
	if !ok {
		return big.NewInt(0)
	}
	balance, ok := holders[holder]
	if !ok {
		return big.NewInt(0)
	}
	return new(big.Int).Set(balance)
}

// Transfer moves amount of token from one holder to another.
func (b *MemBook) Transfer(token, from, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	fromBalance := b.balance(token, from)
	if fromBalance.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	fromBalance.Sub(fromBalance, amount)
	b.balance(token, to).Add(b.balance(token, to), amount)
	return nil
}

// Mint credits newly bridged or seeded value to a holder.
func (b *MemBook) Mint(token common.Address, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.balance(token, to).Add(b.balance(token, to), amount)
	return nil
}

// Burn removes value from a holder, used when value leaves via the bridge.
func (b *MemBook) Burn(token common.Address, from common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	balance := b.balance(token, from)
	if balance.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	balance.Sub(balance, amount)
	return nil
}

func (b *MemBook) balance(token, holder common.Address) *big.Int {
	holders, ok := b.balances[token]
	if !ok {
		holders = make(map[common.Address]*big.Int)
		b.balances[token] = holders
	}
	balance, ok := holders[holder]
	if !ok {
		balance = big.NewInt(0)
		holders[holder] = balance
	}
	return balance
}
