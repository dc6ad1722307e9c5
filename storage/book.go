package storage

import (
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"

	"github.com/SkenaFi/skena-sc/token"
)

// BalanceBook is a token.Book persisted in a key-value database so custody
// survives restarts alongside the pool ledger.
type BalanceBook struct {
	mu sync.Mutex
	db Database
}

// NewBalanceBook constructs a persistent balance book.
func NewBalanceBook(db Database) *BalanceBook {
	return &BalanceBook{db: db}
}

func balanceKey(asset, holder common.Address) []byte {
	key := append([]byte("skena/bal/"), asset.Bytes()...)
	key = append(key, '/')
	return append(key, holder.Bytes()...)
}

// BalanceOf returns the holder's balance for the token.
func (b *BalanceBook) BalanceOf(asset, holder common.Address) *big.Int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.load(asset, holder)
}

// Transfer moves amount of token between holders.
func (b *BalanceBook) Transfer(asset, from, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return token.ErrInvalidAmount
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	fromBalance := b.load(asset, from)
	if fromBalance.Cmp(amount) < 0 {
		return token.ErrInsufficientBalance
	}
	if err := b.store(asset, from, new(big.Int).Sub(fromBalance, amount)); err != nil {
		return err
	}
	toBalance := b.load(asset, to)
	return b.store(asset, to, toBalance.Add(toBalance, amount))
}

// Mint credits bridged or seeded value to a holder.
func (b *BalanceBook) Mint(asset common.Address, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return token.ErrInvalidAmount
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	balance := b.load(asset, to)
	return b.store(asset, to, balance.Add(balance, amount))
}

// Burn removes value from a holder when it leaves via the bridge.
func (b *BalanceBook) Burn(asset common.Address, from common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return token.ErrInvalidAmount
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	balance := b.load(asset, from)
	if balance.Cmp(amount) < 0 {
		return token.ErrInsufficientBalance
	}
	return b.store(asset, from, balance.Sub(balance, amount))
}

func (b *BalanceBook) load(asset, holder common.Address) *big.Int {
	raw, err := b.db.Get(balanceKey(asset, holder))
	if err != nil {
		return big.NewInt(0)
	}
	balance := new(big.Int)
	if err := rlp.DecodeBytes(raw, balance); err != nil {
		return big.NewInt(0)
	}
	return balance
}

func (b *BalanceBook) store(asset, holder common.Address, balance *big.Int) error {
	raw, err := rlp.EncodeToBytes(balance)
	if err != nil {
		return err
	}
	return b.db.Put(balanceKey(asset, holder), raw)
}
