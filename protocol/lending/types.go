package lending

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Market captures the share-based ledger totals for one collateral/borrow
// token pair. Amounts are big integers in the borrow token's smallest unit;
// the assets/shares ratio only grows through interest accrual or stays
// constant through proportional mint and burn.
type Market struct {
	TotalSupplyAssets *big.Int
	TotalSupplyShares *big.Int
	TotalBorrowAssets *big.Int
	TotalBorrowShares *big.Int
	// ReserveInterest accumulates the protocol's share of accrued interest.
	// It stays inside the pool as equity rather than a claimable balance.
	ReserveInterest *big.Int
	// LastAccrued is the unix timestamp of the last interest application.
	LastAccrued uint64
}

// EnsureDefaults populates nil big.Int fields so decoded markets are safe to
// operate on.
func (m *Market) EnsureDefaults() {
	if m.TotalSupplyAssets == nil {
		m.TotalSupplyAssets = big.NewInt(0)
	}
	if m.TotalSupplyShares == nil {
		m.TotalSupplyShares = big.NewInt(0)
	}
	if m.TotalBorrowAssets == nil {
		m.TotalBorrowAssets = big.NewInt(0)
	}
	if m.TotalBorrowShares == nil {
		m.TotalBorrowShares = big.NewInt(0)
	}
	if m.ReserveInterest == nil {
		m.ReserveInterest = big.NewInt(0)
	}
}

// UserAccount maintains one participant's ledger entries inside a pool.
type UserAccount struct {
	Address common.Address
	// SupplyShares is the proportional claim on pooled liquidity.
	SupplyShares *big.Int
	// BorrowShares is the proportional claim on pooled debt.
	BorrowShares *big.Int
	// Collateral tracks the pledged collateral amount. Actual custody lives
	// in the user's position vault.
	Collateral *big.Int
}

// EnsureDefaults populates nil big.Int fields on a user account.
func (u *UserAccount) EnsureDefaults() {
	if u.SupplyShares == nil {
		u.SupplyShares = big.NewInt(0)
	}
	if u.BorrowShares == nil {
		u.BorrowShares = big.NewInt(0)
	}
	if u.Collateral == nil {
		u.Collateral = big.NewInt(0)
	}
}

// State is the persistence surface the router mutates through. Loads return
// detached copies; nothing is durable until the corresponding Put, which
// gives every operation buffer-then-commit semantics.
type State interface {
	Market() (*Market, error)
	PutMarket(*Market) error
	Account(addr common.Address) (*UserAccount, error)
	PutAccount(*UserAccount) error
}
