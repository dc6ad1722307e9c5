package storage

import (
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"

	"github.com/SkenaFi/skena-sc/protocol/lending"
)

// marketRecord is the RLP layout of a persisted market.
type marketRecord struct {
	TotalSupplyAssets *big.Int
	TotalSupplyShares *big.Int
	TotalBorrowAssets *big.Int
	TotalBorrowShares *big.Int
	ReserveInterest   *big.Int
	LastAccrued       uint64
}

// accountRecord is the RLP layout of a persisted user account.
type accountRecord struct {
	Address      common.Address
	SupplyShares *big.Int
	BorrowShares *big.Int
	Collateral   *big.Int
}

// PoolStore persists one pool's ledger in a key-value database with RLP
// encoding. It implements lending.State: loads return detached copies, so
// nothing a router mutates becomes durable before the matching Put.
type PoolStore struct {
	db     Database
	poolID string
}

// NewPoolStore binds a store to one pool's keyspace.
func NewPoolStore(db Database, poolID string) *PoolStore {
	return &PoolStore{db: db, poolID: poolID}
}

func (s *PoolStore) marketKey() []byte {
	return []byte("skena/market/" + s.poolID)
}

func (s *PoolStore) accountKey(addr common.Address) []byte {
	return append([]byte("skena/acct/"+s.poolID+"/"), addr.Bytes()...)
}

// Market loads the pool's market, nil when none has been stored yet.
func (s *PoolStore) Market() (*lending.Market, error) {
	raw, err := s.db.Get(s.marketKey())
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var record marketRecord
	if err := rlp.DecodeBytes(raw, &record); err != nil {
		return nil, err
	}
	return &lending.Market{
		TotalSupplyAssets: record.TotalSupplyAssets,
		TotalSupplyShares: record.TotalSupplyShares,
		TotalBorrowAssets: record.TotalBorrowAssets,
		TotalBorrowShares: record.TotalBorrowShares,
		ReserveInterest:   record.ReserveInterest,
		LastAccrued:       record.LastAccrued,
	}, nil
}

// PutMarket persists the pool's market totals.
func (s *PoolStore) PutMarket(market *lending.Market) error {
	if market == nil {
		return nil
	}
	market.EnsureDefaults()
	raw, err := rlp.EncodeToBytes(&marketRecord{
		TotalSupplyAssets: market.TotalSupplyAssets,
		TotalSupplyShares: market.TotalSupplyShares,
		TotalBorrowAssets: market.TotalBorrowAssets,
		TotalBorrowShares: market.TotalBorrowShares,
		ReserveInterest:   market.ReserveInterest,
		LastAccrued:       market.LastAccrued,
	})
	if err != nil {
		return err
	}
	return s.db.Put(s.marketKey(), raw)
}

// Account loads a user's ledger entries, nil when absent.
func (s *PoolStore) Account(addr common.Address) (*lending.UserAccount, error) {
	raw, err := s.db.Get(s.accountKey(addr))
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var record accountRecord
	if err := rlp.DecodeBytes(raw, &record); err != nil {
		return nil, err
	}
	return &lending.UserAccount{
		Address:      record.Address,
		SupplyShares: record.SupplyShares,
		BorrowShares: record.BorrowShares,
		Collateral:   record.Collateral,
	}, nil
}

// PutAccount persists a user's ledger entries.
func (s *PoolStore) PutAccount(account *lending.UserAccount) error {
	if account == nil {
		return nil
	}
	account.EnsureDefaults()
	raw, err := rlp.EncodeToBytes(&accountRecord{
		Address:      account.Address,
		SupplyShares: account.SupplyShares,
		BorrowShares: account.BorrowShares,
		Collateral:   account.Collateral,
	})
	if err != nil {
		return err
	}
	return s.db.Put(s.accountKey(account.Address), raw)
}
