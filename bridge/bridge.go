package bridge

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/google/uuid"
)

var (
	// ErrInvalidAmount rejects nil, zero or negative bridged amounts.
	ErrInvalidAmount = errors.New("bridge: amount must be positive")
	// ErrInsufficientCredit rejects executing more than the accumulated
	// pending balance, which is what prevents double-spending one delivery.
	ErrInsufficientCredit = errors.New("bridge: execute exceeds pending credit")
	// ErrSendFailed wraps messenger transport failures so debit-then-send
	// sequences can abort cleanly.
	ErrSendFailed = errors.New("bridge: message send failed")
)

// Payload is the application message describing an intended pool action on
// the destination chain. It rides alongside the bridged token value.
type Payload struct {
	Pool   common.Address
	User   common.Address
	Token  common.Address
	Amount *big.Int
}

// Encode serialises the payload with RLP for transport.
func (p Payload) Encode() ([]byte, error) {
	if p.Amount == nil || p.Amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	return rlp.EncodeToBytes(p)
}

// DecodePayload parses an RLP payload received from the messenger.
func DecodePayload(raw []byte) (Payload, error) {
	var p Payload
	if err := rlp.DecodeBytes(raw, &p); err != nil {
		return Payload{}, fmt.Errorf("bridge: decode payload: %w", err)
	}
	if p.Amount == nil || p.Amount.Sign() <= 0 {
		return Payload{}, ErrInvalidAmount
	}
	return p, nil
}

// Receipt acknowledges a dispatched message.
type Receipt struct {
	ID            string
	DestinationID uint64
	Fee           *big.Int
}

// NewReceipt stamps a receipt for a dispatched message.
func NewReceipt(destinationID uint64, fee *big.Int) Receipt {
	r := Receipt{ID: uuid.NewString(), DestinationID: destinationID}
	if fee != nil {
		r.Fee = new(big.Int).Set(fee)
	} else {
		r.Fee = big.NewInt(0)
	}
	return r
}

// Messenger is the send primitive of the external cross-chain transport.
// Delivery, validation and retries are the transport's concern; the core
// only requires that a returned error means nothing was dispatched.
type Messenger interface {
	Send(ctx context.Context, destinationID uint64, recipient common.Address, payload Payload, minAmount, fee *big.Int) (Receipt, error)
}

// Inbox is the destination-side pending-credit ledger. Message receipt
// credits a user's balance; a separate execute step debits it before the pool
// action is applied, which makes the two-phase delivery explicit and bounds
// every execute by what was actually received.
type Inbox struct {
	mu      sync.Mutex
	pending map[common.Address]map[common.Address]*big.Int
}

// NewInbox constructs an empty pending-credit ledger.
func NewInbox() *Inbox {
	return &Inbox{pending: make(map[common.Address]map[common.Address]*big.Int)}
}

// Credit records a received bridged amount for the user.
func (i *Inbox) Credit(user, asset common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	balance := i.balance(user, asset)
	balance.Add(balance, amount)
	return nil
}

// Debit consumes pending credit ahead of a destination-side pool operation.
// Drawing more than the accumulated balance is rejected outright.
func (i *Inbox) Debit(user, asset common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	balance := i.balance(user, asset)
	if balance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: pending %s, requested %s", ErrInsufficientCredit, balance, amount)
	}
	balance.Sub(balance, amount)
	return nil
}

// Pending reports the user's currently accumulated credit for a token.
func (i *Inbox) Pending(user, asset common.Address) *big.Int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return new(big.Int).Set(i.balance(user, asset))
}

func (i *Inbox) balance(user, asset common.Address) *big.Int {
	assets, ok := i.pending[user]
	if !ok {
		assets = make(map[common.Address]*big.Int)
		i.pending[user] = assets
	}
	balance, ok := assets[asset]
	if !ok {
		balance = big.NewInt(0)
		assets[asset] = balance
	}
	return balance
}
