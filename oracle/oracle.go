package oracle

import (
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

var (
	// ErrNoFeed indicates that no price feed has been registered for a token.
	ErrNoFeed = errors.New("oracle: no price feed registered")
	// ErrNoDecimals indicates that a token's decimal count is unknown.
	ErrNoDecimals = errors.New("oracle: token decimals not registered")
	// ErrStalePrice indicates the feed returned a round with no usable answer.
	ErrStalePrice = errors.New("oracle: feed returned no usable price")
)

var wad = big.NewInt(1_000_000_000_000_000_000)

// Round mirrors the latest round data exposed by an external price feed.
type Round struct {
	RoundID         uint64
	Price           *big.Int
	StartedAt       int64
	UpdatedAt       int64
	AnsweredInRound uint64
}

// PriceFeed is the read-only surface the protocol consumes from an external
// price oracle. Decimals is assumed stable for the life of the feed.
type PriceFeed interface {
	LatestRound() (Round, error)
	Decimals() uint8
}

// Registry maps tokens to their price feeds and decimal counts. It is the
// injected replacement for the factory's chain of on-call lookups: handles are
// resolved once at wiring time and read fresh on every call.
type Registry struct {
	mu       sync.RWMutex
	feeds    map[common.Address]PriceFeed
	decimals map[common.Address]uint8
}

// NewRegistry constructs an empty feed registry.
func NewRegistry() *Registry {
	return &Registry{
		feeds:    make(map[common.Address]PriceFeed),
		decimals: make(map[common.Address]uint8),
	}
}

// SetFeed registers the price feed serving the supplied token.
func (r *Registry) SetFeed(token common.Address, feed PriceFeed) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.feeds[token] = feed
}

// SetTokenDecimals records the decimal count of the token itself, independent
// of its oracle's reporting decimals.
func (r *Registry) SetTokenDecimals(token common.Address, decimals uint8) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.decimals[token] = decimals
}

// FeedFor resolves the feed registered for a token.
func (r *Registry) FeedFor(token common.Address) (PriceFeed, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	feed, ok := r.feeds[token]
	if !ok || feed == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoFeed, token.Hex())
	}
	return feed, nil
}

// TokenDecimals resolves the registered decimal count for a token.
func (r *Registry) TokenDecimals(token common.Address) (uint8, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	decimals, ok := r.decimals[token]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrNoDecimals, token.Hex())
	}
	return decimals, nil
}

// NormalizedPrice returns the token's latest price scaled to a common
// 18-decimal unit: price * 1e18 / 10^feedDecimals.
func (r *Registry) NormalizedPrice(token common.Address) (*big.Int, error) {
	feed, err := r.FeedFor(token)
	if err != nil {
		return nil, err
	}
	round, err := feed.LatestRound()
	if err != nil {
		return nil, err
	}
	if round.Price == nil || round.Price.Sign() <= 0 {
		return nil, fmt.Errorf("%w: %s", ErrStalePrice, token.Hex())
	}
	normalized := new(big.Int).Mul(round.Price, wad)
	return normalized.Quo(normalized, Pow10(feed.Decimals())), nil
}

// Pow10 returns 10^exp as a big integer.
func Pow10(exp uint8) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(exp)), nil)
}

// StaticFeed is a fixed-price feed used for local pools and deterministic
// tests. The reported round advances its identifiers on every update.
type StaticFeed struct {
	mu       sync.RWMutex
	price    *big.Int
	decimals uint8
	roundID  uint64
	updated  int64
}

// NewStaticFeed constructs a feed answering with the supplied price.
func NewStaticFeed(price *big.Int, decimals uint8) *StaticFeed {
	feed := &StaticFeed{decimals: decimals}
	feed.SetPrice(price)
	return feed
}

// SetPrice replaces the reported price and advances the round.
func (f *StaticFeed) SetPrice(price *big.Int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if price != nil {
		f.price = new(big.Int).Set(price)
	} else {
		f.price = big.NewInt(0)
	}
	f.roundID++
	f.updated = time.Now().Unix()
}

// LatestRound reports the current fixed price.
func (f *StaticFeed) LatestRound() (Round, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return Round{
		RoundID:         f.roundID,
		Price:           new(big.Int).Set(f.price),
		StartedAt:       f.updated,
		UpdatedAt:       f.updated,
		AnsweredInRound: f.roundID,
	}, nil
}

// Decimals reports the feed's fixed decimal count.
func (f *StaticFeed) Decimals() uint8 {
	return f.decimals
}
