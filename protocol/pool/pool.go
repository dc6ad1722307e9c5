package pool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/SkenaFi/skena-sc/bridge"
	"github.com/SkenaFi/skena-sc/dex"
	"github.com/SkenaFi/skena-sc/observability"
	"github.com/SkenaFi/skena-sc/oracle"
	"github.com/SkenaFi/skena-sc/protocol/lending"
	"github.com/SkenaFi/skena-sc/protocol/liquidation"
	"github.com/SkenaFi/skena-sc/protocol/position"
	"github.com/SkenaFi/skena-sc/protocol/risk"
	"github.com/SkenaFi/skena-sc/token"
)

var (
	ErrWrongPool          = errors.New("pool: payload addressed to another pool")
	ErrUnknownAction      = errors.New("pool: unknown execute action")
	ErrNoMessenger        = errors.New("pool: cross-chain messenger not configured")
	ErrInsufficientEscrow = errors.New("pool: insufficient escrow for bridged dispatch")
)

// Action selects the destination-side pool operation an execute step applies
// after drawing down pending bridged credit.
type Action uint8

const (
	ActionSupplyLiquidity Action = iota + 1
	ActionSupplyCollateral
	ActionRepay
)

// Config wires a lending pool facade with its collaborators. Handles are
// resolved once here rather than re-looked-up through a registry on every
// call.
type Config struct {
	ID         string
	Address    common.Address
	Router     *lending.Router
	Evaluator  *risk.Evaluator
	Liquidator *liquidation.Liquidator
	Book       token.Book
	Feeds      *oracle.Registry
	Venue      dex.Venue
	Messenger  bridge.Messenger
	Log        *slog.Logger
}

// LendingPool is the per-pool user-facing facade. It orchestrates position
// creation and custody moves, delegates all ledger mutation to the router and
// serializes operations so reads and writes against one pool never
// interleave. Pools own disjoint state, so distinct pools run independently.
type LendingPool struct {
	mu sync.Mutex

	id        string
	addr      common.Address
	router    *lending.Router
	eval      *risk.Evaluator
	liq       *liquidation.Liquidator
	book      token.Book
	feeds     *oracle.Registry
	venue     dex.Venue
	messenger bridge.Messenger
	inbox     *bridge.Inbox
	log       *slog.Logger
}

// New constructs the facade. The caller binds its address on the router via
// SetLendingPool during wiring.
func New(cfg Config) *LendingPool {
	logger := cfg.Log
	if logger == nil {
		logger = slog.Default()
	}
	return &LendingPool{
		id:        cfg.ID,
		addr:      cfg.Address,
		router:    cfg.Router,
		eval:      cfg.Evaluator,
		liq:       cfg.Liquidator,
		book:      cfg.Book,
		feeds:     cfg.Feeds,
		venue:     cfg.Venue,
		messenger: cfg.Messenger,
		inbox:     bridge.NewInbox(),
		log:       logger.With("pool", cfg.ID),
	}
}

// ID returns the pool identifier.
func (p *LendingPool) ID() string { return p.id }

// Address returns the pool's custody address.
func (p *LendingPool) Address() common.Address { return p.addr }

// Router exposes the pool's ledger for read-only callers.
func (p *LendingPool) Router() *lending.Router { return p.router }

// Inbox exposes the pending-credit ledger for queries.
func (p *LendingPool) Inbox() *bridge.Inbox { return p.inbox }

// SupplyLiquidity moves the deposit into pool custody and mints supply
// shares.
func (p *LendingPool) SupplyLiquidity(user common.Address, amount *big.Int) (*big.Int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	shares, err := p.supplyLiquidityLocked(user, amount)
	p.finish("supply_liquidity", user, err)
	return shares, err
}

func (p *LendingPool) supplyLiquidityLocked(user common.Address, amount *big.Int) (*big.Int, error) {
	if err := p.book.Transfer(p.router.BorrowToken(), user, p.addr, amount); err != nil {
		return nil, err
	}
	shares, err := p.router.SupplyLiquidity(user, amount)
	if err != nil {
		if backErr := p.book.Transfer(p.router.BorrowToken(), p.addr, user, amount); backErr != nil {
			return nil, fmt.Errorf("%v: custody rollback failed: %v", err, backErr)
		}
		return nil, err
	}
	return shares, nil
}

// WithdrawLiquidity burns supply shares and releases the redeemed amount
// from pool custody.
func (p *LendingPool) WithdrawLiquidity(user common.Address, shares *big.Int) (*big.Int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	amount, err := p.router.WithdrawLiquidity(user, shares)
	if err == nil {
		err = p.book.Transfer(p.router.BorrowToken(), p.addr, user, amount)
	}
	p.finish("withdraw_liquidity", user, err)
	return amount, err
}

// SupplyCollateral creates the user's position vault on first use, moves the
// collateral into it and records the pledge on the router.
func (p *LendingPool) SupplyCollateral(user common.Address, amount *big.Int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	err := p.supplyCollateralLocked(user, amount)
	p.finish("supply_collateral", user, err)
	return err
}

func (p *LendingPool) supplyCollateralLocked(user common.Address, amount *big.Int) error {
	pos, err := p.ensurePosition(user)
	if err != nil {
		return err
	}
	if err := p.book.Transfer(p.router.CollateralToken(), user, pos.Address(), amount); err != nil {
		return err
	}
	if err := p.router.SupplyCollateral(user, amount); err != nil {
		if backErr := p.book.Transfer(p.router.CollateralToken(), pos.Address(), user, amount); backErr != nil {
			return fmt.Errorf("%v: custody rollback failed: %v", err, backErr)
		}
		return err
	}
	return nil
}

// WithdrawCollateral releases collateral from the vault. Custody moves out
// first so the health gate sees post-withdrawal balances; a failed gate moves
// it straight back, which keeps the whole call all-or-nothing.
func (p *LendingPool) WithdrawCollateral(user common.Address, amount *big.Int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	err := p.withdrawCollateralLocked(user, amount)
	p.finish("withdraw_collateral", user, err)
	return err
}

func (p *LendingPool) withdrawCollateralLocked(user common.Address, amount *big.Int) error {
	pos := p.router.PositionOf(user)
	if pos == nil {
		return lending.ErrNoPosition
	}
	if err := pos.Withdraw(p.addr, p.router.CollateralToken(), amount, user); err != nil {
		return err
	}
	if err := p.router.WithdrawCollateral(user, amount); err != nil {
		if backErr := p.book.Transfer(p.router.CollateralToken(), user, pos.Address(), amount); backErr != nil {
			return fmt.Errorf("%v: custody rollback failed: %v", err, backErr)
		}
		return err
	}
	return nil
}

// BorrowDebt mints debt against the user's collateral. With a zero
// destination the net amount pays out locally; otherwise it is dispatched
// through the cross-chain messenger, and a failed send aborts the borrow
// without any ledger or custody change.
func (p *LendingPool) BorrowDebt(ctx context.Context, user common.Address, amount *big.Int, destinationID uint64) (fee, net, shares *big.Int, receipt bridge.Receipt, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fee, net, shares, receipt, err = p.borrowDebtLocked(ctx, user, amount, destinationID)
	p.finish("borrow_debt", user, err)
	return fee, net, shares, receipt, err
}

func (p *LendingPool) borrowDebtLocked(ctx context.Context, user common.Address, amount *big.Int, destinationID uint64) (*big.Int, *big.Int, *big.Int, bridge.Receipt, error) {
	if destinationID != 0 && p.messenger == nil {
		return nil, nil, nil, bridge.Receipt{}, ErrNoMessenger
	}
	borrowToken := p.router.BorrowToken()
	var receipt bridge.Receipt
	fee, net, shares, err := p.router.BorrowDebt(user, amount, func(fee, net *big.Int) error {
		if destinationID == 0 {
			if err := p.book.Transfer(borrowToken, p.addr, user, net); err != nil {
				return err
			}
		} else {
			if p.book.BalanceOf(borrowToken, p.addr).Cmp(new(big.Int).Add(net, fee)) < 0 {
				return ErrInsufficientEscrow
			}
			payload := bridge.Payload{Pool: p.addr, User: user, Token: borrowToken, Amount: net}
			sent, sendErr := p.messenger.Send(ctx, destinationID, user, payload, net, big.NewInt(0))
			if sendErr != nil {
				return fmt.Errorf("%w: %v", bridge.ErrSendFailed, sendErr)
			}
			receipt = sent
			// Lock/burn the dispatched value out of local custody.
			if err := p.book.Burn(borrowToken, p.addr, net); err != nil {
				return err
			}
			observability.Pool().RecordBridgeMessage(p.id, "send")
		}
		// Fee moves last so a failed payout or dispatch leaves custody
		// untouched.
		if fee.Sign() > 0 {
			return p.book.Transfer(borrowToken, p.addr, p.router.Treasury(), fee)
		}
		return nil
	})
	if err != nil {
		return nil, nil, nil, bridge.Receipt{}, err
	}
	return fee, net, shares, receipt, nil
}

// RepayWithShares repays debt with the borrow token pulled straight from the
// user's balance.
func (p *LendingPool) RepayWithShares(user common.Address, shares *big.Int) (*big.Int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	amount, _, _, _, err := p.router.RepayWithShares(user, shares, func(amount *big.Int) error {
		return p.book.Transfer(p.router.BorrowToken(), user, p.addr, amount)
	})
	p.finish("repay", user, err)
	return amount, err
}

// RepayWithSelectedToken repays debt out of the user's position vault,
// swapping the selected token to the borrow token first when they differ.
func (p *LendingPool) RepayWithSelectedToken(user common.Address, shares *big.Int, asset common.Address, slippageBps uint64) (*big.Int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	amount, err := p.repaySelectedLocked(user, shares, asset, slippageBps)
	p.finish("repay_selected", user, err)
	return amount, err
}

func (p *LendingPool) repaySelectedLocked(user common.Address, shares *big.Int, asset common.Address, slippageBps uint64) (*big.Int, error) {
	pos := p.router.PositionOf(user)
	if pos == nil {
		return nil, lending.ErrNoPosition
	}
	amount, _, _, _, err := p.router.RepayWithShares(user, shares, func(amount *big.Int) error {
		return pos.RepayWithToken(p.addr, amount, asset, slippageBps)
	})
	return amount, err
}

// CheckLiquidation reports liquidatability and the evaluator's values without
// ever rejecting a healthy or unhealthy position. It shares the exact math
// of the router's internal gate.
func (p *LendingPool) CheckLiquidation(user common.Address) (risk.Report, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pos := p.router.PositionOf(user)
	if pos == nil {
		return risk.Report{}, lending.ErrNoPosition
	}
	account, err := p.router.AccountOf(user)
	if err != nil {
		return risk.Report{}, err
	}
	market, err := p.router.Snapshot()
	if err != nil {
		return risk.Report{}, err
	}
	return p.eval.Evaluate(p.router.BorrowToken(), pos, p.router.LTV(), market.TotalBorrowAssets, market.TotalBorrowShares, account.BorrowShares)
}

// LiquidateByDEX runs the swap-based liquidation strategy.
func (p *LendingPool) LiquidateByDEX(borrower common.Address, incentiveBps uint64) (*big.Int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	repaid, err := p.liq.LiquidateByDEX(borrower, p.router, incentiveBps)
	p.finish("liquidate_dex", borrower, err)
	if err == nil {
		observability.Pool().RecordLiquidation(p.id, "dex")
		p.log.Info("position liquidated", "strategy", "dex", "borrower", borrower.Hex(), "repaid", repaid.String())
	}
	return repaid, err
}

// LiquidateByMEV runs the external-buyer liquidation strategy.
func (p *LendingPool) LiquidateByMEV(caller, borrower common.Address, repayAmount *big.Int, incentiveBps uint64) (*big.Int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	seized, err := p.liq.LiquidateByMEV(caller, borrower, p.router, repayAmount, incentiveBps)
	p.finish("liquidate_mev", borrower, err)
	if err == nil {
		observability.Pool().RecordLiquidation(p.id, "mev")
		p.log.Info("position liquidated", "strategy", "mev", "borrower", borrower.Hex(), "seized", seized.String())
	}
	return seized, err
}

// OnReceive is the bridge receive callback. It decodes the payload, credits
// the user's pending balance and mints the bridged value into pool escrow.
// Applying the credited value to the ledger is a separate Execute step.
func (p *LendingPool) OnReceive(raw []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	payload, err := bridge.DecodePayload(raw)
	if err != nil {
		return err
	}
	if payload.Pool != p.addr {
		return fmt.Errorf("%w: %s", ErrWrongPool, payload.Pool.Hex())
	}
	if err := p.book.Mint(payload.Token, p.addr, payload.Amount); err != nil {
		return err
	}
	if err := p.inbox.Credit(payload.User, payload.Token, payload.Amount); err != nil {
		return err
	}
	observability.Pool().RecordBridgeMessage(p.id, "receive")
	p.log.Info("bridged credit received", "user", payload.User.Hex(), "amount", payload.Amount.String())
	return nil
}

// Execute draws down pending bridged credit and applies the requested pool
// operation. Drawing more than the accumulated credit is rejected, so a
// delivered message can never be spent twice.
func (p *LendingPool) Execute(user common.Address, action Action, amount *big.Int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	err := p.executeLocked(user, action, amount)
	p.finish("execute", user, err)
	return err
}

func (p *LendingPool) executeLocked(user common.Address, action Action, amount *big.Int) error {
	asset := p.router.BorrowToken()
	if action == ActionSupplyCollateral {
		asset = p.router.CollateralToken()
	}
	if err := p.inbox.Debit(user, asset, amount); err != nil {
		return err
	}
	var err error
	switch action {
	case ActionSupplyLiquidity:
		// Bridged value already sits in pool escrow after OnReceive.
		_, err = p.router.SupplyLiquidity(user, amount)
	case ActionSupplyCollateral:
		var pos *position.Position
		pos, err = p.ensurePosition(user)
		if err == nil {
			if err = p.book.Transfer(asset, p.addr, pos.Address(), amount); err == nil {
				if err = p.router.SupplyCollateral(user, amount); err != nil {
					if backErr := p.book.Transfer(asset, pos.Address(), p.addr, amount); backErr != nil {
						return fmt.Errorf("%v: custody rollback failed: %v", err, backErr)
					}
				}
			}
		}
	case ActionRepay:
		var applied *big.Int
		applied, err = p.repayBridgedLocked(user, amount)
		if err == nil {
			// The share burn is capped at the outstanding debt; unused credit
			// goes back to the inbox instead of vanishing in escrow.
			if excess := new(big.Int).Sub(amount, applied); excess.Sign() > 0 {
				if creditErr := p.inbox.Credit(user, asset, excess); creditErr != nil {
					return fmt.Errorf("excess credit restore failed: %v", creditErr)
				}
			}
		}
	default:
		err = ErrUnknownAction
	}
	if err != nil {
		if creditErr := p.inbox.Credit(user, asset, amount); creditErr != nil {
			return fmt.Errorf("%v: credit restore failed: %v", err, creditErr)
		}
		return err
	}
	return nil
}

// repayBridgedLocked converts a bridged repay amount into shares at the
// current ratio, capped at the user's outstanding shares, and reports the
// value actually burned. The funds are already escrowed at the pool, so no
// collection step runs.
func (p *LendingPool) repayBridgedLocked(user common.Address, amount *big.Int) (*big.Int, error) {
	market, err := p.router.Snapshot()
	if err != nil {
		return nil, err
	}
	account, err := p.router.AccountOf(user)
	if err != nil {
		return nil, err
	}
	if market.TotalBorrowAssets.Sign() == 0 || account.BorrowShares.Sign() == 0 {
		return nil, lending.ErrInsufficientShares
	}
	shares := new(big.Int).Mul(amount, market.TotalBorrowShares)
	shares.Quo(shares, market.TotalBorrowAssets)
	if shares.Cmp(account.BorrowShares) > 0 {
		shares = account.BorrowShares
	}
	if shares.Sign() == 0 {
		return nil, lending.ErrInvalidAmount
	}
	applied, _, _, _, err := p.router.RepayWithShares(user, shares, nil)
	if err != nil {
		return nil, err
	}
	return applied, nil
}

func (p *LendingPool) ensurePosition(user common.Address) (*position.Position, error) {
	if pos := p.router.PositionOf(user); pos != nil {
		return pos, nil
	}
	pos := position.New(user, p.addr, p.addr, p.router.CollateralToken(), p.router.BorrowToken(), p.book, p.feeds, p.venue)
	if p.liq != nil {
		pos.AuthorizeWithdrawer(p.liq.Address())
	}
	if err := p.router.BindPosition(user, pos); err != nil {
		return nil, err
	}
	p.log.Info("position created", "user", user.Hex(), "vault", pos.Address().Hex())
	return pos, nil
}

// finish records metrics and logs the operation outcome, then refreshes the
// utilization gauge from the committed totals.
func (p *LendingPool) finish(op string, user common.Address, err error) {
	observability.Pool().RecordOperation(p.id, op, err)
	if err != nil {
		p.log.Warn("pool operation rejected", "op", op, "user", user.Hex(), "err", err)
	}
	if market, snapErr := p.router.Snapshot(); snapErr == nil {
		observability.Pool().SetUtilization(p.id, lending.UtilizationBps(market.TotalBorrowAssets, market.TotalSupplyAssets))
	}
}
