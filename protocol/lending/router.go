package lending

import (
	"errors"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/SkenaFi/skena-sc/protocol/position"
)

var (
	ErrInvalidAmount         = errors.New("lending: amount must be positive")
	ErrInsufficientShares    = errors.New("lending: shares exceed balance")
	ErrInsufficientCollat    = errors.New("lending: insufficient collateral")
	ErrInsufficientLiquidity = errors.New("lending: insufficient pool liquidity")
	ErrUnhealthy             = errors.New("lending: position would breach loan-to-value limit")
	ErrNoPosition            = errors.New("lending: borrower has no position vault")
	ErrPositionExists        = errors.New("lending: position already bound")
	ErrUnauthorized          = errors.New("lending: caller not authorized")
	ErrPoolAlreadySet        = errors.New("lending: lending pool already configured")
	ErrNoHealthGate          = errors.New("lending: health gate not configured")
)

var feeDenominator = big.NewInt(1_000_000_000_000_000_000) // 1e18
var originationFee = big.NewInt(1_000_000_000_000_000)     // 0.1% of 1e18

// HealthGate is the risk check invoked before borrow and collateral
// withdrawal commit. The evaluator implementing it must use the exact same
// math as the non-reverting liquidation query.
type HealthGate interface {
	RequireHealthy(borrowToken common.Address, pos *position.Position, ltv, totalBorrowAssets, totalBorrowShares, userBorrowShares *big.Int) error
}

// Router owns the share-based supply/borrow ledger for one pool. It is the
// sole mutator of the pool totals and per-user shares; custody moves live in
// the position vaults and the pool facade. Router methods are not safe for
// concurrent use, the facade serializes operations per pool.
type Router struct {
	state State

	collateralToken common.Address
	borrowToken     common.Address
	ltv             *big.Int

	admin       common.Address
	lendingPool common.Address
	treasury    common.Address
	liquidators map[common.Address]struct{}

	gate HealthGate
	now  func() time.Time

	positions map[common.Address]*position.Position
}

// NewRouter constructs the ledger for one collateral/borrow pair. The LTV is
// an 18-decimal fixed-point fraction (1e18 = 100%).
func NewRouter(state State, collateralToken, borrowToken common.Address, ltv *big.Int, admin, treasury common.Address) *Router {
	return &Router{
		state:           state,
		collateralToken: collateralToken,
		borrowToken:     borrowToken,
		ltv:             new(big.Int).Set(ltv),
		admin:           admin,
		treasury:        treasury,
		liquidators:     make(map[common.Address]struct{}),
		now:             time.Now,
		positions:       make(map[common.Address]*position.Position),
	}
}

// SetHealthGate wires the risk evaluator consulted on borrow and withdraw.
func (r *Router) SetHealthGate(gate HealthGate) { r.gate = gate }

// SetClock overrides the accrual clock, used by tests.
func (r *Router) SetClock(now func() time.Time) {
	if now != nil {
		r.now = now
	}
}

// SetLendingPool binds the pool facade address. Deployer-only, once.
func (r *Router) SetLendingPool(caller, pool common.Address) error {
	if caller != r.admin {
		return ErrUnauthorized
	}
	if r.lendingPool != (common.Address{}) {
		return ErrPoolAlreadySet
	}
	r.lendingPool = pool
	return nil
}

// AuthorizeLiquidator admits a liquidation authority. Deployer-only.
func (r *Router) AuthorizeLiquidator(caller, liquidator common.Address) error {
	if caller != r.admin {
		return ErrUnauthorized
	}
	r.liquidators[liquidator] = struct{}{}
	return nil
}

// CollateralToken returns the pool's collateral token.
func (r *Router) CollateralToken() common.Address { return r.collateralToken }

// BorrowToken returns the pool's borrow token.
func (r *Router) BorrowToken() common.Address { return r.borrowToken }

// LTV returns the pool's loan-to-value limit in 18-decimal fixed point.
func (r *Router) LTV() *big.Int { return new(big.Int).Set(r.ltv) }

// Treasury returns the protocol treasury address fees are routed to.
func (r *Router) Treasury() common.Address { return r.treasury }

// LendingPool returns the bound pool facade address.
func (r *Router) LendingPool() common.Address { return r.lendingPool }

// BindPosition registers a user's vault. A position is immutable once set;
// re-binding is forbidden.
func (r *Router) BindPosition(user common.Address, pos *position.Position) error {
	if _, ok := r.positions[user]; ok {
		return ErrPositionExists
	}
	r.positions[user] = pos
	return nil
}

// PositionOf returns the user's vault, nil when none has been created.
func (r *Router) PositionOf(user common.Address) *position.Position {
	return r.positions[user]
}

// SupplyLiquidity mints supply shares for the deposited amount. The first
// depositor mints 1:1, later deposits mint proportionally with floor
// division so rounding always favours the pool.
func (r *Router) SupplyLiquidity(user common.Address, amount *big.Int) (*big.Int, error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	market, err := r.loadMarket()
	if err != nil {
		return nil, err
	}
	r.accrue(market)
	account, err := r.loadAccount(user)
	if err != nil {
		return nil, err
	}

	shares := new(big.Int)
	if market.TotalSupplyAssets.Sign() == 0 || market.TotalSupplyShares.Sign() == 0 {
		shares.Set(amount)
	} else {
		shares = mulDiv(amount, market.TotalSupplyShares, market.TotalSupplyAssets)
	}

	account.SupplyShares = new(big.Int).Add(account.SupplyShares, shares)
	market.TotalSupplyAssets = new(big.Int).Add(market.TotalSupplyAssets, amount)
	market.TotalSupplyShares = new(big.Int).Add(market.TotalSupplyShares, shares)

	if err := r.persist(market, account); err != nil {
		return nil, err
	}
	return shares, nil
}

// WithdrawLiquidity burns supply shares and returns the redeemed amount. The
// withdrawal fails atomically when it would leave outstanding borrows backed
// by less liquidity than is owed.
func (r *Router) WithdrawLiquidity(user common.Address, shares *big.Int) (*big.Int, error) {
	if shares == nil || shares.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	market, err := r.loadMarket()
	if err != nil {
		return nil, err
	}
	r.accrue(market)
	account, err := r.loadAccount(user)
	if err != nil {
		return nil, err
	}
	if account.SupplyShares.Cmp(shares) < 0 {
		return nil, ErrInsufficientShares
	}

	amount := mulDiv(shares, market.TotalSupplyAssets, market.TotalSupplyShares)
	account.SupplyShares = new(big.Int).Sub(account.SupplyShares, shares)
	market.TotalSupplyShares = new(big.Int).Sub(market.TotalSupplyShares, shares)
	market.TotalSupplyAssets = new(big.Int).Sub(market.TotalSupplyAssets, amount)

	if market.TotalSupplyAssets.Cmp(market.TotalBorrowAssets) < 0 {
		return nil, ErrInsufficientLiquidity
	}

	if err := r.persist(market, account); err != nil {
		return nil, err
	}
	return amount, nil
}

// SupplyCollateral records pledged collateral for the user. Custody is moved
// into the vault by the facade.
func (r *Router) SupplyCollateral(user common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	market, err := r.loadMarket()
	if err != nil {
		return err
	}
	r.accrue(market)
	account, err := r.loadAccount(user)
	if err != nil {
		return err
	}
	account.Collateral = new(big.Int).Add(account.Collateral, amount)
	return r.persist(market, account)
}

// WithdrawCollateral releases tracked collateral. When the user carries debt
// the health gate re-runs against the post-withdrawal vault balances; a
// failed gate aborts without persisting anything.
func (r *Router) WithdrawCollateral(user common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	market, err := r.loadMarket()
	if err != nil {
		return err
	}
	r.accrue(market)
	account, err := r.loadAccount(user)
	if err != nil {
		return err
	}
	if account.Collateral.Cmp(amount) < 0 {
		return ErrInsufficientCollat
	}
	account.Collateral = new(big.Int).Sub(account.Collateral, amount)

	if account.BorrowShares.Sign() > 0 {
		pos := r.positions[user]
		if pos == nil {
			return ErrNoPosition
		}
		if r.gate == nil {
			return ErrNoHealthGate
		}
		if err := r.gate.RequireHealthy(r.borrowToken, pos, r.ltv, market.TotalBorrowAssets, market.TotalBorrowShares, account.BorrowShares); err != nil {
			return err
		}
	}
	return r.persist(market, account)
}

// BorrowDebt mints borrow shares for the requested amount, deducts the 0.1%
// origination fee and gates the whole operation on post-mutation health. The
// optional deliver callback runs after the gate passes and before anything is
// persisted; its failure aborts the borrow cleanly, which keeps
// debit-then-send bridge sequences atomic.
func (r *Router) BorrowDebt(user common.Address, amount *big.Int, deliver func(fee, net *big.Int) error) (fee, net, shares *big.Int, err error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, nil, nil, ErrInvalidAmount
	}
	pos := r.positions[user]
	if pos == nil {
		return nil, nil, nil, ErrNoPosition
	}
	market, err := r.loadMarket()
	if err != nil {
		return nil, nil, nil, err
	}
	r.accrue(market)
	account, err := r.loadAccount(user)
	if err != nil {
		return nil, nil, nil, err
	}

	shares = new(big.Int)
	if market.TotalBorrowShares.Sign() == 0 || market.TotalBorrowAssets.Sign() == 0 {
		shares.Set(amount)
	} else {
		shares = mulDiv(amount, market.TotalBorrowShares, market.TotalBorrowAssets)
	}
	fee = mulDiv(amount, originationFee, feeDenominator)
	net = new(big.Int).Sub(amount, fee)

	account.BorrowShares = new(big.Int).Add(account.BorrowShares, shares)
	market.TotalBorrowShares = new(big.Int).Add(market.TotalBorrowShares, shares)
	market.TotalBorrowAssets = new(big.Int).Add(market.TotalBorrowAssets, amount)

	if market.TotalBorrowAssets.Cmp(market.TotalSupplyAssets) > 0 {
		return nil, nil, nil, ErrInsufficientLiquidity
	}
	if r.gate == nil {
		return nil, nil, nil, ErrNoHealthGate
	}
	if err := r.gate.RequireHealthy(r.borrowToken, pos, r.ltv, market.TotalBorrowAssets, market.TotalBorrowShares, account.BorrowShares); err != nil {
		return nil, nil, nil, err
	}
	if deliver != nil {
		if err := deliver(new(big.Int).Set(fee), new(big.Int).Set(net)); err != nil {
			return nil, nil, nil, err
		}
	}
	if err := r.persist(market, account); err != nil {
		return nil, nil, nil, err
	}
	return fee, net, shares, nil
}

// RepayWithShares burns the given borrow shares at the current assets/shares
// ratio. Repaying never runs the health gate, it can only improve health.
// The optional collect callback receives the computed repay amount and runs
// before anything persists, so a failed funds collection aborts cleanly.
func (r *Router) RepayWithShares(user common.Address, shares *big.Int, collect func(amount *big.Int) error) (amount, remainingUser, remainingShares, remainingAssets *big.Int, err error) {
	if shares == nil || shares.Sign() <= 0 {
		return nil, nil, nil, nil, ErrInvalidAmount
	}
	market, err := r.loadMarket()
	if err != nil {
		return nil, nil, nil, nil, err
	}
	r.accrue(market)
	account, err := r.loadAccount(user)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	if account.BorrowShares.Cmp(shares) < 0 {
		return nil, nil, nil, nil, ErrInsufficientShares
	}

	amount = mulDiv(shares, market.TotalBorrowAssets, market.TotalBorrowShares)
	account.BorrowShares = new(big.Int).Sub(account.BorrowShares, shares)
	market.TotalBorrowShares = new(big.Int).Sub(market.TotalBorrowShares, shares)
	market.TotalBorrowAssets = new(big.Int).Sub(market.TotalBorrowAssets, amount)

	if collect != nil {
		if err := collect(new(big.Int).Set(amount)); err != nil {
			return nil, nil, nil, nil, err
		}
	}
	if err := r.persist(market, account); err != nil {
		return nil, nil, nil, nil, err
	}
	return amount,
		new(big.Int).Set(account.BorrowShares),
		new(big.Int).Set(market.TotalBorrowShares),
		new(big.Int).Set(market.TotalBorrowAssets),
		nil
}

// LiquidatePosition writes down a borrower's debt by repayAmount. Only
// registered liquidation authorities may call it. The computed share burn is
// capped at the borrower's actual balance so price or share drift can never
// over-reduce; supply shares are untouched. Tracked collateral is zeroed,
// custody seizure happens in the liquidator.
func (r *Router) LiquidatePosition(caller, user common.Address, repayAmount *big.Int) error {
	if _, ok := r.liquidators[caller]; !ok {
		return ErrUnauthorized
	}
	if repayAmount == nil || repayAmount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	market, err := r.loadMarket()
	if err != nil {
		return err
	}
	r.accrue(market)
	account, err := r.loadAccount(user)
	if err != nil {
		return err
	}
	if market.TotalBorrowShares.Sign() == 0 || account.BorrowShares.Sign() == 0 {
		return ErrInsufficientShares
	}

	shares := mulDiv(repayAmount, market.TotalBorrowShares, market.TotalBorrowAssets)
	repaid := new(big.Int).Set(repayAmount)
	if shares.Cmp(account.BorrowShares) > 0 {
		shares = new(big.Int).Set(account.BorrowShares)
		repaid = mulDiv(shares, market.TotalBorrowAssets, market.TotalBorrowShares)
	}

	account.BorrowShares = new(big.Int).Sub(account.BorrowShares, shares)
	market.TotalBorrowShares = new(big.Int).Sub(market.TotalBorrowShares, shares)
	market.TotalBorrowAssets = new(big.Int).Sub(market.TotalBorrowAssets, repaid)
	account.Collateral = big.NewInt(0)

	return r.persist(market, account)
}

// EmergencyResetPosition zeroes a user's borrow shares and collateral
// tracking without repaying debt or seizing assets. Admin-only stuck-state
// escape hatch; the burned shares and their asset value leave the totals so
// share conservation holds for the remaining borrowers.
func (r *Router) EmergencyResetPosition(caller, user common.Address) error {
	if caller != r.admin {
		return ErrUnauthorized
	}
	market, err := r.loadMarket()
	if err != nil {
		return err
	}
	r.accrue(market)
	account, err := r.loadAccount(user)
	if err != nil {
		return err
	}
	if account.BorrowShares.Sign() > 0 && market.TotalBorrowShares.Sign() > 0 {
		assets := mulDiv(account.BorrowShares, market.TotalBorrowAssets, market.TotalBorrowShares)
		market.TotalBorrowShares = new(big.Int).Sub(market.TotalBorrowShares, account.BorrowShares)
		market.TotalBorrowAssets = new(big.Int).Sub(market.TotalBorrowAssets, assets)
	}
	account.BorrowShares = big.NewInt(0)
	account.Collateral = big.NewInt(0)
	return r.persist(market, account)
}

// AccrueInterest applies pending interest and stamps the accrual clock. It
// is idempotent and safe to invoke at any time.
func (r *Router) AccrueInterest() error {
	market, err := r.loadMarket()
	if err != nil {
		return err
	}
	r.accrue(market)
	return r.state.PutMarket(market)
}

// accrue folds elapsed interest into the loaded market. The interest splits
// 90/10 between suppliers and the protocol reserve; both legs stay in the
// pool so the whole amount lands on the supply and borrow totals.
func (r *Router) accrue(market *Market) {
	now := uint64(r.now().Unix())
	if market.LastAccrued == 0 || now <= market.LastAccrued {
		market.LastAccrued = now
		return
	}
	elapsed := now - market.LastAccrued
	market.LastAccrued = now

	interest := accruedInterest(market.TotalBorrowAssets, market.TotalSupplyAssets, elapsed)
	if interest.Sign() == 0 {
		return
	}
	supplierShare := mulDiv(interest, big.NewInt(supplierShareBps), big.NewInt(utilizationScale))
	reserveShare := new(big.Int).Sub(interest, supplierShare)
	market.ReserveInterest = new(big.Int).Add(market.ReserveInterest, reserveShare)
	market.TotalBorrowAssets = new(big.Int).Add(market.TotalBorrowAssets, interest)
	market.TotalSupplyAssets = new(big.Int).Add(market.TotalSupplyAssets, interest)
}

// Snapshot returns a detached copy of the market totals for queries.
func (r *Router) Snapshot() (*Market, error) {
	market, err := r.loadMarket()
	if err != nil {
		return nil, err
	}
	return &Market{
		TotalSupplyAssets: new(big.Int).Set(market.TotalSupplyAssets),
		TotalSupplyShares: new(big.Int).Set(market.TotalSupplyShares),
		TotalBorrowAssets: new(big.Int).Set(market.TotalBorrowAssets),
		TotalBorrowShares: new(big.Int).Set(market.TotalBorrowShares),
		ReserveInterest:   new(big.Int).Set(market.ReserveInterest),
		LastAccrued:       market.LastAccrued,
	}, nil
}

// AccountOf returns a detached copy of the user's ledger entries.
func (r *Router) AccountOf(user common.Address) (*UserAccount, error) {
	account, err := r.loadAccount(user)
	if err != nil {
		return nil, err
	}
	return &UserAccount{
		Address:      account.Address,
		SupplyShares: new(big.Int).Set(account.SupplyShares),
		BorrowShares: new(big.Int).Set(account.BorrowShares),
		Collateral:   new(big.Int).Set(account.Collateral),
	}, nil
}

func (r *Router) loadMarket() (*Market, error) {
	market, err := r.state.Market()
	if err != nil {
		return nil, err
	}
	if market == nil {
		market = &Market{}
	}
	market.EnsureDefaults()
	return market, nil
}

func (r *Router) loadAccount(user common.Address) (*UserAccount, error) {
	account, err := r.state.Account(user)
	if err != nil {
		return nil, err
	}
	if account == nil {
		account = &UserAccount{Address: user}
	}
	account.EnsureDefaults()
	return account, nil
}

func (r *Router) persist(market *Market, account *UserAccount) error {
	if err := r.state.PutAccount(account); err != nil {
		return err
	}
	return r.state.PutMarket(market)
}

// mulDiv computes a*b/c with floor division.
func mulDiv(a, b, c *big.Int) *big.Int {
	if a == nil || b == nil || c == nil || c.Sign() == 0 {
		return big.NewInt(0)
	}
	out := new(big.Int).Mul(a, b)
	return out.Quo(out, c)
}
