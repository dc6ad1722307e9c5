package lending

import "math/big"

// Rate model constants. Rates carry two implied decimal digits (200 = 2.00%),
// utilization is scaled by 10000. The piecewise-linear kink must reproduce
// these exact figures for compatibility testing.
const (
	BaseRateBps           = 200
	RateAtOptimalBps      = 1000
	MaxRateBps            = 5000
	OptimalUtilizationBps = 8000
	ReserveFactorBps      = 1000

	// EmptyPoolRateBps is the borrow rate reported when no liquidity exists.
	EmptyPoolRateBps = 500

	utilizationScale = 10_000
	supplierShareBps = 9_000
	secondsPerYear   = 365 * 24 * 60 * 60
)

// UtilizationBps returns borrowed/supplied scaled by 10000, zero when the
// pool holds no liquidity.
func UtilizationBps(totalBorrowAssets, totalSupplyAssets *big.Int) uint64 {
	if totalSupplyAssets == nil || totalSupplyAssets.Sign() == 0 {
		return 0
	}
	if totalBorrowAssets == nil || totalBorrowAssets.Sign() == 0 {
		return 0
	}
	utilization := new(big.Int).Mul(totalBorrowAssets, big.NewInt(utilizationScale))
	utilization.Quo(utilization, totalSupplyAssets)
	return utilization.Uint64()
}

// BorrowRateBps derives the kinked borrow rate for the supplied totals.
func BorrowRateBps(totalBorrowAssets, totalSupplyAssets *big.Int) uint64 {
	if totalSupplyAssets == nil || totalSupplyAssets.Sign() == 0 {
		return EmptyPoolRateBps
	}
	utilization := UtilizationBps(totalBorrowAssets, totalSupplyAssets)
	if utilization <= OptimalUtilizationBps {
		return BaseRateBps + utilization*(RateAtOptimalBps-BaseRateBps)/OptimalUtilizationBps
	}
	excess := utilization - OptimalUtilizationBps
	return RateAtOptimalBps + excess*(MaxRateBps-RateAtOptimalBps)/(utilizationScale-OptimalUtilizationBps)
}

// SupplyRateBps derives the supplier-side rate after the reserve factor.
func SupplyRateBps(totalBorrowAssets, totalSupplyAssets *big.Int) uint64 {
	borrowRate := BorrowRateBps(totalBorrowAssets, totalSupplyAssets)
	utilization := UtilizationBps(totalBorrowAssets, totalSupplyAssets)
	return borrowRate * utilization * (utilizationScale - ReserveFactorBps) / (utilizationScale * utilizationScale)
}

// accruedInterest prorates the borrow rate over elapsed seconds against the
// outstanding borrow total, flooring at every division like the ledger does.
func accruedInterest(totalBorrowAssets, totalSupplyAssets *big.Int, elapsed uint64) *big.Int {
	if totalBorrowAssets == nil || totalBorrowAssets.Sign() == 0 || elapsed == 0 {
		return big.NewInt(0)
	}
	rate := BorrowRateBps(totalBorrowAssets, totalSupplyAssets)
	interest := new(big.Int).Mul(totalBorrowAssets, new(big.Int).SetUint64(rate))
	interest.Mul(interest, new(big.Int).SetUint64(elapsed))
	interest.Quo(interest, big.NewInt(utilizationScale*secondsPerYear))
	return interest
}
