package market

import "lukechampine.com/uint128"

// BpsDenominator is 100% in basis points.
const BpsDenominator = 10_000

// BpsOf returns floor(amount * bps / 10000) without intermediate overflow.
func BpsOf(amount, bps uint64) uint64 {
	if bps == 0 || amount == 0 {
		return 0
	}
	if bps >= BpsDenominator {
		return amount
	}
	return uint128.From64(amount).Mul64(bps).Div64(BpsDenominator).Lo
}

// TakeFee splits gross output into what the taker receives and the fee.
func TakeFee(gross, feeBps uint64) (net, fee uint64) {
	fee = BpsOf(gross, feeBps)
	return gross - fee, fee
}
