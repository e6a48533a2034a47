package engine

import "github.com/stealth-startup/openexchange/internal/ledger"

// OneHundredMillion is the modulus most instructions decode their parameter
// with: one coin in satoshis.
const OneHundredMillion = 100_000_000

const (
	// limitVolumeModulus bounds the volume of a limit order.
	limitVolumeModulus = 10_000

	// priceTick is the smallest unit price step, and the minimum price.
	priceTick = 10_000

	voteIndexModulus = 1_000
)

// State-control codes.
const (
	StateResume = 1
	StatePause  = 2

	// reinitSuffix marks a reinitialize code: code%10 == 3, init id code/10.
	reinitSuffix = 3
)

// DecodeLimitOrder splits a limit order amount into volume and unit price.
// The amount is unit_price*volume + volume, so the sender always attaches
// the notional plus one satoshi per share.
func DecodeLimitOrder(amount int64) (volume, unitPrice int64, msg ledger.MessageCode) {
	volume = amount % limitVolumeModulus
	if volume == 0 {
		return 0, 0, ledger.MsgZeroVolume
	}
	unitPrice = (amount - volume) / volume
	if unitPrice*volume != amount-volume || unitPrice < priceTick || unitPrice%priceTick != 0 {
		return volume, unitPrice, ledger.MsgUnitPriceIllegit
	}
	return volume, unitPrice, ledger.MsgNone
}

// EncodeLimitOrder is the inverse of DecodeLimitOrder.
func EncodeLimitOrder(volume, unitPrice int64) int64 {
	return unitPrice*volume + volume
}

// DecodeVote splits a user-vote amount into vote index and option.
func DecodeVote(amount int64) (index, option int64) {
	return amount % voteIndexModulus, amount / voteIndexModulus
}

// DecodeReinit reports whether code asks for a reinitialization and from
// which init id.
func DecodeReinit(code int64) (initID int64, ok bool) {
	if code%10 != reinitSuffix {
		return 0, false
	}
	return code / 10, true
}

// SplitDividend computes the dividend per share and the change left over.
func SplitDividend(amount, totalShares int64) (perShare, change int64) {
	perShare = amount / totalShares
	return perShare, amount - perShare*totalShares
}
