package swap

import "math/big"

// PriceScale is the implicit fixed-point scale of oracle prices: a price of
// PriceScale means one whole base unit buys one quote base unit. The value
// folds the oracle's 8 fractional digits together with the 9-to-6 decimal
// shift between the base and quote assets.
const PriceScale = 100_000_000_000

var priceScaleBig = big.NewInt(PriceScale)

// QuoteFromBase converts an amount of base-asset base units into quote-asset
// base units at the given price, rounding up. The ceiling keeps the paying
// side from ever underpaying due to truncation. Both operands must be
// positive and the result must fit in 64 bits.
func QuoteFromBase(amount, price *big.Int) (*big.Int, error) {
	if err := checkConversionInputs(amount, price); err != nil {
		return nil, err
	}
	num := new(big.Int).Mul(amount, price)
	num.Add(num, new(big.Int).Sub(priceScaleBig, big.NewInt(1)))
	num.Div(num, priceScaleBig)
	if !num.IsUint64() {
		return nil, ErrAmountOverflow
	}
	return num, nil
}

// BaseFromQuote converts an amount of quote-asset base units into base-asset
// base units at the given price, rounding down. The floor keeps the receiving
// side from ever being credited more than it is entitled to.
func BaseFromQuote(amount, price *big.Int) (*big.Int, error) {
	if err := checkConversionInputs(amount, price); err != nil {
		return nil, err
	}
	num := new(big.Int).Mul(amount, priceScaleBig)
	num.Div(num, price)
	if !num.IsUint64() {
		return nil, ErrAmountOverflow
	}
	return num, nil
}

func checkConversionInputs(amount, price *big.Int) error {
	if price == nil || price.Sign() <= 0 {
		return ErrInvalidPrice
	}
	if amount == nil || amount.Sign() < 0 {
		return ErrAmountZero
	}
	if !amount.IsUint64() {
		return ErrAmountOverflow
	}
	return nil
}
