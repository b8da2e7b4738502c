// README: Common money value object used across modules.
package types

// Money is an amount in minor units of the given currency.
type Money struct {
	Amount   int64
	Currency string
}
