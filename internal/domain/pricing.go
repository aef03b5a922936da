package domain

// FinalPrice returns the selling price of a size given the product base price and the
// size's signed modifier. Negative results are left to the caller's pricing policy.
func FinalPrice(base, modifier float64) float64 {
	return base + modifier
}
