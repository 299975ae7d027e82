package inventory

// WeightedAverage computes the unit cost after receiving incomingQty units
// at incomingCost, given the current balance. When the current quantity is
// zero or negative the average restarts at the incoming cost: a depleted or
// negative base must not dilute the cost of fresh stock.
func WeightedAverage(currentQty, currentCost, incomingQty, incomingCost float64) float64 {
	if incomingQty <= 0 {
		return currentCost
	}
	if currentQty <= 0 {
		return incomingCost
	}
	total := currentQty + incomingQty
	return (currentQty*currentCost + incomingQty*incomingCost) / total
}
