package mempool

// congestionModel implements spec §4.6's EWMA congestion tracker and
// the tiered minimum-fee-rate schedule it drives.
type congestionModel struct {
	value float64 // smoothed congestion in [0,1]
}

// update folds in a fresh utilization sample (spec: "congestion <-
// 0.8*congestion + 0.2*utilization").
func (c *congestionModel) update(utilization float64) {
	c.value = 0.8*c.value + 0.2*utilization
}

// congested reports whether the pool is congested enough to enforce a
// minimum fee rate at all (ground truth: mempool.py's _is_congested(),
// congestion_level > 0.5).
func (c *congestionModel) congested() bool {
	return c.value > 0.5
}

// minFeeRate returns the minimum fee-per-byte (in raw 1e-8-BT2C units,
// since Amount's native unit already is 1e-8) required for admission
// at the current congestion level (spec §4.6). Callers must check
// congested() first: outside congestion no floor applies.
func (c *congestionModel) minFeeRate() float64 {
	congestion := c.value
	switch {
	case congestion >= 0.8:
		return 50 + (congestion-0.8)*250
	case congestion >= 0.5:
		return 10 + (congestion-0.5)*(40/0.3)
	case congestion >= 0.3:
		return 2 + (congestion-0.3)*40
	default:
		return 1
	}
}
