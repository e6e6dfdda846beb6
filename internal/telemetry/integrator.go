package telemetry

import "time"

// ConsumptionIntegrator accumulates charge (mAh) for controllers that only
// report instantaneous current.
type ConsumptionIntegrator struct {
	acc float64
}

// Add integrates currentA over deltaHours and returns the new total.
func (c *ConsumptionIntegrator) Add(currentA, deltaHours float64) float64 {
	c.acc += currentA * 1000 * deltaHours
	return c.acc
}

func (c *ConsumptionIntegrator) Value() float64 {
	return c.acc
}

func (c *ConsumptionIntegrator) Reset() {
	c.acc = 0
}

// DeltaHours is the elapsed time between two accepted ticks in hours, zero
// when there is no previous tick.
func DeltaHours(prev, now time.Time, hasPrev bool) float64 {
	if !hasPrev || !now.After(prev) {
		return 0
	}
	return now.Sub(prev).Seconds() / 3600
}
