package logic

// DefaultThreshold is the number of consecutive same-direction samples
// needed before the heater switches.
const DefaultThreshold = 100

// Controller is a bang-bang heating regulator with counter based debounce.
// At most one of the below/above counters is non-zero at any time.
type Controller struct {
	threshold int

	below int
	above int

	reported    int
	hasReported bool

	lastTriggered bool

	counts Counts
}

// NewController creates a controller switching after threshold consecutive
// samples. A threshold below 1 is treated as 1.
func NewController(threshold int) *Controller {
	if threshold < 1 {
		threshold = 1
	}
	return &Controller{threshold: threshold}
}

// Tick runs one control cycle.
func (c *Controller) Tick(in Input) Output {
	var out Output

	switch {
	case in.Measured < in.Target:
		c.below++
		c.above = 0
	case in.Measured > in.Target:
		c.above++
		c.below = 0
	default:
		c.below = 0
		c.above = 0
	}

	if c.below >= c.threshold {
		out.Heater = ActionHeaterOn
		out.Flags.Heater = true
		c.below = 0
		c.counts.HeaterOn++
	} else if c.above >= c.threshold {
		out.Heater = ActionHeaterOff
		out.Flags.Heater = true
		c.above = 0
		c.counts.HeaterOff++
	}

	if !c.hasReported || in.Measured != c.reported {
		out.Flags.Temperature = true
	}

	if in.Triggered != c.lastTriggered {
		out.Flags.Alarm = true
		c.lastTriggered = in.Triggered
	}

	return out
}

// MarkReported records the temperature last delivered to the peer.
func (c *Controller) MarkReported(temp int) {
	c.reported = temp
	c.hasReported = true
}

// AlarmCleared records that the caller reset the triggered flag after
// reporting it, so the reset itself is not flagged as a change.
func (c *Controller) AlarmCleared() {
	c.lastTriggered = false
}

// Counters returns the current below and above run lengths.
func (c *Controller) Counters() (below, above int) {
	return c.below, c.above
}

// Counts returns heater switch counts since startup.
func (c *Controller) Counts() Counts {
	return c.counts
}

// Threshold returns the debounce threshold.
func (c *Controller) Threshold() int {
	return c.threshold
}
