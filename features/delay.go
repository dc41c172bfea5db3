package features

// Direction selects the label used for negative delays.
type Direction int

const (
	Departure Direction = iota
	Arrival
)

const (
	EarlyDeparture = "Early_Departure"
	EarlyArrival   = "Early_Arrival"
	OnTime         = "On-Time"
	MinorDelay     = "Minor Delay"
	ModerateDelay  = "Moderate Delay"
	SevereDelay    = "Severe Delay"
	ExtremeDelay   = "Extreme Delay"
)

// DelayCategory buckets a delay in minutes. Each band includes its upper bound.
// A nil delay, as on a cancelled flight, has no category rather than falling into
// the open-ended Extreme Delay band.
func DelayCategory(delay *float64, dir Direction) *string {
	if delay == nil {
		return nil
	}
	var label string
	switch d := *delay; {
	case d < 0:
		label = EarlyDeparture
		if dir == Arrival {
			label = EarlyArrival
		}
	case d <= 15:
		label = OnTime
	case d <= 30:
		label = MinorDelay
	case d <= 60:
		label = ModerateDelay
	case d <= 120:
		label = SevereDelay
	default:
		label = ExtremeDelay
	}
	return &label
}
