package house

import "errors"

// State is a point-in-time read of every quantity.
type State struct {
	TV                  bool
	LampA               int
	LampB               int
	Heater              int
	TargetTemperature   int
	MeasuredTemperature int
	AlarmArmed          bool
	AlarmTriggered      bool
	LED                 bool
}

// ReadState reads every quantity. Quantities that fail to read keep their
// zero value and their errors are joined in the returned error.
func (h *House) ReadState() (State, error) {
	var (
		s    State
		errs []error
	)

	get := func(q Quantity) int {
		v, err := h.Get(q)
		if err != nil {
			errs = append(errs, err)
		}
		return v
	}

	s.TV = get(TV) != 0
	s.LampA = get(LampA)
	s.LampB = get(LampB)
	s.Heater = get(Heater)
	s.TargetTemperature = get(TargetTemperature)
	s.MeasuredTemperature = get(MeasuredTemperature)
	s.AlarmArmed = get(AlarmArmed) != 0
	s.AlarmTriggered = get(AlarmTriggered) != 0
	s.LED = get(LED) != 0

	return s, errors.Join(errs...)
}
