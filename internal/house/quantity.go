package house

import "fmt"

// Quantity names one logical value held by the house.
type Quantity int

const (
	TV Quantity = iota
	LampA
	LampB
	Heater
	TargetTemperature
	MeasuredTemperature
	AlarmArmed
	AlarmTriggered
	LED
)

var quantityNames = [...]string{
	TV:                  "tv",
	LampA:               "lamp_a",
	LampB:               "lamp_b",
	Heater:              "heater",
	TargetTemperature:   "target_temperature",
	MeasuredTemperature: "measured_temperature",
	AlarmArmed:          "alarm_armed",
	AlarmTriggered:      "alarm_triggered",
	LED:                 "led",
}

// Quantities lists every quantity in declaration order.
func Quantities() []Quantity {
	qs := make([]Quantity, len(quantityNames))
	for i := range qs {
		qs[i] = Quantity(i)
	}
	return qs
}

func (q Quantity) String() string {
	if q < 0 || int(q) >= len(quantityNames) {
		return fmt.Sprintf("quantity(%d)", int(q))
	}
	return quantityNames[q]
}

func (q Quantity) valid() bool {
	return q >= 0 && int(q) < len(quantityNames)
}
