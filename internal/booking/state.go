package booking

import "fmt"

type State int

const (
	SelectingDate State = iota
	LoadingSlots
	SlotsReady
	SlotSelected
	Submitting
	Booked
	Failed
)

var stateNames = map[State]string{
	SelectingDate: "selecting_date",
	LoadingSlots:  "loading_slots",
	SlotsReady:    "slots_ready",
	SlotSelected:  "slot_selected",
	Submitting:    "submitting",
	Booked:        "booked",
	Failed:        "failed",
}

func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return fmt.Sprintf("state(%d)", int(s))
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(b []byte) error {
	for st, n := range stateNames {
		if n == string(b) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown booking state %q", b)
}
