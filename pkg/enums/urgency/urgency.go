package urgency

import "strings"

type Urgency struct {
	Name string
	// Level orders urgencies; higher means more urgent. Urgency derived
	// from elapsed time must never decrease while thresholds are fixed.
	Level int
}

func (u Urgency) Code() string {
	return u.Name
}

func (u Urgency) Label() string {
	if len(u.Name) == 0 {
		return ""
	}
	return strings.ToUpper(u.Name[:1]) + u.Name[1:]
}

type Enum struct {
	Normal  Urgency
	Warning Urgency
	Urgent  Urgency
}

var Urgencies = Enum{
	Normal:  Urgency{Name: "normal", Level: 0},
	Warning: Urgency{Name: "warning", Level: 1},
	Urgent:  Urgency{Name: "urgent", Level: 2},
}

var All = []Urgency{
	Urgencies.Normal,
	Urgencies.Warning,
	Urgencies.Urgent,
}

// ByName returns the urgency for a given name, or nil if not found
func ByName(name string) *Urgency {
	for _, u := range All {
		if u.Name == name {
			return &u
		}
	}
	return nil
}
