package priority

import "strings"

type Priority struct {
	Name string
	// Rank orders priorities for queue sorting; lower sorts first.
	Rank int
}

func (p Priority) Code() string {
	return p.Name
}

func (p Priority) Label() string {
	if len(p.Name) == 0 {
		return ""
	}
	return strings.ToUpper(p.Name[:1]) + p.Name[1:]
}

type Enum struct {
	Fire   Priority
	Rush   Priority
	Urgent Priority
	Normal Priority
}

var Priorities = Enum{
	Fire:   Priority{Name: "fire", Rank: 0},
	Rush:   Priority{Name: "rush", Rank: 1},
	Urgent: Priority{Name: "urgent", Rank: 2},
	Normal: Priority{Name: "normal", Rank: 3},
}

var All = []Priority{
	Priorities.Fire,
	Priorities.Rush,
	Priorities.Urgent,
	Priorities.Normal,
}

// ByName returns the priority for a given name, or nil if not found
func ByName(name string) *Priority {
	for _, p := range All {
		if p.Name == name {
			return &p
		}
	}
	return nil
}

// Rank returns the sort rank for a priority code. Unknown codes rank
// after normal so malformed data never jumps the queue.
func Rank(name string) int {
	if p := ByName(name); p != nil {
		return p.Rank
	}
	return Priorities.Normal.Rank + 1
}
