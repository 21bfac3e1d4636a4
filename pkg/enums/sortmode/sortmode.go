package sortmode

import "strings"

type SortMode struct {
	Name string
}

func (m SortMode) Code() string {
	return m.Name
}

func (m SortMode) Label() string {
	if len(m.Name) == 0 {
		return ""
	}
	return strings.ToUpper(m.Name[:1]) + m.Name[1:]
}

type Enum struct {
	Time     SortMode
	Priority SortMode
	Table    SortMode
	Server   SortMode
}

var Modes = Enum{
	Time:     SortMode{Name: "time"},
	Priority: SortMode{Name: "priority"},
	Table:    SortMode{Name: "table"},
	Server:   SortMode{Name: "server"},
}

var All = []SortMode{
	Modes.Time,
	Modes.Priority,
	Modes.Table,
	Modes.Server,
}

// ByName returns the sort mode for a given name, or nil if not found
func ByName(name string) *SortMode {
	for _, m := range All {
		if m.Name == name {
			return &m
		}
	}
	return nil
}
