package station

import "strings"

type Station struct {
	Name string
}

func (s Station) Code() string {
	return s.Name
}

func (s Station) Label() string {
	// Capitalize first letter
	if len(s.Name) == 0 {
		return ""
	}
	return strings.ToUpper(s.Name[:1]) + s.Name[1:]
}

type Enum struct {
	Grill    Station
	Fryer    Station
	Salad    Station
	Expo     Station
	Pantry   Station
	Dessert  Station
	Beverage Station
}

var Stations = Enum{
	Grill:    Station{Name: "grill"},
	Fryer:    Station{Name: "fryer"},
	Salad:    Station{Name: "salad"},
	Expo:     Station{Name: "expo"},
	Pantry:   Station{Name: "pantry"},
	Dessert:  Station{Name: "dessert"},
	Beverage: Station{Name: "beverage"},
}

var All = []Station{
	Stations.Grill,
	Stations.Fryer,
	Stations.Salad,
	Stations.Expo,
	Stations.Pantry,
	Stations.Dessert,
	Stations.Beverage,
}

// ByName returns the station for a given name, or nil if not found
func ByName(name string) *Station {
	for _, s := range All {
		if s.Name == name {
			return &s
		}
	}
	return nil
}
