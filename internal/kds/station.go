package kds

import (
	"fmt"
	"strings"

	"github.com/appetiteclub/apt"
	"github.com/appetiteclub/kds/pkg/enums/station"
)

// StationConfig is the display and capacity profile of one kitchen
// station. Loaded once at startup and immutable afterwards; tickets
// reference stations by code, they never own them.
type StationConfig struct {
	Code        string `bson:"code" json:"code"`
	Name        string `bson:"name" json:"name"`
	MaxCapacity int    `bson:"max_capacity" json:"max_capacity"`
	// AvgCookTime is the station's nominal cook time in minutes, used
	// for display estimates only.
	AvgCookTime int  `bson:"avg_cook_time" json:"avg_cook_time"`
	IsActive    bool `bson:"is_active" json:"is_active"`
	Position    int  `bson:"position" json:"position"`
}

// StationRegistry holds the configured stations keyed by code. It is
// read-only after construction, so lookups need no locking.
type StationRegistry struct {
	byCode  map[string]StationConfig
	ordered []StationConfig
}

func NewStationRegistry(configs []StationConfig) (*StationRegistry, error) {
	r := &StationRegistry{byCode: make(map[string]StationConfig, len(configs))}
	for _, cfg := range configs {
		if station.ByName(cfg.Code) == nil {
			return nil, fmt.Errorf("%w: unknown station code %q", ErrInvalidArgument, cfg.Code)
		}
		if cfg.MaxCapacity <= 0 {
			return nil, fmt.Errorf("%w: station %q max capacity must be positive", ErrInvalidArgument, cfg.Code)
		}
		if _, dup := r.byCode[cfg.Code]; dup {
			return nil, fmt.Errorf("%w: duplicate station code %q", ErrInvalidArgument, cfg.Code)
		}
		r.byCode[cfg.Code] = cfg
		r.ordered = append(r.ordered, cfg)
	}
	return r, nil
}

// DefaultStations mirrors a typical line setup. Expo is the fallback
// station for anything the router cannot place, so it is always present
// and always active.
func DefaultStations() []StationConfig {
	return []StationConfig{
		{Code: station.Stations.Grill.Code(), Name: station.Stations.Grill.Label(), MaxCapacity: 8, AvgCookTime: 10, IsActive: true, Position: 0},
		{Code: station.Stations.Fryer.Code(), Name: station.Stations.Fryer.Label(), MaxCapacity: 6, AvgCookTime: 6, IsActive: true, Position: 1},
		{Code: station.Stations.Salad.Code(), Name: station.Stations.Salad.Label(), MaxCapacity: 10, AvgCookTime: 4, IsActive: true, Position: 2},
		{Code: station.Stations.Pantry.Code(), Name: station.Stations.Pantry.Label(), MaxCapacity: 10, AvgCookTime: 5, IsActive: true, Position: 3},
		{Code: station.Stations.Dessert.Code(), Name: station.Stations.Dessert.Label(), MaxCapacity: 6, AvgCookTime: 5, IsActive: true, Position: 4},
		{Code: station.Stations.Beverage.Code(), Name: station.Stations.Beverage.Label(), MaxCapacity: 12, AvgCookTime: 2, IsActive: true, Position: 5},
		{Code: station.Stations.Expo.Code(), Name: station.Stations.Expo.Label(), MaxCapacity: 15, AvgCookTime: 3, IsActive: true, Position: 6},
	}
}

// Get returns the station config for a code, or nil if not configured.
func (r *StationRegistry) Get(code string) *StationConfig {
	if cfg, ok := r.byCode[code]; ok {
		return &cfg
	}
	return nil
}

// IsActive reports whether the code names a configured, active station.
func (r *StationRegistry) IsActive(code string) bool {
	cfg, ok := r.byCode[code]
	return ok && cfg.IsActive
}

// All returns every configured station in position order.
func (r *StationRegistry) All() []StationConfig {
	out := make([]StationConfig, len(r.ordered))
	copy(out, r.ordered)
	return out
}

// Active returns the active stations in position order.
func (r *StationRegistry) Active() []StationConfig {
	var out []StationConfig
	for _, cfg := range r.ordered {
		if cfg.IsActive {
			out = append(out, cfg)
		}
	}
	return out
}

// Position returns the configured ordering position for a station code,
// or a large value for unknown codes so they sort last.
func (r *StationRegistry) Position(code string) int {
	if cfg, ok := r.byCode[code]; ok {
		return cfg.Position
	}
	return 1 << 20
}

// LoadStationRegistry builds the registry from config when a station
// list is provided, falling back to the default line setup.
func LoadStationRegistry(config *apt.Config, logger apt.Logger) (*StationRegistry, error) {
	// Station profiles come from deployment config in production; the
	// engine only requires that expo exists. Config shape is a comma
	// separated list of codes to deactivate, the rest stay defaults.
	configs := DefaultStations()
	if config != nil {
		if inactive, _ := config.GetString("kds.stations.inactive"); inactive != "" {
			disabled := map[string]bool{}
			for _, code := range splitCSV(inactive) {
				disabled[code] = true
			}
			for i := range configs {
				if disabled[configs[i].Code] && configs[i].Code != station.Stations.Expo.Code() {
					configs[i].IsActive = false
				}
			}
		}
	}
	reg, err := NewStationRegistry(configs)
	if err != nil {
		return nil, err
	}
	if logger != nil {
		logger.Infof("Loaded %d stations (%d active)", len(reg.All()), len(reg.Active()))
	}
	return reg, nil
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
