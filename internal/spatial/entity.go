package spatial

import (
	"strings"
	"time"
)

// Entity is a persisted administrative or address-level region.
type Entity struct {
	ID         int64          `json:"id"`
	GeoCode    string         `json:"geoCode"`
	Source     string         `json:"source"`
	AdminLevel string         `json:"adminLevel"`
	StartDate  time.Time      `json:"startDate,omitzero"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Lat        *float64       `json:"lat,omitempty"`
	Lon        *float64       `json:"lon,omitempty"`
}

// Scope returns the entity's (source, admin level) pair.
func (e Entity) Scope() Scope {
	return Scope{Source: e.Source, AdminLevel: e.AdminLevel}
}

// AdminLevelRank maps admin level names to OpenStreetMap-style admin_level
// numbers. Lower numbers are coarser regions.
var AdminLevelRank = map[string]int{
	"country":       2,
	"state":         4,
	"province":      4,
	"region":        4,
	"county":        6,
	"district":      6,
	"municipality":  8,
	"city":          8,
	"town":          8,
	"village":       8,
	"census_region": 9,
	"neighborhood":  10,
	"subdistrict":   10,
	"block":         11,
	"street":        12,
	"address":       13,
	"postal_code":   13,
	"latlong":       15,
}

// Rank returns the numeric level for name and whether it is known.
func Rank(name string) (int, bool) {
	r, ok := AdminLevelRank[strings.ToLower(strings.TrimSpace(name))]
	return r, ok
}
