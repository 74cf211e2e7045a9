package processor

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// RegionUnknown is the sentinel region id for names outside the region table.
const RegionUnknown int64 = 0

// Region is one entry of the fixed region table.
type Region struct {
	ID   int64
	Name string
}

var regionTable = []Region{
	{1, "South Asia"},
	{2, "Central and Eastern Europe"},
	{3, "Sub-Saharan Africa"},
	{4, "Latin America and Caribbean"},
	{5, "Commonwealth of Independent States"},
	{6, "North America and ANZ"},
	{7, "Western Europe"},
	{8, "Southeast Asia"},
	{9, "East Asia"},
	{10, "Middle East and North Africa"},
}

// Regions returns the fixed region table ordered by id.
func Regions() []Region {
	out := make([]Region, len(regionTable))
	copy(out, regionTable)
	return out
}

// RegionID resolves a region name by exact match, RegionUnknown otherwise.
func RegionID(name string) int64 {
	for _, r := range regionTable {
		if r.Name == name {
			return r.ID
		}
	}
	return RegionUnknown
}

// Satellite id offsets from report_id. Used for both provisional and final ids.
const (
	SocialIDOffset     int64 = 10000
	PerceptionIDOffset int64 = 20000

	provisionalYearSpan int64 = 10000
)

// SatelliteIDs holds the indicator ids derived from one report id.
type SatelliteIDs struct {
	Economic   int64
	Social     int64
	Perception int64
}

// DeriveSatelliteIDs applies the fixed satellite offsets to reportID.
func DeriveSatelliteIDs(reportID int64) SatelliteIDs {
	return SatelliteIDs{
		Economic:   reportID,
		Social:     reportID + SocialIDOffset,
		Perception: reportID + PerceptionIDOffset,
	}
}

// ProvisionalReportID is the artifact-level report id. It is unique per
// (country, year); the DML emitter renumbers reports densely.
func ProvisionalReportID(countryID int64, year int) int64 {
	return countryID*provisionalYearSpan + int64(year)
}

// Country is a registry entry.
type Country struct {
	ID       int64
	Name     string
	RegionID int64
}

// Registry assigns country ids in first-seen order. One Registry spans a
// whole run over the corpus; it is not safe for concurrent use.
type Registry struct {
	ids       map[string]int64
	countries []Country
}

// NewRegistry creates an empty registry. Ids start at 1.
func NewRegistry() *Registry {
	return &Registry{ids: make(map[string]int64)}
}

// CountryID returns the id for name, assigning the next id on first sight.
// The region of the first sighting is kept.
func (r *Registry) CountryID(name string, regionID int64) int64 {
	if id, ok := r.ids[name]; ok {
		return id
	}
	id := int64(len(r.countries) + 1)
	r.ids[name] = id
	r.countries = append(r.countries, Country{ID: id, Name: name, RegionID: regionID})
	return id
}

// Lookup returns the id already assigned to name.
func (r *Registry) Lookup(name string) (int64, bool) {
	id, ok := r.ids[name]
	return id, ok
}

func (r *Registry) Len() int {
	return len(r.countries)
}

// Countries lists the registry in id order.
func (r *Registry) Countries() []Country {
	out := make([]Country, len(r.countries))
	copy(out, r.countries)
	return out
}

// Fingerprint hashes the ordered assignment so two runs can be compared.
func (r *Registry) Fingerprint() string {
	h := sha256.New()
	for _, c := range r.countries {
		fmt.Fprintf(h, "%d\t%s\t%d\n", c.ID, c.Name, c.RegionID)
	}
	return hex.EncodeToString(h.Sum(nil))
}
