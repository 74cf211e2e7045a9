package processor

import (
	"context"
	"fmt"

	"github.com/guregu/null"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// AssignIDs tags every record of batch with region, country, report and
// satellite ids. Country ids come from reg, which must be shared across
// every batch of the run. Records without a country name get no ids.
func AssignIDs(reg *Registry, batch YearBatch) YearBatch {
	out := batch.Clone()
	for i := range out.Records {
		rec := &out.Records[i]
		if rec.CountryName == "" {
			continue
		}

		regionID := RegionID(rec.RegionName.ValueOrZero())
		countryID := reg.CountryID(rec.CountryName, regionID)
		reportID := ProvisionalReportID(countryID, batch.Year)
		sat := DeriveSatelliteIDs(reportID)

		rec.RegionID = null.IntFrom(regionID)
		rec.CountryID = null.IntFrom(countryID)
		rec.ReportID = null.IntFrom(reportID)
		rec.EconomicID = null.IntFrom(sat.Economic)
		rec.SocialID = null.IntFrom(sat.Social)
		rec.PerceptionID = null.IntFrom(sat.Perception)
	}
	return out
}

// RegistryFingerprintKey is the metadata key carrying the registry state
// after a batch was tagged.
const RegistryFingerprintKey = "registry_fingerprint"

// IdentityAssigner is the pipeline stage wrapping AssignIDs.
type IdentityAssigner struct {
	registry   *Registry
	processors []Processor
	stats      struct {
		files      int
		records    int
		unresolved int
	}
}

func NewIdentityAssigner(config map[string]interface{}) (*IdentityAssigner, error) {
	return NewIdentityAssignerWithRegistry(NewRegistry()), nil
}

// NewIdentityAssignerWithRegistry builds the stage around an existing registry.
func NewIdentityAssignerWithRegistry(reg *Registry) *IdentityAssigner {
	return &IdentityAssigner{registry: reg}
}

func (a *IdentityAssigner) Subscribe(p Processor) {
	a.processors = append(a.processors, p)
}

func (a *IdentityAssigner) Registry() *Registry {
	return a.registry
}

func (a *IdentityAssigner) Process(ctx context.Context, msg Message) error {
	batch, err := BatchFromMessage(msg)
	if err != nil {
		return errors.Wrap(err, "IdentityAssigner")
	}

	out := AssignIDs(a.registry, batch)

	unresolved := 0
	for _, rec := range out.Records {
		if rec.RegionID.Valid && rec.RegionID.Int64 == RegionUnknown {
			unresolved++
		}
	}
	a.stats.files++
	a.stats.records += len(out.Records)
	a.stats.unresolved += unresolved

	log.WithFields(log.Fields{
		"stage":              "assign-ids",
		"file":               batch.Source,
		"year":               batch.Year,
		"records":            len(out.Records),
		"unresolved_regions": unresolved,
		"countries":          a.registry.Len(),
	}).Info("assigned ids")

	meta := make(map[string]interface{}, len(msg.Metadata)+1)
	for k, v := range msg.Metadata {
		meta[k] = v
	}
	meta[RegistryFingerprintKey] = a.registry.Fingerprint()

	return forward(ctx, a.processors, out, meta)
}

// Summary reports what the stage did over the whole run.
func (a *IdentityAssigner) Summary() []string {
	return []string{
		fmt.Sprintf("assign-ids: %d files, %d records, %d unique countries", a.stats.files, a.stats.records, a.registry.Len()),
		fmt.Sprintf("assign-ids: %d records with unresolved region", a.stats.unresolved),
		fmt.Sprintf("assign-ids: registry fingerprint %s", a.registry.Fingerprint()),
	}
}
