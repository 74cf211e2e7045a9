package processor

import (
	"context"
	"fmt"
	"strings"

	"github.com/guregu/null"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// NormalizeRecords recomputes the hash residual of every record and trims
// stray whitespace from names. Record count and order are unchanged.
// A missing ranking hashes as 1, a missing score as 0.
func NormalizeRecords(batch YearBatch) YearBatch {
	out := batch.Clone()
	for i := range out.Records {
		rec := &out.Records[i]
		rec.CountryName = strings.TrimSpace(rec.CountryName)
		if rec.RegionName.Valid {
			rec.RegionName = null.StringFrom(strings.TrimSpace(rec.RegionName.String))
		}

		ranking := int64(1)
		if rec.Ranking.Valid {
			ranking = rec.Ranking.Int64
		}
		rec.Residual = null.FloatFrom(HashResidual(rec.CountryName, ranking, rec.HappinessScore.ValueOrZero()))
	}
	return out
}

// RecordNormalizer is the pipeline stage wrapping NormalizeRecords.
type RecordNormalizer struct {
	processors []Processor
	files      int
	records    int
}

func NewRecordNormalizer(config map[string]interface{}) (*RecordNormalizer, error) {
	return &RecordNormalizer{}, nil
}

func (n *RecordNormalizer) Subscribe(p Processor) {
	n.processors = append(n.processors, p)
}

func (n *RecordNormalizer) Process(ctx context.Context, msg Message) error {
	batch, err := BatchFromMessage(msg)
	if err != nil {
		return errors.Wrap(err, "RecordNormalizer")
	}

	out := NormalizeRecords(batch)
	n.files++
	n.records += len(out.Records)

	log.WithFields(log.Fields{
		"stage":   "normalize",
		"file":    batch.Source,
		"year":    batch.Year,
		"records": len(out.Records),
	}).Info("normalized records")

	return forward(ctx, n.processors, out, msg.Metadata)
}

func (n *RecordNormalizer) Summary() []string {
	return []string{fmt.Sprintf("normalize: %d files, %d records", n.files, n.records)}
}
