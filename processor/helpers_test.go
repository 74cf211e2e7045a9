package processor

import (
	"context"

	"github.com/guregu/null"
)

func testRecord(country, region string, ranking int64, score float64) Record {
	return Record{
		Ranking:        null.IntFrom(ranking),
		CountryName:    country,
		RegionName:     null.StringFrom(region),
		HappinessScore: null.FloatFrom(score),
		GDPPerCapita:   null.FloatFrom(1.2),
		SocialSupport:  null.FloatFrom(1.1),
		HealthyLife:    null.FloatFrom(0.7),
		Freedom:        null.FloatFrom(0.5),
		Generosity:     null.FloatFrom(0.1),
		Corruption:     null.FloatFrom(0.2),
	}
}

// captureProcessor records every message it receives.
type captureProcessor struct {
	messages []Message
	err      error
}

func (c *captureProcessor) Process(ctx context.Context, msg Message) error {
	c.messages = append(c.messages, msg)
	return c.err
}

func (c *captureProcessor) Subscribe(Processor) {}

func (c *captureProcessor) batches() []YearBatch {
	out := make([]YearBatch, 0, len(c.messages))
	for _, m := range c.messages {
		b, err := BatchFromMessage(m)
		if err == nil {
			out = append(out, b)
		}
	}
	return out
}
