package processor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegionID(t *testing.T) {
	assert.Equal(t, int64(7), RegionID("Western Europe"))
	assert.Equal(t, int64(1), RegionID("South Asia"))
	assert.Equal(t, int64(10), RegionID("Middle East and North Africa"))
	assert.Equal(t, RegionUnknown, RegionID("western europe"))
	assert.Equal(t, RegionUnknown, RegionID(""))
	assert.Len(t, Regions(), 10)
}

func TestRegistryFirstSeenOrder(t *testing.T) {
	reg := NewRegistry()
	assert.Equal(t, int64(1), reg.CountryID("Finland", 7))
	assert.Equal(t, int64(2), reg.CountryID("Denmark", 7))
	assert.Equal(t, int64(1), reg.CountryID("Finland", 3))

	countries := reg.Countries()
	require.Len(t, countries, 2)
	assert.Equal(t, Country{ID: 1, Name: "Finland", RegionID: 7}, countries[0])

	id, ok := reg.Lookup("Denmark")
	assert.True(t, ok)
	assert.Equal(t, int64(2), id)
	_, ok = reg.Lookup("Chad")
	assert.False(t, ok)
}

func TestRegistryFingerprint(t *testing.T) {
	a, b := NewRegistry(), NewRegistry()
	a.CountryID("Finland", 7)
	a.CountryID("Denmark", 7)
	b.CountryID("Denmark", 7)
	b.CountryID("Finland", 7)

	assert.NotEqual(t, a.Fingerprint(), b.Fingerprint())

	c := NewRegistry()
	c.CountryID("Finland", 7)
	c.CountryID("Denmark", 7)
	assert.Equal(t, a.Fingerprint(), c.Fingerprint())
}

func TestAssignIDsCountryIDStableAcrossFiles(t *testing.T) {
	reg := NewRegistry()
	y2015 := YearBatch{Year: 2015, Records: []Record{
		testRecord("Switzerland", "Western Europe", 1, 7.587),
		testRecord("Iceland", "Western Europe", 2, 7.561),
	}}
	y2016 := YearBatch{Year: 2016, Records: []Record{
		testRecord("Denmark", "Western Europe", 1, 7.526),
		testRecord("Switzerland", "Western Europe", 2, 7.509),
		testRecord("Iceland", "Western Europe", 3, 7.501),
	}}

	out15 := AssignIDs(reg, y2015)
	out16 := AssignIDs(reg, y2016)

	ids := map[string][]int64{}
	for _, b := range []YearBatch{out15, out16} {
		for _, r := range b.Records {
			ids[r.CountryName] = append(ids[r.CountryName], r.CountryID.Int64)
		}
	}
	assert.Equal(t, []int64{1, 1}, ids["Switzerland"])
	assert.Equal(t, []int64{2, 2}, ids["Iceland"])
	assert.Equal(t, []int64{3}, ids["Denmark"])
}

func TestAssignIDsFinlandScenario(t *testing.T) {
	reg := NewRegistry()
	reg.CountryID("Denmark", 7)

	out := AssignIDs(reg, YearBatch{Year: 2023, Records: []Record{testRecord("Finland", "Western Europe", 1, 7.804)}})
	rec := out.Records[0]

	assert.Equal(t, int64(7), rec.RegionID.Int64)
	assert.Equal(t, int64(2), rec.CountryID.Int64)
	assert.Equal(t, ProvisionalReportID(2, 2023), rec.ReportID.Int64)
	assert.Equal(t, int64(22023), rec.ReportID.Int64)
	assert.Equal(t, int64(22023), rec.EconomicID.Int64)
	assert.Equal(t, int64(32023), rec.SocialID.Int64)
	assert.Equal(t, int64(42023), rec.PerceptionID.Int64)
	assert.Equal(t, 7.804, rec.HappinessScore.Float64)
}

func TestAssignIDsUnknownRegionAndMissingCountry(t *testing.T) {
	reg := NewRegistry()
	out := AssignIDs(reg, YearBatch{Year: 2020, Records: []Record{
		testRecord("Kosovo", "Balkans", 30, 6.3),
		testRecord("", "Western Europe", 31, 6.2),
	}})

	assert.Equal(t, RegionUnknown, out.Records[0].RegionID.Int64)
	assert.True(t, out.Records[0].RegionID.Valid)
	assert.True(t, out.Records[0].CountryID.Valid)
	assert.False(t, out.Records[1].CountryID.Valid)
	assert.Equal(t, 1, reg.Len())
}

func TestAssignIDsDoesNotMutateInput(t *testing.T) {
	in := YearBatch{Year: 2019, Records: []Record{testRecord("Norway", "Western Europe", 3, 7.5)}}
	AssignIDs(NewRegistry(), in)
	assert.False(t, in.Records[0].CountryID.Valid)
}

func TestAssignIDsOverwritesExistingIDs(t *testing.T) {
	reg := NewRegistry()
	first := AssignIDs(reg, YearBatch{Year: 2019, Records: []Record{testRecord("Norway", "Western Europe", 3, 7.5)}})
	again := AssignIDs(NewRegistry(), first)
	assert.Equal(t, first.Records, again.Records)
}

func TestIdentityAssignerProcess(t *testing.T) {
	assigner, err := NewIdentityAssigner(map[string]interface{}{})
	require.NoError(t, err)
	sink := &captureProcessor{}
	assigner.Subscribe(sink)

	ctx := context.Background()
	for year, names := range map[int][]string{2015: {"Chad"}} {
		batch := YearBatch{Year: year, Source: "world_happiness_2015.csv"}
		for i, n := range names {
			batch.Records = append(batch.Records, testRecord(n, "Sub-Saharan Africa", int64(i+1), 4.3))
		}
		require.NoError(t, assigner.Process(ctx, Message{Payload: batch}))
	}

	require.Len(t, sink.messages, 1)
	assert.Equal(t, assigner.Registry().Fingerprint(), sink.messages[0].Metadata[RegistryFingerprintKey])
	got := sink.batches()[0]
	assert.Equal(t, int64(3), got.Records[0].RegionID.Int64)
	assert.Len(t, assigner.Summary(), 3)
}

func TestIdentityAssignerRejectsForeignPayload(t *testing.T) {
	assigner, err := NewIdentityAssigner(nil)
	require.NoError(t, err)
	assert.Error(t, assigner.Process(context.Background(), Message{Payload: "nope"}))
}
