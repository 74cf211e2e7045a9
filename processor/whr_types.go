package processor

import (
	"bytes"
	"encoding/json"

	"github.com/guregu/null"
	"github.com/pkg/errors"
	"github.com/tidwall/gjson"

	"github.com/withObsrvr/whr-pipeline/utils"
)

// Canonical field names, in the order every artifact record exposes them.
const (
	FieldRanking        = "ranking"
	FieldCountryName    = "country_name"
	FieldRegionName     = "region_name"
	FieldHappinessScore = "happiness_score"
	FieldGDPPerCapita   = "gdp_per_capita"
	FieldSocialSupport  = "social_support"
	FieldHealthyLife    = "healthy_life_expectancy"
	FieldFreedom        = "freedom_to_make_life_choices"
	FieldGenerosity     = "generosity"
	FieldCorruption     = "perceptions_of_corruption"
	FieldResidual       = "dystopia_residual"
	FieldRegionID       = "region_id"
	FieldCountryID      = "country_id"
	FieldReportID       = "report_id"
	FieldEconomicID     = "economic_id"
	FieldSocialID       = "social_id"
	FieldPerceptionID   = "perception_id"
)

// CanonicalFields is the fixed field sequence of a cleaned record.
var CanonicalFields = []string{
	FieldRanking,
	FieldCountryName,
	FieldRegionName,
	FieldHappinessScore,
	FieldGDPPerCapita,
	FieldSocialSupport,
	FieldHealthyLife,
	FieldFreedom,
	FieldGenerosity,
	FieldCorruption,
	FieldResidual,
	FieldRegionID,
	FieldCountryID,
	FieldReportID,
	FieldEconomicID,
	FieldSocialID,
	FieldPerceptionID,
}

// legacy header keys some older artifacts still carry
var legacyAliases = map[string]string{
	FieldCountryName: "Country",
	FieldRegionName:  "Regional indicator",
}

// Record is one country's row for one report year. Absent values stay
// invalid and are omitted when the record is written.
type Record struct {
	Ranking        null.Int
	CountryName    string
	RegionName     null.String
	HappinessScore null.Float
	GDPPerCapita   null.Float
	SocialSupport  null.Float
	HealthyLife    null.Float
	Freedom        null.Float
	Generosity     null.Float
	Corruption     null.Float
	Residual       null.Float

	RegionID     null.Int
	CountryID    null.Int
	ReportID     null.Int
	EconomicID   null.Int
	SocialID     null.Int
	PerceptionID null.Int
}

// Factors returns the six explanatory factors, missing ones as zero.
func (r Record) Factors() [6]float64 {
	return [6]float64{
		r.GDPPerCapita.ValueOrZero(),
		r.SocialSupport.ValueOrZero(),
		r.HealthyLife.ValueOrZero(),
		r.Freedom.ValueOrZero(),
		r.Generosity.ValueOrZero(),
		r.Corruption.ValueOrZero(),
	}
}

// HasIDs reports whether every identifier field is present.
func (r Record) HasIDs() bool {
	return r.RegionID.Valid && r.CountryID.Valid && r.ReportID.Valid &&
		r.EconomicID.Valid && r.SocialID.Valid && r.PerceptionID.Valid
}

type field struct {
	name  string
	value interface{}
	ok    bool
}

func (r Record) fields() []field {
	return []field{
		{FieldRanking, r.Ranking.Int64, r.Ranking.Valid},
		{FieldCountryName, r.CountryName, r.CountryName != ""},
		{FieldRegionName, r.RegionName.String, r.RegionName.Valid},
		{FieldHappinessScore, r.HappinessScore.Float64, r.HappinessScore.Valid},
		{FieldGDPPerCapita, r.GDPPerCapita.Float64, r.GDPPerCapita.Valid},
		{FieldSocialSupport, r.SocialSupport.Float64, r.SocialSupport.Valid},
		{FieldHealthyLife, r.HealthyLife.Float64, r.HealthyLife.Valid},
		{FieldFreedom, r.Freedom.Float64, r.Freedom.Valid},
		{FieldGenerosity, r.Generosity.Float64, r.Generosity.Valid},
		{FieldCorruption, r.Corruption.Float64, r.Corruption.Valid},
		{FieldResidual, r.Residual.Float64, r.Residual.Valid},
		{FieldRegionID, r.RegionID.Int64, r.RegionID.Valid},
		{FieldCountryID, r.CountryID.Int64, r.CountryID.Valid},
		{FieldReportID, r.ReportID.Int64, r.ReportID.Valid},
		{FieldEconomicID, r.EconomicID.Int64, r.EconomicID.Valid},
		{FieldSocialID, r.SocialID.Int64, r.SocialID.Valid},
		{FieldPerceptionID, r.PerceptionID.Int64, r.PerceptionID.Valid},
	}
}

// MarshalJSON writes the present fields in canonical order.
func (r Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	first := true
	for _, f := range r.fields() {
		if !f.ok {
			continue
		}
		if !first {
			buf.WriteByte(',')
		}
		first = false

		key, _ := json.Marshal(f.name)
		buf.Write(key)
		buf.WriteByte(':')
		val, err := json.Marshal(f.value)
		if err != nil {
			return nil, errors.Wrapf(err, "marshal %s", f.name)
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON accepts numbers, numeric strings with either decimal
// separator, nulls and missing keys. Unknown keys are dropped.
func (r *Record) UnmarshalJSON(data []byte) error {
	if !gjson.ValidBytes(data) {
		return errors.New("invalid record JSON")
	}
	obj := gjson.ParseBytes(data)
	if !obj.IsObject() {
		return errors.Errorf("record must be a JSON object, got %s", obj.Type)
	}

	*r = Record{
		Ranking:        intField(obj, FieldRanking),
		CountryName:    stringField(obj, FieldCountryName).ValueOrZero(),
		RegionName:     stringField(obj, FieldRegionName),
		HappinessScore: floatField(obj, FieldHappinessScore),
		GDPPerCapita:   floatField(obj, FieldGDPPerCapita),
		SocialSupport:  floatField(obj, FieldSocialSupport),
		HealthyLife:    floatField(obj, FieldHealthyLife),
		Freedom:        floatField(obj, FieldFreedom),
		Generosity:     floatField(obj, FieldGenerosity),
		Corruption:     floatField(obj, FieldCorruption),
		Residual:       floatField(obj, FieldResidual),
		RegionID:       intField(obj, FieldRegionID),
		CountryID:      intField(obj, FieldCountryID),
		ReportID:       intField(obj, FieldReportID),
		EconomicID:     intField(obj, FieldEconomicID),
		SocialID:       intField(obj, FieldSocialID),
		PerceptionID:   intField(obj, FieldPerceptionID),
	}
	return nil
}

func lookup(obj gjson.Result, key string) gjson.Result {
	v := obj.Get(key)
	if !v.Exists() {
		if alias, ok := legacyAliases[key]; ok {
			v = obj.Get(alias)
		}
	}
	return v
}

func stringField(obj gjson.Result, key string) null.String {
	v := lookup(obj, key)
	switch v.Type {
	case gjson.String, gjson.Number:
		return null.StringFrom(v.String())
	default:
		return null.String{}
	}
}

func floatField(obj gjson.Result, key string) null.Float {
	v := lookup(obj, key)
	switch v.Type {
	case gjson.Number:
		return null.FloatFrom(v.Float())
	case gjson.String:
		if f, ok := utils.ParseDecimal(v.Str); ok {
			return null.FloatFrom(f)
		}
	}
	return null.Float{}
}

func intField(obj gjson.Result, key string) null.Int {
	v := lookup(obj, key)
	switch v.Type {
	case gjson.Number:
		return null.IntFrom(int64(v.Float()))
	case gjson.String:
		if f, ok := utils.ParseDecimal(v.Str); ok {
			return null.IntFrom(int64(f))
		}
	}
	return null.Int{}
}
