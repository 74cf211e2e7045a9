package consumer

import (
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/guregu/null"

	"github.com/withObsrvr/whr-pipeline/processor"
)

// RecordParquetSchema is the flat Arrow schema of a cleaned record plus the
// year and source file of its batch.
type RecordParquetSchema struct {
	Schema     *arrow.Schema
	MemoryPool memory.Allocator
}

func NewRecordParquetSchema() *RecordParquetSchema {
	fields := []arrow.Field{
		{Name: "year", Type: arrow.PrimitiveTypes.Int32},
		{Name: "source", Type: arrow.BinaryTypes.String},
		{Name: processor.FieldRanking, Type: arrow.PrimitiveTypes.Int64, Nullable: true},
		{Name: processor.FieldCountryName, Type: arrow.BinaryTypes.String},
		{Name: processor.FieldRegionName, Type: arrow.BinaryTypes.String, Nullable: true},
	}
	for _, name := range measureFields {
		fields = append(fields, arrow.Field{Name: name, Type: arrow.PrimitiveTypes.Float64, Nullable: true})
	}
	for _, name := range idFields {
		fields = append(fields, arrow.Field{Name: name, Type: arrow.PrimitiveTypes.Int64, Nullable: true})
	}

	return &RecordParquetSchema{
		Schema:     arrow.NewSchema(fields, nil),
		MemoryPool: memory.NewGoAllocator(),
	}
}

var measureFields = []string{
	processor.FieldHappinessScore,
	processor.FieldGDPPerCapita,
	processor.FieldSocialSupport,
	processor.FieldHealthyLife,
	processor.FieldFreedom,
	processor.FieldGenerosity,
	processor.FieldCorruption,
	processor.FieldResidual,
}

var idFields = []string{
	processor.FieldRegionID,
	processor.FieldCountryID,
	processor.FieldReportID,
	processor.FieldEconomicID,
	processor.FieldSocialID,
	processor.FieldPerceptionID,
}

// RecordBatchBuilder appends year batches column by column.
type RecordBatchBuilder struct {
	builder *array.RecordBuilder
	rows    int
}

func NewRecordBatchBuilder(schema *RecordParquetSchema) *RecordBatchBuilder {
	return &RecordBatchBuilder{builder: array.NewRecordBuilder(schema.MemoryPool, schema.Schema)}
}

// Append adds every record of batch as one row.
func (b *RecordBatchBuilder) Append(batch processor.YearBatch) {
	for _, rec := range batch.Records {
		b.builder.Field(0).(*array.Int32Builder).Append(int32(batch.Year))
		b.builder.Field(1).(*array.StringBuilder).Append(batch.Source)
		appendInt(b.builder.Field(2).(*array.Int64Builder), rec.Ranking)
		b.builder.Field(3).(*array.StringBuilder).Append(rec.CountryName)

		region := b.builder.Field(4).(*array.StringBuilder)
		if rec.RegionName.Valid {
			region.Append(rec.RegionName.String)
		} else {
			region.AppendNull()
		}

		measures := []null.Float{
			rec.HappinessScore, rec.GDPPerCapita, rec.SocialSupport, rec.HealthyLife,
			rec.Freedom, rec.Generosity, rec.Corruption, rec.Residual,
		}
		for i, v := range measures {
			fb := b.builder.Field(5 + i).(*array.Float64Builder)
			if v.Valid {
				fb.Append(v.Float64)
			} else {
				fb.AppendNull()
			}
		}

		ids := []null.Int{rec.RegionID, rec.CountryID, rec.ReportID, rec.EconomicID, rec.SocialID, rec.PerceptionID}
		offset := 5 + len(measureFields)
		for i, v := range ids {
			appendInt(b.builder.Field(offset+i).(*array.Int64Builder), v)
		}
		b.rows++
	}
}

func appendInt(ib *array.Int64Builder, v null.Int) {
	if v.Valid {
		ib.Append(v.Int64)
	} else {
		ib.AppendNull()
	}
}

func (b *RecordBatchBuilder) Len() int {
	return b.rows
}

// NewRecord returns the built record and resets the builder.
func (b *RecordBatchBuilder) NewRecord() arrow.Record {
	b.rows = 0
	return b.builder.NewRecord()
}

func (b *RecordBatchBuilder) Release() {
	b.builder.Release()
}
