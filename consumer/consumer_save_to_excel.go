package consumer

import (
	"context"
	"fmt"

	"github.com/guregu/null"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/withObsrvr/whr-pipeline/processor"
	"github.com/withObsrvr/whr-pipeline/utils"
)

// SaveToExcel collects the corpus into one workbook sheet, one row per
// record, and saves it on Close.
type SaveToExcel struct {
	filePath   string
	writer     *utils.ExcelWriter
	processors []processor.Processor
	rows       int
	closed     bool
}

func NewSaveToExcel(config map[string]interface{}) (*SaveToExcel, error) {
	filePath, ok := config["file_path"].(string)
	if !ok || filePath == "" {
		return nil, errors.New("invalid configuration: missing 'file_path'")
	}
	sheet := getString(config, "sheet", "Happiness")

	headers := append([]string{"year", "source"}, processor.CanonicalFields...)
	writer, err := utils.NewExcelWriter(expandHome(filePath), sheet, headers)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create Excel writer")
	}

	return &SaveToExcel{
		filePath: filePath,
		writer:   writer,
	}, nil
}

func (c *SaveToExcel) Subscribe(p processor.Processor) {
	c.processors = append(c.processors, p)
}

func (c *SaveToExcel) Process(ctx context.Context, msg processor.Message) error {
	batch, err := processor.BatchFromMessage(msg)
	if err != nil {
		return errors.Wrap(err, "SaveToExcel")
	}

	for _, rec := range batch.Records {
		if err := c.writer.AppendRow(workbookRow(batch, rec)); err != nil {
			return errors.Wrapf(err, "SaveToExcel: %s", batch.Source)
		}
		c.rows++
	}

	for _, p := range c.processors {
		if err := p.Process(ctx, msg); err != nil {
			return errors.Wrapf(err, "error in downstream processor %T", p)
		}
	}
	return nil
}

// workbookRow follows CanonicalFields. Absent values stay empty cells.
func workbookRow(batch processor.YearBatch, rec processor.Record) []interface{} {
	row := []interface{}{batch.Year, batch.Source, intCell(rec.Ranking), rec.CountryName}
	if rec.RegionName.Valid {
		row = append(row, rec.RegionName.String)
	} else {
		row = append(row, nil)
	}
	for _, v := range []null.Float{
		rec.HappinessScore, rec.GDPPerCapita, rec.SocialSupport, rec.HealthyLife,
		rec.Freedom, rec.Generosity, rec.Corruption, rec.Residual,
	} {
		if v.Valid {
			row = append(row, v.Float64)
		} else {
			row = append(row, nil)
		}
	}
	for _, v := range []null.Int{rec.RegionID, rec.CountryID, rec.ReportID, rec.EconomicID, rec.SocialID, rec.PerceptionID} {
		row = append(row, intCell(v))
	}
	return row
}

func intCell(v null.Int) interface{} {
	if v.Valid {
		return v.Int64
	}
	return nil
}

func (c *SaveToExcel) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	defer c.writer.Close()
	if err := c.writer.Save(); err != nil {
		return err
	}
	log.WithFields(log.Fields{"consumer": "excel", "file": c.filePath, "rows": c.rows}).Info("saved workbook")
	return nil
}

// Abort closes the workbook without saving it.
func (c *SaveToExcel) Abort() error {
	if c.closed {
		return nil
	}
	c.closed = true
	return c.writer.Close()
}

func (c *SaveToExcel) Summary() []string {
	return []string{fmt.Sprintf("excel: %d rows to %s", c.rows, c.filePath)}
}
