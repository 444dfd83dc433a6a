package eval

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

var reportHeader = []string{
	"question", "ground_truth", "answer", "context_retrieved",
	"retrieval_accuracy", "retrieval_precision", "contextual_accuracy", "contextual_precision",
}

const reportSheet = "Results"

// WriteReport writes results to path as CSV or, for .xlsx paths, as a workbook.
func WriteReport(path string, results []Result) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("eval: create report: %w", err)
	}
	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		err = WriteXLSX(f, results)
	} else {
		err = WriteCSV(f, results)
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	return err
}

// WriteCSV writes a header row and one row per result.
func WriteCSV(w io.Writer, results []Result) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(reportHeader); err != nil {
		return fmt.Errorf("eval: write csv: %w", err)
	}
	for _, r := range results {
		row := []string{
			r.Question, r.GroundTruth, r.Answer, r.Context,
			strconv.Itoa(r.RetrievalAccuracy), strconv.Itoa(r.RetrievalPrecision),
			strconv.Itoa(r.ContextualAccuracy), strconv.Itoa(r.ContextualPrecision),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("eval: write csv: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("eval: write csv: %w", err)
	}
	return nil
}

// WriteXLSX writes the same table as WriteCSV to a single-sheet workbook,
// followed by an averages row.
func WriteXLSX(w io.Writer, results []Result) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", reportSheet); err != nil {
		return fmt.Errorf("eval: xlsx: %w", err)
	}

	header := make([]any, len(reportHeader))
	for i, h := range reportHeader {
		header[i] = h
	}
	if err := f.SetSheetRow(reportSheet, "A1", &header); err != nil {
		return fmt.Errorf("eval: xlsx header: %w", err)
	}

	for i, r := range results {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("eval: xlsx: %w", err)
		}
		row := []any{
			r.Question, r.GroundTruth, r.Answer, r.Context,
			r.RetrievalAccuracy, r.RetrievalPrecision, r.ContextualAccuracy, r.ContextualPrecision,
		}
		if err := f.SetSheetRow(reportSheet, cell, &row); err != nil {
			return fmt.Errorf("eval: xlsx row %d: %w", i+2, err)
		}
	}

	avg := Average(results)
	cell, _ := excelize.CoordinatesToCellName(1, len(results)+2)
	summary := []any{"average", "", "", "", avg.RetrievalAccuracy, avg.RetrievalPrecision, avg.ContextualAccuracy, avg.ContextualPrecision}
	if err := f.SetSheetRow(reportSheet, cell, &summary); err != nil {
		return fmt.Errorf("eval: xlsx averages: %w", err)
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("eval: xlsx write: %w", err)
	}
	return nil
}
