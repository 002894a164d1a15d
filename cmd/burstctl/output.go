package main

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/ogulcanaydogan/radio-burst-toolkit/pkg/burst"
	"github.com/ogulcanaydogan/radio-burst-toolkit/pkg/observability"
)

func writeJSON(path string, stdout io.Writer, payload any) (err error) {
	writer, closeFn, err := openOutput(path, stdout)
	if err != nil {
		return err
	}
	defer func() {
		closeErr := closeFn()
		if err == nil && closeErr != nil {
			err = closeErr
		}
	}()

	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(payload); err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return nil
}

func writeJSONL[T any](path string, stdout io.Writer, rows []T) (err error) {
	writer, closeFn, err := openOutput(path, stdout)
	if err != nil {
		return err
	}
	defer func() {
		closeErr := closeFn()
		if err == nil && closeErr != nil {
			err = closeErr
		}
	}()

	buffered := bufio.NewWriter(writer)
	encoder := json.NewEncoder(buffered)
	for _, row := range rows {
		if err := encoder.Encode(row); err != nil {
			return fmt.Errorf("encode row: %w", err)
		}
	}
	return buffered.Flush()
}

func writeCategoriesCSV(path string, stdout io.Writer, categories []burst.CategorySummary) (err error) {
	out, closeFn, err := openOutput(path, stdout)
	if err != nil {
		return err
	}
	defer func() {
		closeErr := closeFn()
		if err == nil && closeErr != nil {
			err = closeErr
		}
	}()

	writer := csv.NewWriter(out)
	if err := writer.Write([]string{
		"category", "count", "payload", "payload_pct", "energy", "energy_pct", "active_time", "active_pct", "j_per_kb",
	}); err != nil {
		return err
	}
	for _, c := range categories {
		if err := writer.Write([]string{
			string(c.Category),
			strconv.Itoa(c.Count),
			strconv.Itoa(c.Payload),
			formatFloat(c.PayloadPct),
			formatFloat(c.Energy),
			formatFloat(c.EnergyPct),
			formatFloat(c.ActiveTime),
			formatFloat(c.ActivePct),
			formatFloat(c.JPerKB),
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func writeMetrics(path string, stdout io.Writer, metrics *observability.Metrics) (err error) {
	writer, closeFn, err := openOutput(path, stdout)
	if err != nil {
		return err
	}
	defer func() {
		closeErr := closeFn()
		if err == nil && closeErr != nil {
			err = closeErr
		}
	}()
	return metrics.WriteText(writer)
}

func openOutput(path string, stdout io.Writer) (io.Writer, func() error, error) {
	if path == "-" {
		return stdout, func() error { return nil }, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, nil, fmt.Errorf("create output directory: %w", err)
	}

	file, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("create output file: %w", err)
	}
	return file, file.Close, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}
