package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
)

// Dataset defines tabular export content.
type Dataset struct {
	Name    string
	Headers []string
	Rows    []map[string]string
}

// Document groups datasets under a title and optional summary lines.
type Document struct {
	Title    string
	Summary  []string
	Sections []Dataset
}

// CSVExporter renders documents into CSV bytes.
type CSVExporter struct{}

// NewCSVExporter builds a CSV exporter.
func NewCSVExporter() *CSVExporter {
	return &CSVExporter{}
}

// Render produces CSV encoded bytes. Sections are separated by an empty
// record followed by the section name.
func (e *CSVExporter) Render(doc Document) ([]byte, error) {
	if len(doc.Sections) == 0 {
		return nil, fmt.Errorf("csv requires at least one section")
	}
	buf := &bytes.Buffer{}
	writer := csv.NewWriter(buf)
	writer.UseCRLF = false
	for i, section := range doc.Sections {
		if len(section.Headers) == 0 {
			return nil, fmt.Errorf("csv section %q requires at least one header", section.Name)
		}
		if i > 0 {
			if err := writer.Write([]string{""}); err != nil {
				return nil, fmt.Errorf("write csv separator: %w", err)
			}
		}
		if section.Name != "" {
			if err := writer.Write([]string{section.Name}); err != nil {
				return nil, fmt.Errorf("write csv section name: %w", err)
			}
		}
		if err := writer.Write(section.Headers); err != nil {
			return nil, fmt.Errorf("write csv headers: %w", err)
		}
		for _, row := range section.Rows {
			record := make([]string, len(section.Headers))
			for j, header := range section.Headers {
				record[j] = row[header]
			}
			if err := writer.Write(record); err != nil {
				return nil, fmt.Errorf("write csv row: %w", err)
			}
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}
