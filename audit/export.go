// ABOUTME: Audit log serialization to table and structured formats
// ABOUTME: CSV for spreadsheets, JSON and YAML for tooling
package audit

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/harperreed/studysync/canon"
	"github.com/harperreed/studysync/models"
)

const (
	FormatCSV  = "csv"
	FormatJSON = "json"
	FormatYAML = "yaml"
)

var csvHeader = []string{
	"id", "timestamp", "action", "resource_type", "resource_id",
	"severity", "details", "previous_hash", "hash",
}

// Encode serializes entries in the named format.
func Encode(entries []models.AuditLogEntry, format string) ([]byte, error) {
	if entries == nil {
		entries = []models.AuditLogEntry{}
	}
	switch format {
	case FormatCSV:
		return encodeCSV(entries)
	case FormatJSON:
		data, err := json.MarshalIndent(entries, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("failed to encode audit json: %w", err)
		}
		return append(data, '\n'), nil
	case FormatYAML:
		data, err := yaml.Marshal(entries)
		if err != nil {
			return nil, fmt.Errorf("failed to encode audit yaml: %w", err)
		}
		return data, nil
	default:
		return nil, fmt.Errorf("unsupported export format %q", format)
	}
}

func encodeCSV(entries []models.AuditLogEntry) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(csvHeader); err != nil {
		return nil, err
	}
	for _, e := range entries {
		details, err := canon.Marshal(e.Details)
		if err != nil {
			return nil, fmt.Errorf("failed to encode details of %s: %w", e.ID, err)
		}
		row := []string{
			e.ID, e.Timestamp, e.Action, e.ResourceType, e.ResourceID,
			e.Severity, string(details), e.PreviousHash, e.Hash,
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("failed to encode audit csv: %w", err)
	}
	return buf.Bytes(), nil
}
