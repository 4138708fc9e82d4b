package output

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"modsim/internal/recorder"
)

// WriteJSON writes the history to a JSON file with pretty formatting.
func WriteJSON(path string, updates []recorder.Update) error {
	type entry struct {
		At      string  `json:"at"`
		Table   string  `json:"table"`
		Address uint16  `json:"address"`
		Value   float64 `json:"value"`
	}
	entries := make([]entry, len(updates))
	for i, u := range updates {
		entries[i] = entry{
			At:      u.At.Format(time.RFC3339Nano),
			Table:   u.Table,
			Address: u.Address,
			Value:   u.Value,
		}
	}
	b, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}
	if err := os.WriteFile(path, b, 0644); err != nil {
		return fmt.Errorf("write json: %w", err)
	}
	return nil
}

// WriteCSV writes the history to a CSV file.
// Columns: at,table,address,value
func WriteCSV(path string, updates []recorder.Update) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create csv: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"at", "table", "address", "value"}); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, u := range updates {
		rec := []string{
			u.At.Format(time.RFC3339Nano),
			u.Table,
			strconv.Itoa(int(u.Address)),
			strconv.FormatFloat(u.Value, 'g', -1, 64),
		}
		if err := w.Write(rec); err != nil {
			return fmt.Errorf("write record: %w", err)
		}
	}
	w.Flush()
	return w.Error()
}
