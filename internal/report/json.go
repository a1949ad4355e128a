package report

import (
	"fmt"
	"io"
	"os"

	"github.com/goccy/go-json"

	"github.com/tupyy/platform-verifier/internal/models"
)

// WriteJSON writes the machine-readable report.
func WriteJSON(w io.Writer, r *models.RunReport) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	return nil
}

// WriteJSONFile writes the machine-readable report to a file.
func WriteJSONFile(path string, r *models.RunReport) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report file %q: %w", path, err)
	}
	defer f.Close()
	return WriteJSON(f, r)
}
