// -- internal/reporting/writer.go --
package reporting

import (
	"fmt"
	"os"
	"path/filepath"
)

// Report file names inside the run directory.
const (
	JSONFileName    = "report.json"
	SummaryFileName = "summary.txt"
)

// NewWriters builds the file writers for the configured formats.
func NewWriters(formats []string) ([]Writer, error) {
	writers := make([]Writer, 0, len(formats))
	seen := map[string]bool{}
	for _, f := range formats {
		if seen[f] {
			continue
		}
		seen[f] = true
		switch f {
		case "html":
			w, err := NewHTMLWriter()
			if err != nil {
				return nil, err
			}
			writers = append(writers, w)
		case "json":
			writers = append(writers, &JSONWriter{})
		case "text":
			writers = append(writers, &TextWriter{})
		default:
			return nil, fmt.Errorf("unsupported report format: %s", f)
		}
	}
	return writers, nil
}

// writeFile writes data to name in dir through a temp file so readers never see
// a partial report.
func writeFile(dir, name string, data []byte) error {
	tmp, err := os.CreateTemp(dir, "."+name+".*")
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", name, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(dir, name)); err != nil {
		return fmt.Errorf("failed to finalize %s: %w", name, err)
	}
	return nil
}
