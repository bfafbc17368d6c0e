package reporting

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

const (
	// ReportFileName is the HTML report inside the run directory.
	ReportFileName = "TestReport.html"
	// ScreenshotDirName holds captured images in file mode.
	ScreenshotDirName = "screenshots"
)

// RunDir returns <base>/<yyyy>/<Mon>/<dd-MM-yyyy>/run_<HH-mm-ss> for a run started at t.
func RunDir(base string, t time.Time) string {
	return filepath.Join(base,
		t.Format("2006"),
		t.Format("Jan"),
		t.Format("02-01-2006"),
		"run_"+t.Format("15-04-05"),
	)
}

// createRunDir makes the run directory and its screenshots folder.
func createRunDir(dir string) error {
	if err := os.MkdirAll(filepath.Join(dir, ScreenshotDirName), 0o755); err != nil {
		return fmt.Errorf("failed to create report directory %s: %w", dir, err)
	}
	return nil
}

// SafeName turns a test name into a file-name-safe token. Accents are folded by
// compatibility decomposition, every other non-alphanumeric rune becomes "_".
func SafeName(name string) string {
	var b strings.Builder
	for _, r := range norm.NFKD.String(name) {
		switch {
		case unicode.Is(unicode.Mn, r):
			continue
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			b.WriteRune(unicode.ToLower(r))
		default:
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		return "test"
	}
	return b.String()
}
