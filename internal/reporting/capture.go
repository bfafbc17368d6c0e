package reporting

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/xkilldash9x/scalpel-e2e/api/schemas"
)

// Screenshot storage modes understood by Capturer.
const (
	ModeInline = "inline"
	ModeFile   = "file"
)

// Screenshotter is the part of a page a Capturer needs.
type Screenshotter interface {
	Screenshot(ctx context.Context) ([]byte, error)
}

// Capturer turns a full-page screenshot into a step attachment.
type Capturer struct {
	mode string
	// dirFn resolves the run directory lazily so a Capturer can be built before Init.
	dirFn func() string
	now   func() time.Time
	// tag disambiguates captures of the same test within one millisecond.
	tag func() string
}

// NewCapturer returns a capturer for mode. dir is called on every file-mode
// capture and must return the run directory.
func NewCapturer(mode string, dir func() string) *Capturer {
	return &Capturer{mode: mode, dirFn: dir, now: time.Now, tag: shortID}
}

// Capture takes a screenshot of page. Errors are returned, never panicked.
func (c *Capturer) Capture(ctx context.Context, page Screenshotter, testName string) (*schemas.Attachment, error) {
	if c == nil || page == nil {
		return nil, errors.New("screenshot capture unavailable")
	}
	img, err := page.Screenshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("screenshot failed: %w", err)
	}
	if len(img) == 0 {
		return nil, errors.New("screenshot returned no data")
	}

	if c.mode != ModeFile {
		return &schemas.Attachment{Base64: base64.StdEncoding.EncodeToString(img)}, nil
	}

	dir := c.dirFn()
	if dir == "" {
		return nil, ErrNotInitialized
	}
	stamp := strings.Replace(c.now().Format("20060102_150405.000"), ".", "", 1)
	rel := filepath.ToSlash(filepath.Join(ScreenshotDirName, SafeName(testName)+"_"+stamp+"_"+c.tag()+".png"))
	if err := os.WriteFile(filepath.Join(dir, filepath.FromSlash(rel)), img, 0o644); err != nil {
		return nil, fmt.Errorf("failed to save screenshot: %w", err)
	}
	return &schemas.Attachment{Path: rel}, nil
}

func shortID() string { return uuid.NewString()[:8] }
