package reporting

import (
	"context"
	"fmt"

	jsoniter "github.com/json-iterator/go"

	"github.com/xkilldash9x/scalpel-e2e/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// JSONWriter writes report.json.
type JSONWriter struct{}

func (*JSONWriter) Name() string { return "json" }

func (*JSONWriter) Write(ctx context.Context, report *schemas.RunReport) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	return writeFile(report.Dir, JSONFileName, data)
}
