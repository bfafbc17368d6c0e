package suites

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/scalpel-e2e/api/schemas"
	"github.com/xkilldash9x/scalpel-e2e/internal/browser"
	"github.com/xkilldash9x/scalpel-e2e/internal/config"
	"github.com/xkilldash9x/scalpel-e2e/internal/lifecycle"
	"github.com/xkilldash9x/scalpel-e2e/internal/mocks"
	"github.com/xkilldash9x/scalpel-e2e/internal/reporting"
)

type memoryWriter struct {
	mu     sync.Mutex
	report *schemas.RunReport
}

func (w *memoryWriter) Name() string { return "memory" }

func (w *memoryWriter) Write(ctx context.Context, r *schemas.RunReport) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.report = r
	return nil
}

func workbook(t *testing.T, rows ...[]string) string {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	for i, row := range rows {
		for j, v := range row {
			ref, err := excelize.CoordinatesToCellName(j+1, i+1)
			require.NoError(t, err)
			require.NoError(t, f.SetCellValue("Sheet1", ref, v))
		}
	}
	path := filepath.Join(t.TempDir(), "testdata.xlsx")
	require.NoError(t, f.SaveAs(path))
	return path
}

func mockConfig(run config.RunConfig) *mocks.MockConfig {
	cfg := new(mocks.MockConfig)
	cfg.On("Run").Return(run)
	cfg.On("Login").Return(config.Credentials{Username: "standard_user", Password: "secret_sauce"})
	cfg.On("Checkout").Return(config.CheckoutFixture{FullName: "Ramesh", CVC: "123"})
	return cfg
}

func runCases(t *testing.T, engine *mocks.FakeEngine, retries int, cases []lifecycle.TestCase) (*lifecycle.Summary, *schemas.RunReport) {
	t.Helper()
	logger := zaptest.NewLogger(t)
	manager := browser.NewManager(
		config.BrowserConfig{Kind: "chrome", ActionTimeout: time.Second},
		browser.LauncherFunc(func(ctx context.Context, spec browser.LaunchSpec) (schemas.Engine, error) {
			return engine, nil
		}),
		logger,
	)
	w := &memoryWriter{}
	sink := reporting.NewSink(reporting.Options{
		BaseDir: t.TempDir(), Environment: "QA", Browser: "chrome",
		Writers: []reporting.Writer{w},
	}, logger)
	ctrl, err := lifecycle.NewController(manager, sink, lifecycle.Options{Workers: 2, RetryCount: retries}, logger)
	require.NoError(t, err)

	summary, err := ctrl.Run(context.Background(), cases)
	require.NoError(t, err)
	require.NotNil(t, w.report)
	return summary, w.report
}

func TestCheckout_FallsBackToLoginCredentials(t *testing.T) {
	cases, err := Checkout(mockConfig(config.RunConfig{BaseURL: "https://shop.example.test"}))
	require.NoError(t, err)
	require.Len(t, cases, 1)
	assert.Equal(t, "ValidLoginAndCheckout[0]", cases[0].Name)
}

func TestCheckout_ReadsWorkbookRows(t *testing.T) {
	path := workbook(t,
		[]string{"username", "password"},
		[]string{"standard_user", "secret_sauce"},
		[]string{"", ""},
		[]string{"problem_user", "secret_sauce"},
	)
	cases, err := Checkout(mockConfig(config.RunConfig{DataFile: path, DataSheet: "Sheet1"}))
	require.NoError(t, err)
	require.Len(t, cases, 2)
	assert.Equal(t, "ValidLoginAndCheckout[1]", cases[1].Name)

	_, err = Checkout(mockConfig(config.RunConfig{DataFile: path, DataSheet: "Orders"}))
	assert.ErrorContains(t, err, "failed to load checkout data")
}

func TestCheckout_RunsPurchaseFlow(t *testing.T) {
	defer goleak.VerifyNone(t)
	path := workbook(t,
		[]string{"username", "password"},
		[]string{"standard_user", "secret_sauce"},
		[]string{"visual_user", "secret_sauce"},
	)
	cases, err := Checkout(mockConfig(config.RunConfig{BaseURL: "https://shop.example.test", DataFile: path, DataSheet: "Sheet1"}))
	require.NoError(t, err)

	engine := &mocks.FakeEngine{}
	summary, report := runCases(t, engine, 0, cases)
	assert.Equal(t, 2, summary.Passed)
	require.Len(t, report.Entries, 2)

	for _, e := range report.Entries {
		require.NotEmpty(t, e.Steps)
		assert.Equal(t, schemas.VerdictPassed, e.Verdict)
		assert.Contains(t, e.Steps[0].Message, "Logging in as ")
		assert.Equal(t, "Navigate → https://shop.example.test", e.Steps[1].Message)
		assert.Equal(t, "Test passed: "+e.Name, e.Steps[len(e.Steps)-1].Message)
	}
	for _, s := range engine.Sessions() {
		calls := s.Page().(*mocks.FakePage).Calls()
		require.NotEmpty(t, calls)
		assert.Equal(t, "click #logoutBtn", calls[len(calls)-1])
	}
}

func TestCheckout_FailingStepFailsAfterRetries(t *testing.T) {
	defer goleak.VerifyNone(t)
	cases, err := Checkout(mockConfig(config.RunConfig{BaseURL: "https://shop.example.test"}))
	require.NoError(t, err)

	engine := &mocks.FakeEngine{Failing: map[string]error{"#checkoutBtn": errors.New("detached")}}
	summary, report := runCases(t, engine, 1, cases)
	assert.Equal(t, 1, summary.Failed)
	require.Len(t, report.Entries, 2)
	assert.Equal(t, schemas.VerdictSkipped, report.Entries[0].Verdict)
	assert.Equal(t, schemas.VerdictFailed, report.Entries[1].Verdict)
}

func TestCheckout_ShortRowIsSkipped(t *testing.T) {
	defer goleak.VerifyNone(t)
	path := workbook(t, []string{"username"}, []string{"standard_user"})
	cases, err := Checkout(mockConfig(config.RunConfig{DataFile: path, DataSheet: "Sheet1"}))
	require.NoError(t, err)

	summary, report := runCases(t, &mocks.FakeEngine{}, 2, cases)
	assert.Equal(t, 1, summary.Skipped)
	require.Len(t, report.Entries, 1, "skips are not retried")
}
