// Package suites holds the harness's test suites as data driven case lists.
package suites

import (
	"context"
	"fmt"

	"github.com/xkilldash9x/scalpel-e2e/internal/config"
	"github.com/xkilldash9x/scalpel-e2e/internal/data"
	"github.com/xkilldash9x/scalpel-e2e/internal/lifecycle"
	"github.com/xkilldash9x/scalpel-e2e/internal/pages"
)

// CheckoutName prefixes the generated checkout case names.
const CheckoutName = "ValidLoginAndCheckout"

// Checkout builds one login and checkout case per data row. Rows come from the
// configured workbook, or from the login.* credentials when no data file is set.
func Checkout(cfg config.Interface) ([]lifecycle.TestCase, error) {
	rows, err := checkoutRows(cfg)
	if err != nil {
		return nil, err
	}

	fixtures := pages.Fixtures{BaseURL: cfg.Run().BaseURL, Checkout: cfg.Checkout()}
	cases := make([]lifecycle.TestCase, 0, len(rows))
	for i, row := range rows {
		cases = append(cases, lifecycle.TestCase{
			Name: fmt.Sprintf("%s[%d]", CheckoutName, i),
			Body: checkoutBody(row, fixtures),
		})
	}
	return cases, nil
}

func checkoutRows(cfg config.Interface) ([][]string, error) {
	run := cfg.Run()
	if run.DataFile == "" {
		login := cfg.Login()
		return [][]string{{login.Username, login.Password}}, nil
	}
	rows, err := data.ReadSheet(run.DataFile, run.DataSheet)
	if err != nil {
		return nil, fmt.Errorf("failed to load checkout data: %w", err)
	}
	return rows, nil
}

func checkoutBody(row []string, fixtures pages.Fixtures) func(context.Context, *lifecycle.T) error {
	return func(ctx context.Context, t *lifecycle.T) error {
		if len(row) < 2 {
			return lifecycle.Skip(fmt.Sprintf("row has %d columns, need username and password", len(row)))
		}
		username, password := row[0], row[1]
		t.Logf("Logging in as %s", username)

		surface := pages.NewSurface(ctx, t.Actions, fixtures, nil)
		login, err := pages.Open[*pages.LoginPage](surface, pages.IDLogin)
		if err != nil {
			return err
		}
		login.Open(fixtures.BaseURL).
			EnterUsername(username).
			EnterPassword(password).
			ClickLogin().
			AddToCart().
			GoToCart().
			ValidateCartPage().
			ClickCheckout().
			FillDetails().
			ClickPay().
			ClickConfirm().
			ValidateOverviewDetails().
			ClickLogout()
		return surface.Err()
	}
}
