package pages

import (
	"context"

	"github.com/xkilldash9x/scalpel-e2e/internal/actions"
)

// LoginPage is the shop's sign-in screen.
type LoginPage struct{ base }

func (*LoginPage) ID() string { return IDLogin }

// Open navigates to url, or to the configured base URL when url is empty.
func (p *LoginPage) Open(url string) *LoginPage {
	if url == "" {
		url = p.s.fixtures.BaseURL
	}
	p.s.do(func(ctx context.Context, a *actions.Actions) error { return a.Navigate(ctx, url) })
	return p
}

func (p *LoginPage) EnterUsername(username string) *LoginPage {
	p.s.do(func(ctx context.Context, a *actions.Actions) error { return a.Fill(ctx, UsernameInput, username) })
	return p
}

func (p *LoginPage) EnterPassword(password string) *LoginPage {
	p.s.do(func(ctx context.Context, a *actions.Actions) error { return a.Fill(ctx, PasswordInput, password) })
	return p
}

func (p *LoginPage) ClickLogin() *ProductsPage {
	p.s.do(func(ctx context.Context, a *actions.Actions) error { return a.Click(ctx, LoginButton) })
	return next(p.s, IDProducts, func(b base) *ProductsPage { return &ProductsPage{b} })
}

// ErrorMessage reads the login error banner.
func (p *LoginPage) ErrorMessage() string {
	var msg string
	p.s.do(func(ctx context.Context, a *actions.Actions) (err error) {
		msg, err = a.Text(ctx, ErrorMessage)
		return err
	})
	return msg
}

// ProductsPage lists the inventory after login.
type ProductsPage struct{ base }

func (*ProductsPage) ID() string { return IDProducts }

func (p *ProductsPage) ValidateProductsPage() *ProductsPage {
	p.s.do(func(ctx context.Context, a *actions.Actions) error { return a.AssertVisible(ctx, ProductsTitle) })
	return p
}

// AddToCart adds the featured product.
func (p *ProductsPage) AddToCart() *ProductsPage {
	p.s.do(func(ctx context.Context, a *actions.Actions) error { return a.Click(ctx, FirstProductAddButton) })
	return p
}

func (p *ProductsPage) GoToCart() *CartPage {
	p.s.do(func(ctx context.Context, a *actions.Actions) error { return a.Click(ctx, CartButton) })
	return next(p.s, IDCart, func(b base) *CartPage { return &CartPage{b} })
}

// CartPage shows the items about to be bought.
type CartPage struct{ base }

func (*CartPage) ID() string { return IDCart }

func (p *CartPage) ValidateCartPage() *CartPage {
	p.s.do(func(ctx context.Context, a *actions.Actions) error { return a.AssertVisible(ctx, CartTitle) })
	return p
}

func (p *CartPage) ClickCheckout() *CheckoutPage {
	p.s.do(func(ctx context.Context, a *actions.Actions) error { return a.Click(ctx, CheckoutButton) })
	return next(p.s, IDCheckout, func(b base) *CheckoutPage { return &CheckoutPage{b} })
}

// CheckoutPage collects shipping and payment details. Values come from the
// checkout fixture.
type CheckoutPage struct{ base }

func (*CheckoutPage) ID() string { return IDCheckout }

func (p *CheckoutPage) fill(selector, value string) *CheckoutPage {
	p.s.do(func(ctx context.Context, a *actions.Actions) error { return a.Fill(ctx, selector, value) })
	return p
}

func (p *CheckoutPage) EnterFullName() *CheckoutPage {
	return p.fill(FullNameInput, p.s.fixtures.Checkout.FullName)
}

func (p *CheckoutPage) EnterAddress() *CheckoutPage {
	return p.fill(AddressInput, p.s.fixtures.Checkout.Address)
}

func (p *CheckoutPage) EnterCardNumber() *CheckoutPage {
	return p.fill(CardNumberInput, p.s.fixtures.Checkout.CardNumber)
}

func (p *CheckoutPage) EnterExpiry() *CheckoutPage {
	return p.fill(ExpiryInput, p.s.fixtures.Checkout.Expiry)
}

func (p *CheckoutPage) EnterCVC() *CheckoutPage {
	return p.fill(CVCInput, p.s.fixtures.Checkout.CVC)
}

// FillDetails enters every checkout field from the fixture.
func (p *CheckoutPage) FillDetails() *CheckoutPage {
	return p.EnterFullName().EnterAddress().EnterCardNumber().EnterExpiry().EnterCVC()
}

func (p *CheckoutPage) ClickPay() *CheckoutPage {
	p.s.do(func(ctx context.Context, a *actions.Actions) error { return a.Click(ctx, PayButton) })
	return p
}

func (p *CheckoutPage) ClickConfirm() *OverviewPage {
	p.s.do(func(ctx context.Context, a *actions.Actions) error { return a.Click(ctx, ConfirmButton) })
	return next(p.s, IDOverview, func(b base) *OverviewPage { return &OverviewPage{b} })
}

// OverviewPage summarizes the placed order.
type OverviewPage struct{ base }

func (*OverviewPage) ID() string { return IDOverview }

// ValidateOverviewDetails asserts the order details are shown and records them.
func (p *OverviewPage) ValidateOverviewDetails() *OverviewPage {
	p.s.do(func(ctx context.Context, a *actions.Actions) error {
		if err := a.AssertVisible(ctx, OrderDetails); err != nil {
			return err
		}
		_, err := a.Text(ctx, OrderDetails)
		return err
	})
	return p
}

// OrderDetails returns the order summary text.
func (p *OverviewPage) OrderDetails() string {
	var text string
	p.s.do(func(ctx context.Context, a *actions.Actions) (err error) {
		text, err = a.Text(ctx, OrderDetails)
		return err
	})
	return text
}

// Finish completes the order once the overview has been reviewed.
func (p *OverviewPage) Finish() *OverviewPage {
	p.s.do(func(ctx context.Context, a *actions.Actions) error {
		if err := a.Click(ctx, FinishButton); err != nil {
			return err
		}
		return a.AssertVisible(ctx, ThankYouMessage)
	})
	return p
}

func (p *OverviewPage) ThankYouMessage() string {
	var text string
	p.s.do(func(ctx context.Context, a *actions.Actions) (err error) {
		text, err = a.Text(ctx, ThankYouMessage)
		return err
	})
	return text
}

func (p *OverviewPage) ClickLogout() *LoginPage {
	p.s.do(func(ctx context.Context, a *actions.Actions) error { return a.Click(ctx, LogoutButton) })
	return next(p.s, IDLogin, func(b base) *LoginPage { return &LoginPage{b} })
}
