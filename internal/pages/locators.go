package pages

// Login page.
const (
	UsernameInput = "#loginUsername"
	PasswordInput = "#loginPassword"
	LoginButton   = "[type='submit']"
	ErrorMessage  = "#errorMsg"
	LogoutButton  = "#logoutBtn"
)

// Products page.
const (
	ProductsTitle         = "//*[@class='inventory-top']/h2"
	FirstProductAddButton = "[data-id='p3']"
	CartButton            = "#cartBtn"
)

// Cart page.
const (
	CartTitle      = "//*[@class='container']/h2"
	CheckoutButton = "#checkoutBtn"
)

// Checkout information page.
const (
	FullNameInput   = "#fullName"
	AddressInput    = "#address"
	CardNumberInput = "#cardNumber"
	ExpiryInput     = "#expiry"
	CVCInput        = "#cvc"
	PayButton       = ".btn.primary"
	ConfirmButton   = "[onclick='confirmPayment()']"
)

// Checkout overview and completion.
const (
	OrderDetails    = "#orderDetails"
	FinishButton    = "#finishBtn"
	ThankYouMessage = "#thankYouMsg"
)
