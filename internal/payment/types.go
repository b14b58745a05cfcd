package payment

// Payment intents and payer methods understood by the PayPal v1 payments API.
const (
	IntentSale          = "sale"
	PayerMethodPayPal   = "paypal"
	RelApprovalURL      = "approval_url"
	defaultDescription  = "Storefront order"
	diagnosticSKU       = "test-123"
	diagnosticItemTitle = "Test Item"
)

// PaymentRequest is the body of POST /v1/payments/payment.
type PaymentRequest struct {
	Intent       string        `json:"intent"`
	Payer        Payer         `json:"payer"`
	RedirectURLs RedirectURLs  `json:"redirect_urls"`
	Transactions []Transaction `json:"transactions"`
}

type Payer struct {
	PaymentMethod string `json:"payment_method"`
}

type RedirectURLs struct {
	ReturnURL string `json:"return_url"`
	CancelURL string `json:"cancel_url"`
}

type Transaction struct {
	ItemList    ItemList `json:"item_list"`
	Amount      Amount   `json:"amount"`
	Description string   `json:"description,omitempty"`
}

type ItemList struct {
	Items []Item `json:"items"`
}

// Item is one line of the payment; Price is a decimal string in Currency.
type Item struct {
	Name     string `json:"name"`
	SKU      string `json:"sku"`
	Price    string `json:"price"`
	Currency string `json:"currency"`
	Quantity int    `json:"quantity"`
}

type Amount struct {
	Currency string `json:"currency"`
	Total    string `json:"total"`
}

// Payment is the subset of the created payment resource the checkout reads.
type Payment struct {
	ID     string `json:"id"`
	Intent string `json:"intent"`
	State  string `json:"state"`
	Links  []Link `json:"links"`
}

type Link struct {
	Href   string `json:"href"`
	Rel    string `json:"rel"`
	Method string `json:"method,omitempty"`
}

// ApprovalURL returns the link the buyer must be redirected to.
func (p *Payment) ApprovalURL() (string, bool) {
	for _, l := range p.Links {
		if l.Rel == RelApprovalURL && l.Href != "" {
			return l.Href, true
		}
	}
	return "", false
}
