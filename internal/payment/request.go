package payment

import "github.com/shopspring/decimal"

// Line is a display-currency order line to be charged.
type Line struct {
	Name     string
	SKU      string
	Price    float64
	Quantity int
}

// NewSaleRequest builds a sale intent in the quote's currency.
//
// Each price is converted on its own. When the lines add up to total, the settlement total is the
// sum of the converted lines so PayPal's item/amount consistency check holds after rounding;
// otherwise total itself is converted.
func NewSaleRequest(q Quote, lines []Line, total float64, urls RedirectURLs) PaymentRequest {
	items := make([]Item, 0, len(lines))
	displaySum := decimal.Zero
	settlementSum := decimal.Zero
	for _, l := range lines {
		price := q.Convert(l.Price)
		qty := decimal.NewFromInt(int64(l.Quantity))
		displaySum = displaySum.Add(decimal.NewFromFloat(l.Price).Mul(qty))
		settlementSum = settlementSum.Add(price.Mul(qty))
		items = append(items, Item{
			Name:     l.Name,
			SKU:      l.SKU,
			Price:    price.StringFixed(2),
			Currency: q.Currency,
			Quantity: l.Quantity,
		})
	}

	settlementTotal := q.Convert(total)
	if displaySum.Round(2).Equal(decimal.NewFromFloat(total).Round(2)) {
		settlementTotal = settlementSum
	}

	return PaymentRequest{
		Intent:       IntentSale,
		Payer:        Payer{PaymentMethod: PayerMethodPayPal},
		RedirectURLs: urls,
		Transactions: []Transaction{{
			ItemList:    ItemList{Items: items},
			Amount:      Amount{Currency: q.Currency, Total: settlementTotal.StringFixed(2)},
			Description: defaultDescription,
		}},
	}
}

// DiagnosticRequest is a 1.00 test payment used to check gateway connectivity.
func DiagnosticRequest(currency string, urls RedirectURLs) PaymentRequest {
	return PaymentRequest{
		Intent:       IntentSale,
		Payer:        Payer{PaymentMethod: PayerMethodPayPal},
		RedirectURLs: urls,
		Transactions: []Transaction{{
			ItemList: ItemList{Items: []Item{{
				Name:     diagnosticItemTitle,
				SKU:      diagnosticSKU,
				Price:    "1.00",
				Currency: currency,
				Quantity: 1,
			}}},
			Amount:      Amount{Currency: currency, Total: "1.00"},
			Description: "Test payment",
		}},
	}
}
