package domain

import "testing"

func TestFormatCents(t *testing.T) {
	cases := []struct {
		amount int64
		want   string
	}{
		{0, "$0.00"},
		{5, "$0.05"},
		{100, "$1.00"},
		{2808, "$28.08"},
		{150000, "$1500.00"},
		{-500, "-$5.00"},
	}
	for _, tc := range cases {
		if got := FormatCents(tc.amount); got != tc.want {
			t.Fatalf("FormatCents(%d) = %s, want %s", tc.amount, got, tc.want)
		}
	}
}

func TestStatusTerminal(t *testing.T) {
	if StatusNotReadyForPayment.Terminal() || StatusReadyForPayment.Terminal() {
		t.Fatal("open statuses must not be terminal")
	}
	if !StatusCompleted.Terminal() || !StatusCanceled.Terminal() {
		t.Fatal("completed and canceled must be terminal")
	}
	if StatusInProgress.Terminal() {
		t.Fatal("in_progress must not be terminal")
	}
}

func TestCheckoutSessionCloneIsDeep(t *testing.T) {
	phone := "+14155550100"
	option := "fulfillment_shipping_standard"
	param := "$.fulfillment_address"
	session := CheckoutSession{
		ID:     "cs_abc",
		Status: StatusReadyForPayment,
		Buyer:  &Buyer{FirstName: "Jordan", PhoneNumber: &phone},
		FulfillmentAddress: &Address{
			Name: "Jordan Reyes",
			City: "San Francisco",
		},
		FulfillmentOptionID: option,
		LineItems: []LineItem{
			{ID: "line_item_001_1", BaseAmount: 2600, Subtotal: 2600, Tax: 208, Total: 2808},
		},
		FulfillmentOptions: []FulfillmentOption{
			{Type: FulfillmentOptionTypeShipping, ID: option},
		},
		Totals: []Total{{Type: TotalTypeTotal, DisplayText: "Total", Amount: 2808}},
		Messages: []Message{
			{Type: MessageTypeInfo, Param: &param, ContentType: ContentTypePlain, Content: "Please provide a shipping address to continue"},
		},
		Links: []Link{{Type: LinkTypeTermsOfUse, URL: "https://merchant.example.com/terms"}},
		Order: &Order{ID: "order_1"},
	}

	clone := session.Clone()

	clone.Buyer.FirstName = "Alex"
	*clone.Buyer.PhoneNumber = "+10000000000"
	clone.FulfillmentAddress.City = "Oakland"
	clone.LineItems[0].Total = 1
	clone.FulfillmentOptions[0].ID = "mutated"
	clone.Totals[0].Amount = 1
	*clone.Messages[0].Param = "mutated"
	clone.Links[0].URL = "mutated"
	clone.Order.ID = "mutated"

	if session.Buyer.FirstName != "Jordan" || *session.Buyer.PhoneNumber != phone {
		t.Fatal("buyer aliased between clone and original")
	}
	if session.FulfillmentAddress.City != "San Francisco" {
		t.Fatal("address aliased between clone and original")
	}
	if session.LineItems[0].Total != 2808 {
		t.Fatal("line items aliased between clone and original")
	}
	if session.FulfillmentOptions[0].ID != option {
		t.Fatal("options aliased between clone and original")
	}
	if session.Totals[0].Amount != 2808 {
		t.Fatal("totals aliased between clone and original")
	}
	if *session.Messages[0].Param != param {
		t.Fatal("message param aliased between clone and original")
	}
	if session.Links[0].URL != "https://merchant.example.com/terms" {
		t.Fatal("links aliased between clone and original")
	}
	if session.Order.ID != "order_1" {
		t.Fatal("order aliased between clone and original")
	}
}
