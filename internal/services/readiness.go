package services

import "github.com/stitchfield/api/internal/domain"

// classifyReadiness decides whether a derived session can accept payment
// and which messages ride along with it. It never yields a terminal status.
func classifyReadiness(priced PriceResult, address *domain.Address, optionID string) (domain.Status, []domain.Message) {
	messages := make([]domain.Message, 0, len(priced.Errors)+1)
	messages = append(messages, priced.Errors...)
	if len(priced.Errors) > 0 || len(priced.LineItems) == 0 {
		return domain.StatusNotReadyForPayment, messages
	}
	if priced.HasPhysical && (address == nil || optionID == "") {
		messages = append(messages, addressAdvisory())
		return domain.StatusNotReadyForPayment, messages
	}
	return domain.StatusReadyForPayment, messages
}

// addressAdvisory is the info message shown while a physical cart still
// needs a destination. It also covers the missing-option case, pointing at
// the address field either way.
func addressAdvisory() domain.Message {
	param := "$.fulfillment_address"
	return domain.Message{
		Type:        domain.MessageTypeInfo,
		Param:       &param,
		ContentType: domain.ContentTypePlain,
		Content:     "Please provide a shipping address to continue",
	}
}

// buildTotals assembles the ordered totals breakdown. The discount and
// fulfillment rows appear only when they carry a non-zero amount.
func buildTotals(lineItems []domain.LineItem, selected *domain.FulfillmentOption) []domain.Total {
	var base, discount, subtotal, tax int64
	for _, line := range lineItems {
		base += line.BaseAmount
		discount += line.Discount
		subtotal += line.Subtotal
		tax += line.Tax
	}

	var fulfillmentCost int64
	if selected != nil && selected.Type == domain.FulfillmentOptionTypeShipping {
		if cents, ok := FulfillmentSurcharge(selected.ID); ok {
			fulfillmentCost = cents
		}
	}

	totals := []domain.Total{
		{Type: domain.TotalTypeItemsBaseAmount, DisplayText: "Items", Amount: base},
	}
	if discount > 0 {
		totals = append(totals, domain.Total{Type: domain.TotalTypeItemsDiscount, DisplayText: "Discount", Amount: -discount})
	}
	totals = append(totals, domain.Total{Type: domain.TotalTypeSubtotal, DisplayText: "Subtotal", Amount: subtotal})
	if fulfillmentCost > 0 {
		totals = append(totals, domain.Total{Type: domain.TotalTypeFulfillment, DisplayText: "Shipping", Amount: fulfillmentCost})
	}
	totals = append(totals,
		domain.Total{Type: domain.TotalTypeTax, DisplayText: "Tax", Amount: tax},
		domain.Total{Type: domain.TotalTypeTotal, DisplayText: "Total", Amount: subtotal + tax + fulfillmentCost},
	)
	return totals
}
