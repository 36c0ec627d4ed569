package domain

// Status enumerates the lifecycle states of a checkout session.
type Status string

const (
	// StatusNotReadyForPayment indicates the session is missing information required to accept payment.
	StatusNotReadyForPayment Status = "not_ready_for_payment"
	// StatusReadyForPayment indicates the session can be completed with a payment token.
	StatusReadyForPayment Status = "ready_for_payment"
	// StatusCompleted indicates payment succeeded and an order was created. Terminal.
	StatusCompleted Status = "completed"
	// StatusCanceled indicates the session was canceled before completion. Terminal.
	StatusCanceled Status = "canceled"
	// StatusInProgress is reserved by the protocol vocabulary; current rules never assign it.
	StatusInProgress Status = "in_progress"
)

// Terminal reports whether no further transition may leave the status.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCanceled
}

// Item identifies a product and quantity supplied by the calling agent.
type Item struct {
	ID       string `json:"id"`
	Quantity int    `json:"quantity"`
}

// Buyer captures optional buyer contact details attached to a session.
type Buyer struct {
	FirstName   string  `json:"first_name"`
	LastName    string  `json:"last_name"`
	Email       string  `json:"email"`
	PhoneNumber *string `json:"phone_number,omitempty"`
}

// Address is a fulfillment or billing address in the protocol's schema.
type Address struct {
	Name       string  `json:"name"`
	LineOne    string  `json:"line_one"`
	LineTwo    *string `json:"line_two,omitempty"`
	City       string  `json:"city"`
	State      string  `json:"state"`
	Country    string  `json:"country"`
	PostalCode string  `json:"postal_code"`
}

// LineItem is the priced record derived for one resolved cart entry.
// All monetary fields are integer minor currency units (cents).
// Invariants: Subtotal = BaseAmount - Discount, Total = Subtotal + Tax.
type LineItem struct {
	ID         string `json:"id"`
	Item       Item   `json:"item"`
	BaseAmount int64  `json:"base_amount"`
	Discount   int64  `json:"discount"`
	Subtotal   int64  `json:"subtotal"`
	Tax        int64  `json:"tax"`
	Total      int64  `json:"total"`
}

// TotalType tags one entry of the ordered totals breakdown.
type TotalType string

const (
	// TotalTypeItemsBaseAmount is the sum of line item base amounts.
	TotalTypeItemsBaseAmount TotalType = "items_base_amount"
	// TotalTypeItemsDiscount is the aggregate item discount, rendered as a negative amount.
	TotalTypeItemsDiscount TotalType = "items_discount"
	// TotalTypeSubtotal is the post-discount item subtotal.
	TotalTypeSubtotal TotalType = "subtotal"
	// TotalTypeFulfillment is the cost of the selected fulfillment option.
	TotalTypeFulfillment TotalType = "fulfillment"
	// TotalTypeTax is the aggregate tax.
	TotalTypeTax TotalType = "tax"
	// TotalTypeTotal is the grand total.
	TotalTypeTotal TotalType = "total"
)

// Total is one display row of the totals breakdown. Order within the
// session's Totals slice is significant.
type Total struct {
	Type        TotalType `json:"type"`
	DisplayText string    `json:"display_text"`
	Amount      int64     `json:"amount"`
}

// FulfillmentOptionType discriminates the fulfillment option variants.
type FulfillmentOptionType string

const (
	// FulfillmentOptionTypeShipping is a physical shipping tier.
	FulfillmentOptionTypeShipping FulfillmentOptionType = "shipping"
	// FulfillmentOptionTypeDigital is instant digital delivery.
	FulfillmentOptionTypeDigital FulfillmentOptionType = "digital"
)

// FulfillmentOption is a deliverable way to receive the order. Shipping
// options carry carrier and delivery window fields; digital options omit
// them. Monetary fields are pre-formatted display strings.
type FulfillmentOption struct {
	Type                 FulfillmentOptionType `json:"type"`
	ID                   string                `json:"id"`
	Title                string                `json:"title"`
	Subtitle             string                `json:"subtitle,omitempty"`
	Carrier              string                `json:"carrier,omitempty"`
	EarliestDeliveryTime string                `json:"earliest_delivery_time,omitempty"`
	LatestDeliveryTime   string                `json:"latest_delivery_time,omitempty"`
	Subtotal             string                `json:"subtotal"`
	Tax                  string                `json:"tax"`
	Total                string                `json:"total"`
}

// MessageType discriminates informational and error messages.
type MessageType string

const (
	// MessageTypeInfo is an advisory message for the calling agent.
	MessageTypeInfo MessageType = "info"
	// MessageTypeError reports a recoverable per-item or per-field problem.
	MessageTypeError MessageType = "error"
)

// MessageErrorCode is the fixed vocabulary of error message codes.
type MessageErrorCode string

const (
	// MessageCodeMissing indicates a required field is absent.
	MessageCodeMissing MessageErrorCode = "missing"
	// MessageCodeInvalid indicates a field value could not be resolved.
	MessageCodeInvalid MessageErrorCode = "invalid"
	// MessageCodeOutOfStock indicates an item is unavailable at the requested quantity.
	MessageCodeOutOfStock MessageErrorCode = "out_of_stock"
	// MessageCodePaymentDeclined indicates the payment token was rejected.
	MessageCodePaymentDeclined MessageErrorCode = "payment_declined"
	// MessageCodeRequiresSignIn indicates the buyer must authenticate with the merchant.
	MessageCodeRequiresSignIn MessageErrorCode = "requires_sign_in"
	// MessageCodeRequires3DS indicates the payment requires 3-D Secure authentication.
	MessageCodeRequires3DS MessageErrorCode = "requires_3ds"
)

const (
	// ContentTypePlain marks plain-text message content.
	ContentTypePlain = "plain"
	// ContentTypeMarkdown marks markdown message content.
	ContentTypeMarkdown = "markdown"
)

// Message is an advisory or error entry recomputed on every mutation.
// Param is an RFC 9535 JSONPath pointing at the offending request field.
type Message struct {
	Type        MessageType      `json:"type"`
	Code        MessageErrorCode `json:"code,omitempty"`
	Param       *string          `json:"param,omitempty"`
	ContentType string           `json:"content_type"`
	Content     string           `json:"content"`
}

// LinkType enumerates the policy link kinds attached to sessions.
type LinkType string

const (
	// LinkTypeTermsOfUse links the merchant's terms of use.
	LinkTypeTermsOfUse LinkType = "terms_of_use"
	// LinkTypePrivacyPolicy links the merchant's privacy policy.
	LinkTypePrivacyPolicy LinkType = "privacy_policy"
	// LinkTypeSellerShopPolicies links seller-specific shop policies.
	LinkTypeSellerShopPolicies LinkType = "seller_shop_policies"
)

// Link points at a merchant policy document.
type Link struct {
	Type LinkType `json:"type"`
	URL  string   `json:"url"`
}

// PaymentProvider describes the payment rails the merchant accepts.
type PaymentProvider struct {
	Provider                string   `json:"provider"`
	SupportedPaymentMethods []string `json:"supported_payment_methods"`
}

// PaymentData is the payment token submitted on completion.
type PaymentData struct {
	Token          string   `json:"token"`
	Provider       string   `json:"provider"`
	BillingAddress *Address `json:"billing_address,omitempty"`
}

// Order is the immutable record minted exactly once when a session completes.
type Order struct {
	ID                string `json:"id"`
	CheckoutSessionID string `json:"checkout_session_id"`
	PermalinkURL      string `json:"permalink_url"`
}

// CheckoutSession is the aggregate root: the authoritative cart state
// returned by every operation. Each mutation replaces the whole aggregate.
type CheckoutSession struct {
	ID                  string              `json:"id"`
	Buyer               *Buyer              `json:"buyer,omitempty"`
	PaymentProvider     PaymentProvider     `json:"payment_provider"`
	Status              Status              `json:"status"`
	Currency            string              `json:"currency"`
	LineItems           []LineItem          `json:"line_items"`
	FulfillmentAddress  *Address            `json:"fulfillment_address,omitempty"`
	FulfillmentOptions  []FulfillmentOption `json:"fulfillment_options"`
	FulfillmentOptionID string              `json:"fulfillment_option_id,omitempty"`
	Totals              []Total             `json:"totals"`
	Messages            []Message           `json:"messages"`
	Links               []Link              `json:"links"`
	Order               *Order              `json:"order,omitempty"`
}

// Clone returns a deep copy so stored snapshots never alias returned values.
func (s CheckoutSession) Clone() CheckoutSession {
	out := s
	if s.Buyer != nil {
		buyer := *s.Buyer
		if s.Buyer.PhoneNumber != nil {
			phone := *s.Buyer.PhoneNumber
			buyer.PhoneNumber = &phone
		}
		out.Buyer = &buyer
	}
	if s.FulfillmentAddress != nil {
		addr := s.FulfillmentAddress.Clone()
		out.FulfillmentAddress = &addr
	}
	if s.LineItems != nil {
		out.LineItems = append([]LineItem(nil), s.LineItems...)
	}
	if s.FulfillmentOptions != nil {
		out.FulfillmentOptions = append([]FulfillmentOption(nil), s.FulfillmentOptions...)
	}
	if s.Totals != nil {
		out.Totals = append([]Total(nil), s.Totals...)
	}
	if s.Messages != nil {
		out.Messages = make([]Message, len(s.Messages))
		for i, msg := range s.Messages {
			if msg.Param != nil {
				param := *msg.Param
				msg.Param = &param
			}
			out.Messages[i] = msg
		}
	}
	if s.Links != nil {
		out.Links = append([]Link(nil), s.Links...)
	}
	if s.Order != nil {
		order := *s.Order
		out.Order = &order
	}
	return out
}

// Clone returns a copy with pointer fields duplicated.
func (a Address) Clone() Address {
	out := a
	if a.LineTwo != nil {
		line := *a.LineTwo
		out.LineTwo = &line
	}
	return out
}
