package ripple

import "maps"

// Revenue describes a purchase reported as a revenue_amount event.
type Revenue struct {
	ProductID   string
	Quantity    int
	Price       *float64
	RevenueType string
	Receipt     string
	ReceiptSig  string
	Properties  map[string]any
}

// IsValid reports whether the revenue has a price.
func (r *Revenue) IsValid() bool {
	return r != nil && r.Price != nil
}

// ToEvent converts the revenue into an event. A zero Quantity counts as one.
func (r *Revenue) ToEvent() *Event {
	props := maps.Clone(r.Properties)
	if props == nil {
		props = make(map[string]any)
	}
	quantity := r.Quantity
	if quantity == 0 {
		quantity = 1
	}
	props["$quantity"] = quantity
	if r.Price != nil {
		props["$price"] = *r.Price
	}
	if r.ProductID != "" {
		props["$productId"] = r.ProductID
	}
	if r.RevenueType != "" {
		props["$revenueType"] = r.RevenueType
	}
	if r.Receipt != "" {
		props["$receipt"] = r.Receipt
	}
	if r.ReceiptSig != "" {
		props["$receiptSig"] = r.ReceiptSig
	}
	return &Event{EventType: RevenueEventType, EventProperties: props}
}
