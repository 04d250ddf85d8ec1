package paypal

import (
	"encoding/json"
	"fmt"

	"github.com/punchamoorthee/joyledger/internal/domain"
	"github.com/shopspring/decimal"
)

// Event is the envelope of every webhook delivery.
type Event struct {
	ID           string          `json:"id"`
	EventType    string          `json:"event_type"`
	ResourceType string          `json:"resource_type"`
	Resource     json.RawMessage `json:"resource"`
}

// OrderResource is the order snapshot carried by order events.
type OrderResource struct {
	ID            string         `json:"id"`
	Status        string         `json:"status"`
	PurchaseUnits []PurchaseUnit `json:"purchase_units"`
}

type PurchaseUnit struct {
	Amount   *Money    `json:"amount"`
	CustomID string    `json:"custom_id"`
	Payments *Payments `json:"payments"`
}

type Payments struct {
	Captures []Capture `json:"captures"`
}

type Capture struct {
	ID       string `json:"id"`
	Status   string `json:"status"`
	CustomID string `json:"custom_id"`
	Amount   *Money `json:"amount"`
}

// Completion is what the dispatcher needs from a completed order.
type Completion struct {
	OrderID  string
	Metadata string
	Amount   decimal.Decimal
}

// Completion validates the shape of an order-completed resource.
func (e Event) Completion() (Completion, error) {
	if len(e.Resource) == 0 {
		return Completion{}, fmt.Errorf("%w: event has no resource", domain.ErrMetadataMissing)
	}
	var order OrderResource
	if err := json.Unmarshal(e.Resource, &order); err != nil {
		return Completion{}, fmt.Errorf("%w: %v", domain.ErrMetadataCorrupt, err)
	}
	if len(order.PurchaseUnits) == 0 {
		return Completion{}, fmt.Errorf("%w: no purchase units", domain.ErrMetadataMissing)
	}

	unit := order.PurchaseUnits[0]
	var capture *Capture
	if unit.Payments != nil && len(unit.Payments.Captures) > 0 {
		capture = &unit.Payments.Captures[0]
	}

	c := Completion{OrderID: order.ID}
	if c.OrderID == "" && capture != nil {
		c.OrderID = capture.ID
	}
	if c.OrderID == "" {
		return Completion{}, domain.ErrOrderIDMissing
	}

	if capture != nil && capture.CustomID != "" {
		c.Metadata = capture.CustomID
	} else {
		c.Metadata = unit.CustomID
	}
	if c.Metadata == "" {
		return Completion{}, domain.ErrMetadataMissing
	}

	for _, m := range []*Money{unit.Amount, captureAmount(capture)} {
		if m == nil || m.Value == "" {
			continue
		}
		amount, err := decimal.NewFromString(m.Value)
		if err != nil {
			return Completion{}, fmt.Errorf("%w: amount %q", domain.ErrMetadataCorrupt, m.Value)
		}
		c.Amount = amount
		break
	}
	return c, nil
}

func captureAmount(c *Capture) *Money {
	if c == nil {
		return nil
	}
	return c.Amount
}
