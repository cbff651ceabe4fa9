package paymentwebhook

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
)

// Shape tells which of the gateway's envelope layouts a notification used.
type Shape string

const (
	ShapeChargeList Shape = "charges"
	ShapeCharge     Shape = "charge"
	ShapeFlat       Shape = "flat"
)

// ErrUnknownShape is returned for payloads that carry no recognizable charge.
var ErrUnknownShape = errors.New("unrecognized payment notification shape")

// ChargeUpdate is the single internal form every notification layout is
// reduced to.
type ChargeUpdate struct {
	ChargeID    string
	ReferenceID string
	Status      string
	Method      string
	Shape       Shape
}

type rawMethod struct {
	Type string `json:"type"`
}

type rawCharge struct {
	ID            string     `json:"id"`
	ReferenceID   string     `json:"reference_id"`
	Status        string     `json:"status"`
	PaymentMethod *rawMethod `json:"payment_method"`
}

func (c rawCharge) update(shape Shape, fallbackRef string) (ChargeUpdate, bool) {
	id := strings.TrimSpace(c.ID)
	st := strings.TrimSpace(c.Status)
	if id == "" || st == "" {
		return ChargeUpdate{}, false
	}
	ref := strings.TrimSpace(c.ReferenceID)
	if ref == "" {
		ref = fallbackRef
	}
	out := ChargeUpdate{ChargeID: id, ReferenceID: ref, Status: strings.ToUpper(st), Shape: shape}
	if c.PaymentMethod != nil {
		out.Method = strings.ToUpper(strings.TrimSpace(c.PaymentMethod.Type))
	}
	return out, true
}

type rawEnvelope struct {
	rawCharge
	Charges []rawCharge `json:"charges"`
	Charge  *rawCharge  `json:"charge"`
}

// Parse reduces a notification body to its charge updates. Bodies that are
// not JSON objects, or that match none of the known layouts, return
// ErrUnknownShape.
func Parse(body []byte) ([]ChargeUpdate, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, ErrUnknownShape
	}
	var env rawEnvelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return nil, ErrUnknownShape
	}
	orderRef := strings.TrimSpace(env.ReferenceID)

	switch {
	case len(env.Charges) > 0:
		var out []ChargeUpdate
		for _, c := range env.Charges {
			if u, ok := c.update(ShapeChargeList, orderRef); ok {
				out = append(out, u)
			}
		}
		if len(out) == 0 {
			return nil, ErrUnknownShape
		}
		return out, nil
	case env.Charge != nil:
		if u, ok := env.Charge.update(ShapeCharge, orderRef); ok {
			return []ChargeUpdate{u}, nil
		}
		return nil, ErrUnknownShape
	default:
		if u, ok := env.rawCharge.update(ShapeFlat, ""); ok {
			return []ChargeUpdate{u}, nil
		}
		return nil, ErrUnknownShape
	}
}
