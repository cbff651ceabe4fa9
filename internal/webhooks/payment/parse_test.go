package paymentwebhook

import (
	"errors"
	"testing"
)

func TestParseShapes(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name  string
		body  string
		shape Shape
		ref   string
	}{
		{
			name:  "order with charges",
			body:  `{"id":"ORDE_1","reference_id":"AT1X","charges":[{"id":"CHAR_1","status":"paid","payment_method":{"type":"pix"}}]}`,
			shape: ShapeChargeList,
			ref:   "AT1X",
		},
		{
			name:  "wrapped charge",
			body:  `{"charge":{"id":"CHAR_1","reference_id":"AT1X","status":"PAID","payment_method":{"type":"PIX"}}}`,
			shape: ShapeCharge,
			ref:   "AT1X",
		},
		{
			name:  "flat charge",
			body:  `{"id":"CHAR_1","status":"PAID","payment_method":{"type":"PIX"}}`,
			shape: ShapeFlat,
		},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			updates, err := Parse([]byte(tc.body))
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			if len(updates) != 1 {
				t.Fatalf("expected one update, got %d", len(updates))
			}
			u := updates[0]
			if u.ChargeID != "CHAR_1" || u.Status != "PAID" || u.Method != "PIX" {
				t.Fatalf("unexpected update %+v", u)
			}
			if u.Shape != tc.shape || u.ReferenceID != tc.ref {
				t.Fatalf("expected shape %s ref %q, got %+v", tc.shape, tc.ref, u)
			}
		})
	}
}

func TestParseKeepsEveryCharge(t *testing.T) {
	updates, err := Parse([]byte(`{"charges":[{"id":"A","status":"DECLINED"},{"status":"PAID"},{"id":"B","status":"PAID"}]}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(updates) != 2 || updates[0].ChargeID != "A" || updates[1].ChargeID != "B" {
		t.Fatalf("unexpected updates %+v", updates)
	}
}

func TestParseUnknownShapes(t *testing.T) {
	t.Parallel()
	bodies := []string{
		``,
		`[]`,
		`not json`,
		`{"event":"ping"}`,
		`{"charges":[{"status":"PAID"}]}`,
		`{"charge":{"id":"CHAR_1"}}`,
	}
	for _, body := range bodies {
		if _, err := Parse([]byte(body)); !errors.Is(err, ErrUnknownShape) {
			t.Fatalf("body %q: expected ErrUnknownShape, got %v", body, err)
		}
	}
}
