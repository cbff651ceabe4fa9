package gateway

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestCentsRoundTrip(t *testing.T) {
	amount := decimal.RequireFromString("114.89")
	if got := Cents(amount); got != 11489 {
		t.Fatalf("expected 11489, got %d", got)
	}
	if !FromCents(11489).Equal(amount) {
		t.Fatalf("unexpected amount %s", FromCents(11489))
	}
	if got := Cents(decimal.RequireFromString("0.005")); got != 1 {
		t.Fatalf("expected half-up rounding, got %d", got)
	}
}
