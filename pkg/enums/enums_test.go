package enums

import "testing"

func TestParseOrderStatusAcceptsUpperCase(t *testing.T) {
	got, err := ParseOrderStatus("PROCESSING_SHIPMENT")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got != OrderStatusProcessingShipment {
		t.Fatalf("unexpected status %q", got)
	}
	if _, err := ParseOrderStatus("lost_in_mail"); err == nil {
		t.Fatal("expected unknown status to fail")
	}
}

func TestOrderStatusTerminal(t *testing.T) {
	terminal := map[OrderStatus]bool{
		OrderStatusCreated:             false,
		OrderStatusAwaitingPayment:     false,
		OrderStatusProcessingShipment:  false,
		OrderStatusShipped:             false,
		OrderStatusDelivered:           true,
		OrderStatusRefunded:            true,
		OrderStatusCancelledBySeller:   true,
		OrderStatusCancelledByCustomer: true,
	}
	for status, want := range terminal {
		if status.IsTerminal() != want {
			t.Fatalf("%s terminal=%v, want %v", status, status.IsTerminal(), want)
		}
	}
}

func TestPaymentMethodGatewayType(t *testing.T) {
	if PaymentMethodCreditCard.GatewayType() != "CREDIT_CARD" {
		t.Fatalf("unexpected gateway type %q", PaymentMethodCreditCard.GatewayType())
	}
	method, err := ParsePaymentMethod("BOLETO")
	if err != nil || method != PaymentMethodBoleto {
		t.Fatalf("expected boleto, got %q err=%v", method, err)
	}
}
