package errors

import (
	stdErrors "errors"
	"net/http"
	"testing"
)

func TestMetadataForKnownCodes(t *testing.T) {
	tests := []struct {
		code      Code
		status    int
		retryable bool
		detailsOK bool
	}{
		{code: CodeValidation, status: http.StatusBadRequest, detailsOK: true},
		{code: CodeInsufficientStock, status: http.StatusConflict, detailsOK: true},
		{code: CodeIllegalTransition, status: http.StatusConflict, detailsOK: true},
		{code: CodeGatewayUnavailable, status: http.StatusBadGateway, retryable: true, detailsOK: true},
		{code: CodePaymentDeclined, status: http.StatusPaymentRequired, detailsOK: true},
		{code: CodeReauthorization, status: http.StatusServiceUnavailable, retryable: true},
		{code: CodeNotFound, status: http.StatusNotFound},
		{code: CodeConflict, status: http.StatusConflict},
		{code: CodeInternal, status: http.StatusInternalServerError, retryable: true},
	}

	for _, tt := range tests {
		meta := MetadataFor(tt.code)
		if meta.HTTPStatus != tt.status {
			t.Fatalf("code %s expected status %d got %d", tt.code, tt.status, meta.HTTPStatus)
		}
		if meta.Retryable != tt.retryable {
			t.Fatalf("code %s expected retryable %v got %v", tt.code, tt.retryable, meta.Retryable)
		}
		if meta.DetailsAllowed != tt.detailsOK {
			t.Fatalf("code %s expected details allowed %v got %v", tt.code, tt.detailsOK, meta.DetailsAllowed)
		}
	}
}

func TestMetadataForUnknownCodeDefaultsToInternal(t *testing.T) {
	meta := MetadataFor("SOMETHING_UNKNOWN")
	if meta.HTTPStatus != http.StatusInternalServerError {
		t.Fatalf("expected internal status, got %d", meta.HTTPStatus)
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := stdErrors.New("dial tcp: refused")
	wrapped := GatewayUnavailable("payment", cause)
	if !stdErrors.Is(wrapped, cause) {
		t.Fatalf("wrap did not preserve cause")
	}
	if wrapped.Code() != CodeGatewayUnavailable {
		t.Fatalf("unexpected code %s", wrapped.Code())
	}
	details, ok := wrapped.Details().(map[string]any)
	if !ok || details["gateway"] != "payment" {
		t.Fatalf("unexpected details %#v", wrapped.Details())
	}
}

func TestValidationCarriesFieldAndReason(t *testing.T) {
	err := Validation("address", "cep")
	details := err.Details().(map[string]any)
	if details["field"] != "address" || details["reason"] != "cep" {
		t.Fatalf("unexpected details %#v", details)
	}
	if !IsCode(err, CodeValidation) {
		t.Fatalf("expected validation code")
	}
}

func TestIsCodeThroughWrapping(t *testing.T) {
	inner := InsufficientStock("sku-1")
	outer := Wrap(CodeInternal, inner, "checkout")
	if !IsCode(outer, CodeInternal) {
		t.Fatalf("outer code lost")
	}
	if IsCode(nil, CodeInternal) {
		t.Fatalf("nil error must not match")
	}
	if As(nil) != nil {
		t.Fatalf("As(nil) should return nil")
	}
}
