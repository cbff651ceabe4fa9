package errors

import "fmt"

// Validation reports malformed user input. Field names the offending input
// group (cart, address, fiscal, customer, shipping, card, payment).
func Validation(field, reason string) *Error {
	return New(CodeValidation, fmt.Sprintf("%s: %s", field, reason)).
		WithDetails(map[string]any{"field": field, "reason": reason})
}

// MissingFields reports a validation failure listing every absent requirement.
func MissingFields(entity string, fields []string) *Error {
	return New(CodeValidation, fmt.Sprintf("%s is missing required fields", entity)).
		WithDetails(map[string]any{"field": entity, "missing": fields})
}

func InsufficientStock(productID string) *Error {
	return New(CodeInsufficientStock, "insufficient stock for product "+productID).
		WithDetails(map[string]any{"product_id": productID})
}

func IllegalTransition(from, to string) *Error {
	return New(CodeIllegalTransition, fmt.Sprintf("transition %s -> %s not allowed", from, to)).
		WithDetails(map[string]any{"from": from, "to": to})
}

// GatewayUnavailable reports that the named upstream (payment, carrier, erp)
// could not be reached or answered with a server-side failure.
func GatewayUnavailable(which string, cause error) *Error {
	return Wrap(CodeGatewayUnavailable, cause, which+" gateway unavailable").
		WithDetails(map[string]any{"gateway": which})
}

func PaymentDeclined(reason string) *Error {
	if reason == "" {
		reason = "declined"
	}
	return New(CodePaymentDeclined, "payment declined: "+reason).
		WithDetails(map[string]any{"reason": reason})
}

func ReauthorizationRequired(cause error) *Error {
	return Wrap(CodeReauthorization, cause, "erp refresh token expired or revoked")
}

func NotFound(resource string) *Error {
	return New(CodeNotFound, resource+" not found")
}
