// Package checkout holds the buyer-input rules shared by the checkout
// orchestrator and the label coordinator: address and fiscal identity
// validation and the parcel the carrier quotes against.
package checkout

import (
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/angelmondragon/atelie-backend/pkg/brdoc"
	pkgerrors "github.com/angelmondragon/atelie-backend/pkg/errors"
	"github.com/angelmondragon/atelie-backend/pkg/types"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// ValidateAddress checks the ship-to snapshot and normalizes CEP and UF in
// place.
func ValidateAddress(addr *types.ShippingSnapshot) error {
	if addr == nil {
		return pkgerrors.Validation("address", "required")
	}
	cep := brdoc.NormalizeCEP(addr.CEP)
	if cep == "" {
		return pkgerrors.Validation("address", "cep")
	}
	addr.CEP = cep
	addr.State = strings.ToUpper(strings.TrimSpace(addr.State))
	if !brdoc.ValidUF(addr.State) {
		return pkgerrors.Validation("address", "state")
	}
	for _, f := range []struct{ name, value string }{
		{"street", addr.Street},
		{"number", addr.Number},
		{"city", addr.City},
		{"recipient_name", addr.RecipientName},
	} {
		if strings.TrimSpace(f.value) == "" {
			return pkgerrors.Validation("address", f.name)
		}
	}
	return nil
}

// ValidateFiscal checks the buyer's CPF or CNPJ and legal name. An empty
// fiscal address is filled from the ship-to address.
func ValidateFiscal(fiscal *types.FiscalSnapshot, shipTo types.ShippingSnapshot) error {
	if fiscal == nil {
		return pkgerrors.Validation("fiscal", "required")
	}
	digits := brdoc.Digits(fiscal.Document)
	switch len(digits) {
	case 11:
		if !brdoc.ValidCPF(digits) {
			return pkgerrors.Validation("fiscal", "cpf")
		}
	case 14:
		if !brdoc.ValidCNPJ(digits) {
			return pkgerrors.Validation("fiscal", "cnpj")
		}
	default:
		return pkgerrors.Validation("fiscal", "document")
	}
	fiscal.Document = digits
	if strings.TrimSpace(fiscal.LegalName) == "" {
		return pkgerrors.Validation("fiscal", "legal_name")
	}
	if fiscal.Address.IsZero() {
		fiscal.Address = types.FiscalAddressFromShipping(shipTo)
		return nil
	}
	cep := brdoc.NormalizeCEP(fiscal.Address.CEP)
	if cep == "" {
		return pkgerrors.Validation("fiscal", "cep")
	}
	fiscal.Address.CEP = cep
	fiscal.Address.State = strings.ToUpper(strings.TrimSpace(fiscal.Address.State))
	if !brdoc.ValidUF(fiscal.Address.State) {
		return pkgerrors.Validation("fiscal", "state")
	}
	return nil
}

// ValidateEmail checks the customer e-mail shape.
func ValidateEmail(email string) error {
	if err := validate.Var(strings.TrimSpace(email), "required,email"); err != nil {
		return pkgerrors.Validation("customer", "email")
	}
	return nil
}
