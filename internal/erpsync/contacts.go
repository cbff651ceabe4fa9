package erpsync

import (
	"context"
	"strings"

	"github.com/angelmondragon/atelie-backend/pkg/brdoc"
	"github.com/angelmondragon/atelie-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/atelie-backend/pkg/errors"
	"github.com/angelmondragon/atelie-backend/pkg/gateway/erp"
	"github.com/angelmondragon/atelie-backend/pkg/types"
)

const (
	personNatural = "F"
	personLegal   = "J"
	contactActive = "A"
)

// Carrier is a shipping company registered as an ERP contact.
type Carrier struct {
	Name     string
	Document string
	ERPID    int64
}

// EnsureCarrierContact makes sure the carrier exists at the ERP before an
// invoice names it. Unknown companies yield nil: the invoice then goes out
// without a carrier.
func (s *Service) EnsureCarrierContact(ctx context.Context, company string) (*Carrier, error) {
	name := strings.TrimSpace(company)
	doc := brdoc.Digits(s.carriers[strings.ToLower(name)])
	if doc == "" {
		return nil, nil
	}
	id, err := s.ensureContact(ctx, doc, func() erp.Contact {
		return erp.Contact{
			Name:       name,
			Document:   doc,
			PersonType: personLegal,
			Situation:  contactActive,
		}
	})
	if err != nil {
		return nil, err
	}
	return &Carrier{Name: name, Document: doc, ERPID: id}, nil
}

// EnsureCustomerContact registers the buyer from the order's fiscal snapshot.
func (s *Service) EnsureCustomerContact(ctx context.Context, order *models.Order) (int64, error) {
	doc := order.Fiscal.DocumentDigits()
	if doc == "" {
		return 0, pkgerrors.Validation("fiscal", "document")
	}
	return s.ensureContact(ctx, doc, func() erp.Contact {
		return customerContact(order)
	})
}

func customerContact(order *models.Order) erp.Contact {
	fiscal := order.Fiscal
	addr := fiscal.Address
	if addr.IsZero() {
		addr = types.FiscalAddressFromShipping(order.ShipTo)
	}
	personType := personNatural
	if fiscal.IsCompany() {
		personType = personLegal
	}
	return erp.Contact{
		Name:              fiscal.LegalName,
		Document:          fiscal.DocumentDigits(),
		PersonType:        personType,
		StateRegistration: fiscal.StateRegistration,
		Email:             order.ShipTo.Email,
		Phone:             brdoc.Digits(order.ShipTo.Phone),
		Situation:         contactActive,
		Address:           &erp.ContactAddress{General: erpAddress(addr)},
	}
}

func erpAddress(a types.FiscalAddress) erp.Address {
	return erp.Address{
		Street:     a.Street,
		Number:     a.Number,
		Complement: a.Complement,
		District:   a.District,
		CEP:        brdoc.Digits(a.CEP),
		City:       a.City,
		State:      strings.ToUpper(a.State),
	}
}

// ensureContact resolves a contact id by document: process cache, then the
// link table, then an ERP lookup, and finally creation.
func (s *Service) ensureContact(ctx context.Context, doc string, build func() erp.Contact) (int64, error) {
	if cached, ok := s.contacts.Load(doc); ok {
		return cached.(int64), nil
	}
	ctx = s.logg.WithField(ctx, "contact_document", maskDocument(doc))

	link, err := s.repo.FindContactLink(ctx, doc)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load contact link")
	}
	if link != nil && link.ERPID != nil {
		s.contacts.Store(doc, *link.ERPID)
		return *link.ERPID, nil
	}

	contact := build()
	id, found, err := s.erp.FindContactByDocument(ctx, doc)
	if err == nil && !found {
		id, err = s.erp.CreateContact(ctx, contact, doc)
	}
	if err != nil {
		failed := &models.ERPContactLink{ERPLink: s.failedLink(doc, contact.Name, nil, err)}
		if saveErr := s.repo.SaveContactLink(ctx, failed); saveErr != nil {
			s.logg.Error(ctx, "failed to record contact push failure", saveErr)
		}
		s.logg.Error(ctx, "contact push failed", err)
		return 0, erpError(err)
	}

	synced := &models.ERPContactLink{ERPLink: s.syncedLink(doc, contact.Name, id)}
	if err := s.repo.SaveContactLink(ctx, synced); err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "save contact link")
	}
	s.contacts.Store(doc, id)
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{"erp_id": id, "adopted": found}), "contact linked at erp")
	return id, nil
}

// maskDocument keeps only the last digits of a CPF/CNPJ for logs.
func maskDocument(doc string) string {
	if len(doc) <= 4 {
		return doc
	}
	return strings.Repeat("*", len(doc)-4) + doc[len(doc)-4:]
}
