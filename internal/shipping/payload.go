package shipping

import (
	"strings"

	"github.com/angelmondragon/atelie-backend/pkg/brdoc"
	pkgcheckout "github.com/angelmondragon/atelie-backend/pkg/checkout"
	"github.com/angelmondragon/atelie-backend/pkg/config"
	"github.com/angelmondragon/atelie-backend/pkg/db/models"
	"github.com/angelmondragon/atelie-backend/pkg/gateway/carrier"
)

const (
	countryBR = "BR"
	platform  = "Atelie"
)

func senderParty(shop config.ShopConfig) carrier.Party {
	return carrier.Party{
		Name:            shop.LegalName,
		Phone:           brdoc.Digits(shop.Phone),
		Email:           shop.Email,
		CompanyDocument: brdoc.Digits(shop.CNPJ),
		StateRegister:   shop.StateRegistration,
		Address:         shop.Street,
		Complement:      shop.Complement,
		Number:          shop.Number,
		District:        shop.District,
		City:            shop.City,
		StateAbbr:       strings.ToUpper(shop.State),
		CountryID:       countryBR,
		PostalCode:      brdoc.Digits(shop.OriginCEP),
	}
}

func recipientParty(order *models.Order) carrier.Party {
	to := order.ShipTo
	party := carrier.Party{
		Name:       to.RecipientName,
		Phone:      brdoc.Digits(to.Phone),
		Email:      to.Email,
		Address:    to.Street,
		Complement: to.Complement,
		Number:     to.Number,
		District:   to.District,
		City:       to.City,
		StateAbbr:  strings.ToUpper(to.State),
		CountryID:  countryBR,
		PostalCode: brdoc.Digits(to.CEP),
	}
	if order.Fiscal.IsCompany() {
		party.CompanyDocument = order.Fiscal.DocumentDigits()
		party.StateRegister = order.Fiscal.StateRegistration
	} else {
		party.Document = order.Fiscal.DocumentDigits()
	}
	return party
}

// shipmentRequest builds the carrier cart entry for order. Without an
// invoice key the shipment travels under a content declaration.
func shipmentRequest(order *models.Order, shop config.ShopConfig, cfg config.ShippingConfig, invoiceKey string) (carrier.CreateShipmentRequest, carrier.Package) {
	parcelItems := make([]pkgcheckout.ParcelItem, 0, len(order.Items))
	products := make([]carrier.Product, 0, len(order.Items))
	for _, item := range order.Items {
		parcelItems = append(parcelItems, pkgcheckout.ParcelItem{Quantity: item.Quantity, WeightKG: item.WeightKG})
		products = append(products, carrier.Product{
			Name:         item.ProductName,
			Quantity:     item.Quantity,
			UnitaryValue: item.UnitPrice.InexactFloat64(),
		})
	}
	parcel := pkgcheckout.Parcel(parcelItems, cfg.DefaultItemWeight, cfg.MinimumWeight)

	opts := carrier.ShipmentOptions{
		InsuranceValue: order.Subtotal.InexactFloat64(),
		NonCommercial:  invoiceKey == "",
		Platform:       platform,
		Tags:           []carrier.Tag{{Tag: order.Code}},
	}
	if invoiceKey != "" {
		opts.Invoice = &carrier.Invoice{Key: invoiceKey}
	}

	return carrier.CreateShipmentRequest{
		Service:  order.ShippingSelection.ServiceID,
		From:     senderParty(shop),
		To:       recipientParty(order),
		Products: products,
		Volumes: []carrier.Volume{{
			Height: parcel.Height,
			Width:  parcel.Width,
			Length: parcel.Length,
			Weight: parcel.Weight,
		}},
		Options: opts,
	}, parcel
}
