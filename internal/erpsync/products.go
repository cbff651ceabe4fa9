package erpsync

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/atelie-backend/pkg/brdoc"
	"github.com/angelmondragon/atelie-backend/pkg/db"
	"github.com/angelmondragon/atelie-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/atelie-backend/pkg/errors"
	"github.com/angelmondragon/atelie-backend/pkg/gateway/erp"
)

const (
	productType     = "P"
	productActive   = "A"
	productFormat   = "S"
	productUnit     = "UN"
	productOriginBR = 0
	missingNCM      = "ncm"
	missingSKU      = "sku"
	missingPrice    = "price"
	missingName     = "name"
)

// MissingProductFields lists what the ERP requires but the variant lacks.
func MissingProductFields(v *models.ProductVariant) []string {
	var missing []string
	if !brdoc.ValidNCM(v.NCM) {
		missing = append(missing, missingNCM)
	}
	if strings.TrimSpace(v.SKU) == "" {
		missing = append(missing, missingSKU)
	}
	if !v.Price.IsPositive() {
		missing = append(missing, missingPrice)
	}
	if strings.TrimSpace(v.ProductName) == "" {
		missing = append(missing, missingName)
	}
	return missing
}

func productPayload(v *models.ProductVariant) erp.Product {
	name := v.ProductName
	var variant []string
	if v.Print != "" {
		variant = append(variant, v.Print)
	}
	if v.Size != "" {
		variant = append(variant, v.Size)
	}
	if len(variant) > 0 {
		name += " (" + strings.Join(variant, " / ") + ")"
	}
	p := erp.Product{
		Name:      name,
		Code:      strings.TrimSpace(v.SKU),
		Price:     v.Price.InexactFloat64(),
		Type:      productType,
		Situation: productActive,
		Format:    productFormat,
		Unit:      productUnit,
		ShortDesc: v.Category,
		Taxation:  &erp.Taxation{NCM: brdoc.Digits(v.NCM), Origin: productOriginBR},
	}
	if v.WeightKG != nil {
		p.GrossWeight = *v.WeightKG
		p.NetWeight = *v.WeightKG
	}
	return p
}

// PushProduct creates or updates the variant at the ERP and records the
// link. A product already registered under the same SKU is adopted.
func (s *Service) PushProduct(ctx context.Context, variantID uuid.UUID) (*models.ERPProductLink, error) {
	v, err := s.repo.FindVariant(ctx, variantID)
	if db.IsNotFound(err) {
		return nil, pkgerrors.NotFound("product")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load product")
	}
	if missing := MissingProductFields(v); len(missing) > 0 {
		return nil, pkgerrors.MissingFields("product", missing)
	}
	ctx = s.logg.WithFields(ctx, map[string]any{"variant_id": v.ID.String(), "sku": v.SKU})

	existing, err := s.repo.FindProductLink(ctx, v.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load product link")
	}
	var known *int64
	if existing != nil {
		known = existing.ERPID
	}

	payload := productPayload(v)
	erpID, err := s.upsertProduct(ctx, v, payload, known)
	if err != nil {
		link := &models.ERPProductLink{ERPLink: s.failedLink(v.ID.String(), v.SKU, known, err)}
		if saveErr := s.repo.SaveProductLink(ctx, link); saveErr != nil {
			s.logg.Error(ctx, "failed to record product push failure", saveErr)
		}
		s.logg.Error(ctx, "product push failed", err)
		return nil, erpError(err)
	}

	link := &models.ERPProductLink{ERPLink: s.syncedLink(v.ID.String(), v.SKU, erpID)}
	if err := s.repo.SaveProductLink(ctx, link); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "save product link")
	}
	s.logg.Info(s.logg.WithField(ctx, "erp_id", erpID), "product pushed to erp")
	return link, nil
}

func (s *Service) upsertProduct(ctx context.Context, v *models.ProductVariant, payload erp.Product, known *int64) (int64, error) {
	if known == nil {
		id, found, err := s.erp.FindProductByCode(ctx, payload.Code)
		if err != nil {
			return 0, err
		}
		if found {
			known = &id
		}
	}
	if known != nil {
		if err := s.erp.UpdateProduct(ctx, *known, payload); err != nil {
			return 0, err
		}
		return *known, nil
	}
	return s.erp.CreateProduct(ctx, payload, v.ID.String())
}
