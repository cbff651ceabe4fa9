package erpsync

import (
	"context"
	"fmt"

	"github.com/angelmondragon/atelie-backend/pkg/config"
	"github.com/angelmondragon/atelie-backend/pkg/db/models"
	"github.com/angelmondragon/atelie-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/atelie-backend/pkg/errors"
)

// SeedSituations inserts the configured situation mappings that are not in
// the table yet. Rows edited by an admin are left alone.
func (s *Service) SeedSituations(ctx context.Context, raw string) (int, error) {
	pairs, err := config.ParseSituationMap(raw)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "situation map")
	}
	inserted := 0
	for id, value := range pairs {
		row := &models.ERPSituation{SituationID: id, Description: "seeded from configuration"}
		if value != "" {
			st, err := enums.ParseOrderStatus(value)
			if err != nil {
				return inserted, pkgerrors.Wrap(pkgerrors.CodeInternal, err, fmt.Sprintf("situation %d", id))
			}
			row.OrderStatus = &st
		}
		ok, err := s.repo.InsertSituationIfMissing(ctx, row)
		if err != nil {
			return inserted, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "seed situation")
		}
		if ok {
			inserted++
		}
	}
	if inserted > 0 {
		s.logg.Info(s.logg.WithField(ctx, "inserted", inserted), "erp situation map seeded")
	}
	return inserted, nil
}

func (s *Service) ListSituations(ctx context.Context) ([]models.ERPSituation, error) {
	rows, err := s.repo.ListSituations(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list situations")
	}
	return rows, nil
}

// SetSituation maps an ERP situation to an order status. A nil status makes
// the situation a no-op locally.
func (s *Service) SetSituation(ctx context.Context, situationID int64, st *enums.OrderStatus, description string) (*models.ERPSituation, error) {
	if situationID <= 0 {
		return nil, pkgerrors.Validation("situation_id", "must be positive")
	}
	if st != nil && !st.IsValid() {
		return nil, pkgerrors.Validation("order_status", "unknown status")
	}
	row := &models.ERPSituation{SituationID: situationID, OrderStatus: st, Description: description}
	if err := s.repo.SaveSituation(ctx, row); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "save situation")
	}
	mapped := "none"
	if st != nil {
		mapped = string(*st)
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{"situation_id": situationID, "order_status": mapped}), "erp situation mapping updated")
	return row, nil
}
