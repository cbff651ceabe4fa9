package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/atelie-backend/pkg/db/models"
	"github.com/angelmondragon/atelie-backend/pkg/enums"
)

// Repository captures the persistence operations on the order aggregate.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	DecrementStock(ctx context.Context, variantID uuid.UUID, qty int) (bool, error)
	RestoreStock(ctx context.Context, variantID uuid.UUID, qty int) error

	CreateOrder(ctx context.Context, order *models.Order) error
	CreateOrderItems(ctx context.Context, items []models.OrderItem) error
	FindOrderByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	LockOrder(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindOrderByCode(ctx context.Context, code string) (*models.Order, error)
	UpdateOrder(ctx context.Context, id uuid.UUID, updates map[string]any) error
	DeleteOrder(ctx context.Context, id uuid.UUID) error
	ListOrdersByStatus(ctx context.Context, status enums.OrderStatus, createdBefore time.Time, limit int) ([]models.Order, error)

	CreatePayment(ctx context.Context, p *models.Payment) error
	FindPaymentByID(ctx context.Context, id uuid.UUID) (*models.Payment, error)
	FindPaymentByTransactionID(ctx context.Context, transactionID string) (*models.Payment, error)
	FindLatestPayment(ctx context.Context, orderID uuid.UUID) (*models.Payment, error)
	CountPayments(ctx context.Context, orderID uuid.UUID) (int64, error)
	UpdatePayment(ctx context.Context, id uuid.UUID, updates map[string]any) error

	CreatePublicToken(ctx context.Context, token *models.PublicToken) error
	FindPublicToken(ctx context.Context, value string) (*models.PublicToken, error)
	FindPublicTokenByOrder(ctx context.Context, orderID uuid.UUID) (*models.PublicToken, error)
	UpdatePublicToken(ctx context.Context, orderID uuid.UUID, updates map[string]any) error

	FindActiveLabel(ctx context.Context, orderID uuid.UUID) (*models.ShippingLabel, error)
	FindFiscalDocument(ctx context.Context, orderID uuid.UUID) (*models.FiscalDocument, error)
	FindOrderLink(ctx context.Context, orderID uuid.UUID) (*models.ERPOrderLink, error)
	ProductERPIDs(ctx context.Context, variantIDs []uuid.UUID) (map[uuid.UUID]int64, error)
}
