package checkout

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/atelie-backend/internal/orders"
	pkgcheckout "github.com/angelmondragon/atelie-backend/pkg/checkout"
	"github.com/angelmondragon/atelie-backend/pkg/db/models"
	"github.com/angelmondragon/atelie-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/atelie-backend/pkg/errors"
	"github.com/angelmondragon/atelie-backend/pkg/types"
)

var hundred = decimal.NewFromInt(100)

// linesFromCart prices every cart line at the variant's current price.
func linesFromCart(items []models.CartItem) ([]orders.Line, error) {
	lines := make([]orders.Line, 0, len(items))
	for _, item := range items {
		v := item.Variant
		if v.ID == uuid.Nil || !v.Active {
			return nil, pkgerrors.Validation("cart", "product unavailable "+item.VariantID.String())
		}
		if item.Quantity <= 0 {
			return nil, pkgerrors.Validation("cart", "quantity")
		}
		lines = append(lines, orders.Line{
			VariantID:   v.ID,
			Quantity:    item.Quantity,
			UnitPrice:   v.Price,
			ProductName: v.ProductName,
			SKU:         v.SKU,
			NCM:         v.NCM,
			WeightKG:    v.WeightKG,
			Details:     types.ItemDetails{Category: v.Category, Print: v.Print, Size: v.Size},
		})
	}
	return lines, nil
}

// computeTotals sums the lines and applies the PIX discount, rounded to
// cents, to the subtotal.
func computeTotals(lines []orders.Line, shipping decimal.Decimal, method enums.PaymentMethod, pixDiscountPercent float64) orders.Totals {
	subtotal := decimal.Zero
	for _, l := range lines {
		subtotal = subtotal.Add(l.Subtotal())
	}
	discount := decimal.Zero
	if method == enums.PaymentMethodPix && pixDiscountPercent > 0 {
		discount = subtotal.Mul(decimal.NewFromFloat(pixDiscountPercent)).Div(hundred).Round(2)
	}
	return orders.Totals{Subtotal: subtotal, Shipping: shipping, Discount: discount}
}

func parcelItems(lines []orders.Line) []pkgcheckout.ParcelItem {
	out := make([]pkgcheckout.ParcelItem, len(lines))
	for i, l := range lines {
		out[i] = pkgcheckout.ParcelItem{Quantity: l.Quantity, WeightKG: l.WeightKG}
	}
	return out
}
