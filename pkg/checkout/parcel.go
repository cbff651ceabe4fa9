package checkout

import (
	"math"

	"github.com/angelmondragon/atelie-backend/pkg/gateway/carrier"
)

const (
	baseHeightCM      = 10
	baseWidthCM       = 20
	baseLengthCM      = 30
	extraUnitLengthCM = 4
	maxLengthCM       = 100
)

// ParcelItem is the part of a cart or order line that shapes the parcel.
type ParcelItem struct {
	Quantity int
	WeightKG *float64
}

// Parcel computes the single-volume package for a set of lines. Items
// without a weight count defaultWeight each; the total never goes below
// minWeight. Length grows with every unit past the first.
func Parcel(items []ParcelItem, defaultWeight, minWeight float64) carrier.Package {
	weight := 0.0
	units := 0
	for _, item := range items {
		if item.Quantity <= 0 {
			continue
		}
		each := defaultWeight
		if item.WeightKG != nil && *item.WeightKG > 0 {
			each = *item.WeightKG
		}
		weight += each * float64(item.Quantity)
		units += item.Quantity
	}
	if weight < minWeight {
		weight = minWeight
	}
	length := baseLengthCM
	if units > 1 {
		length += (units - 1) * extraUnitLengthCM
	}
	if length > maxLengthCM {
		length = maxLengthCM
	}
	return carrier.Package{
		Height: baseHeightCM,
		Width:  baseWidthCM,
		Length: length,
		Weight: math.Round(weight*1000) / 1000,
	}
}
