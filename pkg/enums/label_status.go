package enums

import "fmt"

// LabelStatus mirrors the carrier shipment lifecycle.
type LabelStatus string

const (
	LabelStatusCreated   LabelStatus = "created"
	LabelStatusPaid      LabelStatus = "paid"
	LabelStatusPrinted   LabelStatus = "printed"
	LabelStatusPosted    LabelStatus = "posted"
	LabelStatusDelivered LabelStatus = "delivered"
	LabelStatusCancelled LabelStatus = "cancelled"
)

var validLabelStatuses = []LabelStatus{
	LabelStatusCreated,
	LabelStatusPaid,
	LabelStatusPrinted,
	LabelStatusPosted,
	LabelStatusDelivered,
	LabelStatusCancelled,
}

func (s LabelStatus) String() string {
	return string(s)
}

func (s LabelStatus) IsValid() bool {
	for _, candidate := range validLabelStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTrackable reports whether the carrier already has the parcel in hand or
// is about to.
func (s LabelStatus) IsTrackable() bool {
	return s == LabelStatusPrinted || s == LabelStatusPosted
}

func ParseLabelStatus(value string) (LabelStatus, error) {
	for _, candidate := range validLabelStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid label status %q", value)
}
