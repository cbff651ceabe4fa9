package enums

// PublicStatus is the coarse status shown to anonymous buyers on the tracking page.
type PublicStatus string

const (
	PublicStatusPending   PublicStatus = "PENDING"
	PublicStatusApproved  PublicStatus = "APPROVED"
	PublicStatusShipped   PublicStatus = "SHIPPED"
	PublicStatusDelivered PublicStatus = "DELIVERED"
	PublicStatusCancelled PublicStatus = "CANCELLED"
)

var validPublicStatuses = []PublicStatus{
	PublicStatusPending,
	PublicStatusApproved,
	PublicStatusShipped,
	PublicStatusDelivered,
	PublicStatusCancelled,
}

func (s PublicStatus) String() string {
	return string(s)
}

func (s PublicStatus) IsValid() bool {
	for _, candidate := range validPublicStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}
