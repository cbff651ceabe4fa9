package enums

// ERPSyncStatus records the outcome of the last push to the ERP.
type ERPSyncStatus string

const (
	ERPSyncPending ERPSyncStatus = "pending"
	ERPSyncSynced  ERPSyncStatus = "synced"
	ERPSyncError   ERPSyncStatus = "error"
)

func (s ERPSyncStatus) String() string {
	return string(s)
}

// ERPResource names the ERP resource a local entity is mirrored to.
type ERPResource string

const (
	ERPResourceProduct ERPResource = "product"
	ERPResourceContact ERPResource = "contact"
	ERPResourceOrder   ERPResource = "order"
)

func (r ERPResource) String() string {
	return string(r)
}
