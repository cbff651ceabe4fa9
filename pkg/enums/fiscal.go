package enums

import (
	"fmt"
	"strings"
)

// FiscalDocumentStatus is the emission status of an NF-e.
type FiscalDocumentStatus string

const (
	FiscalStatusPending    FiscalDocumentStatus = "pending"
	FiscalStatusProcessing FiscalDocumentStatus = "processing"
	FiscalStatusIssued     FiscalDocumentStatus = "issued"
	FiscalStatusError      FiscalDocumentStatus = "error"
	FiscalStatusCancelled  FiscalDocumentStatus = "cancelled"
)

var validFiscalStatuses = []FiscalDocumentStatus{
	FiscalStatusPending,
	FiscalStatusProcessing,
	FiscalStatusIssued,
	FiscalStatusError,
	FiscalStatusCancelled,
}

func (s FiscalDocumentStatus) String() string {
	return string(s)
}

func (s FiscalDocumentStatus) IsValid() bool {
	for _, candidate := range validFiscalStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether polling can stop.
func (s FiscalDocumentStatus) IsTerminal() bool {
	return s == FiscalStatusIssued || s == FiscalStatusError || s == FiscalStatusCancelled
}

func ParseFiscalDocumentStatus(value string) (FiscalDocumentStatus, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	for _, candidate := range validFiscalStatuses {
		if string(candidate) == normalized {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid fiscal document status %q", value)
}
