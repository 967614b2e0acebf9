package enums

import (
	"fmt"
	"strings"
)

type LedgerEntryType string

const (
	LedgerEntrySale        LedgerEntryType = "sale"
	LedgerEntryRefund      LedgerEntryType = "refund"
	LedgerEntryDeliveryFee LedgerEntryType = "delivery_fee"
	LedgerEntryPlatformFee LedgerEntryType = "platform_fee"
	LedgerEntryPayout      LedgerEntryType = "payout"
	LedgerEntryAdjustment  LedgerEntryType = "adjustment"
)

func (t LedgerEntryType) IsValid() bool {
	switch t {
	case LedgerEntrySale, LedgerEntryRefund, LedgerEntryDeliveryFee,
		LedgerEntryPlatformFee, LedgerEntryPayout, LedgerEntryAdjustment:
		return true
	}
	return false
}

func (t LedgerEntryType) String() string {
	return string(t)
}

func ParseLedgerEntryType(value string) (LedgerEntryType, error) {
	entryType := LedgerEntryType(strings.ToLower(strings.TrimSpace(value)))
	if !entryType.IsValid() {
		return "", fmt.Errorf("unknown ledger entry type %q", value)
	}
	return entryType, nil
}
