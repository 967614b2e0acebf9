package enums

import (
	"fmt"
	"strings"
)

type Currency string

const (
	CurrencyUSD Currency = "usd"
	CurrencyCAD Currency = "cad"
)

func (c Currency) IsValid() bool {
	switch c {
	case CurrencyUSD, CurrencyCAD:
		return true
	}
	return false
}

func (c Currency) String() string {
	return string(c)
}

func ParseCurrency(value string) (Currency, error) {
	currency := Currency(strings.ToLower(strings.TrimSpace(value)))
	if !currency.IsValid() {
		return "", fmt.Errorf("unknown currency %q", value)
	}
	return currency, nil
}
