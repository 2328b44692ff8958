// Package money holds the monetary quantization rule and the supported
// operating countries and wallet currencies.
package money

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/hypersenta/serenity/internal/platform/apperr"
)

// Places is the scale every persisted amount and rate is stored with.
const Places = 2

// Quantize rounds d to two decimal places with banker's rounding
// (round half to even). It is the only rounding rule used for money.
func Quantize(d decimal.Decimal) decimal.Decimal {
	return d.RoundBank(Places)
}

// QuantizeNull quantizes a nullable amount, leaving null values untouched.
func QuantizeNull(d decimal.NullDecimal) decimal.NullDecimal {
	if !d.Valid {
		return d
	}
	return decimal.NewNullDecimal(Quantize(d.Decimal))
}

// Format renders an amount with its currency code, e.g. "GHS 100.00".
func Format(c Currency, d decimal.Decimal) string {
	return fmt.Sprintf("%s %s", c, Quantize(d).StringFixed(Places))
}

// String renders d quantized with exactly two decimals, e.g. "0.20".
func String(d decimal.Decimal) string {
	return Quantize(d).StringFixed(Places)
}

// NullString is String for nullable amounts; null renders as nil.
func NullString(d decimal.NullDecimal) *string {
	if !d.Valid {
		return nil
	}
	s := String(d.Decimal)
	return &s
}

// Currency is an ISO 4217 wallet currency code.
type Currency string

const (
	GHS Currency = "GHS"
	NGN Currency = "NGN"
	KES Currency = "KES"
	ZAR Currency = "ZAR"
)

// Country is an operating country display name.
type Country string

const (
	Ghana       Country = "Ghana"
	Nigeria     Country = "Nigeria"
	Kenya       Country = "Kenya"
	SouthAfrica Country = "South Africa"
)

var countryCurrencies = map[Country]Currency{
	Ghana:       GHS,
	Nigeria:     NGN,
	Kenya:       KES,
	SouthAfrica: ZAR,
}

// CurrencyForCountry resolves the default wallet currency of an operating
// country. Unsupported countries are a configuration problem, not bad input.
func CurrencyForCountry(country Country) (Currency, error) {
	c, ok := countryCurrencies[country]
	if !ok {
		return "", apperr.Configuration("could not resolve currency for country %q", country)
	}
	return c, nil
}

// Supported reports whether c is a wallet currency of any operating country.
func (c Currency) Supported() bool {
	for _, v := range countryCurrencies {
		if v == c {
			return true
		}
	}
	return false
}
