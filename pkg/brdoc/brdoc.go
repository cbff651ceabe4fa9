// Package brdoc validates Brazilian identifiers: CPF, CNPJ, CEP, UF and NCM.
package brdoc

import "strings"

var states = map[string]struct{}{
	"AC": {}, "AL": {}, "AP": {}, "AM": {}, "BA": {}, "CE": {}, "DF": {}, "ES": {}, "GO": {},
	"MA": {}, "MT": {}, "MS": {}, "MG": {}, "PA": {}, "PB": {}, "PR": {}, "PE": {}, "PI": {},
	"RJ": {}, "RN": {}, "RS": {}, "RO": {}, "RR": {}, "SC": {}, "SP": {}, "SE": {}, "TO": {},
}

// Digits strips everything but ASCII digits.
func Digits(value string) string {
	var b strings.Builder
	b.Grow(len(value))
	for _, r := range value {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ValidCPF checks the two CPF check digits. Repeated-digit numbers such as
// 111.111.111-11 pass the arithmetic but are rejected.
func ValidCPF(value string) bool {
	d := Digits(value)
	if len(d) != 11 || repeated(d) {
		return false
	}
	return checkDigit(d[:9], weightsDesc(10)) == d[9] &&
		checkDigit(d[:10], weightsDesc(11)) == d[10]
}

// ValidCNPJ checks the two CNPJ check digits.
func ValidCNPJ(value string) bool {
	d := Digits(value)
	if len(d) != 14 || repeated(d) {
		return false
	}
	first := []int{5, 4, 3, 2, 9, 8, 7, 6, 5, 4, 3, 2}
	second := append([]int{6}, first...)
	return checkDigit(d[:12], first) == d[12] && checkDigit(d[:13], second) == d[13]
}

// Kind classifies a tax document by length.
type Kind int

const (
	KindUnknown Kind = iota
	KindCPF
	KindCNPJ
)

// ClassifyDocument returns KindCPF for 11 digits and KindCNPJ for 14 digits
// when the checksum holds.
func ClassifyDocument(value string) Kind {
	d := Digits(value)
	switch {
	case len(d) == 11 && ValidCPF(d):
		return KindCPF
	case len(d) == 14 && ValidCNPJ(d):
		return KindCNPJ
	default:
		return KindUnknown
	}
}

// ValidCEP reports whether value has exactly 8 digits once the dash is removed.
func ValidCEP(value string) bool {
	trimmed := strings.ReplaceAll(strings.TrimSpace(value), "-", "")
	return len(trimmed) == 8 && Digits(trimmed) == trimmed
}

// NormalizeCEP returns the 8-digit form or "" when invalid.
func NormalizeCEP(value string) string {
	if !ValidCEP(value) {
		return ""
	}
	return Digits(value)
}

// ValidUF reports whether value is one of the 27 federative units.
func ValidUF(value string) bool {
	_, ok := states[strings.ToUpper(strings.TrimSpace(value))]
	return ok
}

// ValidNCM reports whether value is an 8-digit Mercosur code. Dots are allowed.
func ValidNCM(value string) bool {
	trimmed := strings.ReplaceAll(strings.TrimSpace(value), ".", "")
	return len(trimmed) == 8 && Digits(trimmed) == trimmed
}

func checkDigit(base string, weights []int) byte {
	sum := 0
	for i := range base {
		sum += int(base[i]-'0') * weights[i]
	}
	rest := sum % 11
	if rest < 2 {
		return '0'
	}
	return byte('0' + 11 - rest)
}

func weightsDesc(start int) []int {
	out := make([]int, start-1)
	for i := range out {
		out[i] = start - i
	}
	return out
}

func repeated(d string) bool {
	return strings.Count(d, d[:1]) == len(d)
}
