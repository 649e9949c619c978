package service

import (
	"fmt"
	"math/rand/v2"
	"strings"
)

const (
	ibanCountry = "NL"
	ibanBank    = "INHO"

	// Account number 1 belongs to the bank itself.
	minAccountNumber   = 2
	accountNumberBound = 1_000_000_000
)

// GenerateIBAN returns a random MazeBank IBAN.
func GenerateIBAN() string {
	return ibanFor(minAccountNumber + rand.Int64N(accountNumberBound-minAccountNumber))
}

func ibanFor(number int64) string {
	bban := fmt.Sprintf("%s%010d", ibanBank, number)
	return fmt.Sprintf("%s%02d%s", ibanCountry, checkDigits(ibanCountry, bban), bban)
}

// ValidIBANChecksum reports whether iban passes the mod-97 check.
func ValidIBANChecksum(iban string) bool {
	iban = strings.ToUpper(strings.ReplaceAll(iban, " ", ""))
	if len(iban) < 5 {
		return false
	}
	rem, ok := mod97(iban[4:] + iban[:4])
	return ok && rem == 1
}

func checkDigits(country, bban string) int {
	rem, _ := mod97(bban + country + "00")
	return 98 - rem
}

// mod97 computes the remainder of the IBAN numeric form, where letters map
// to 10..35. It reports false on any other character.
func mod97(s string) (int, bool) {
	rem := 0
	for _, c := range s {
		switch {
		case c >= '0' && c <= '9':
			rem = (rem*10 + int(c-'0')) % 97
		case c >= 'A' && c <= 'Z':
			rem = (rem*100 + int(c-'A') + 10) % 97
		default:
			return 0, false
		}
	}
	return rem, true
}
