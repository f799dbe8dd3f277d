// Package notify delivers farmer alerts over SMS and outbound voice calls and
// owns the Bangladeshi mobile number rules both channels depend on.
package notify

import (
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var bdMobileRE = regexp.MustCompile(`^(?:\+?88)?01[3-9]\d{8}$`)

// compact drops the separators people type into phone numbers.
func compact(s string) string {
	return strings.NewReplacer(" ", "", "-", "", "(", "", ")", "", ".", "").Replace(strings.TrimSpace(s))
}

// IsValidBangladeshiMobile reports whether s is a BD mobile number in local
// (01XXXXXXXXX) or international (8801…, +8801…) form.
func IsValidBangladeshiMobile(s string) bool {
	return bdMobileRE.MatchString(compact(s))
}

// FormatMobileNumber returns the 8801XXXXXXXXX form the SMS gateway and the
// voice provider expect. Input that is not a valid BD mobile is returned
// compacted but otherwise unchanged.
func FormatMobileNumber(s string) string {
	c := compact(s)
	if !bdMobileRE.MatchString(c) {
		return c
	}
	c = strings.TrimPrefix(c, "+")
	if strings.HasPrefix(c, "01") {
		c = "88" + c
	}
	return c
}

// MobileVariants lists the spellings a stored number might use, for lookups
// by an incoming caller id. Returns nil for an invalid number.
func MobileVariants(s string) []string {
	if !IsValidBangladeshiMobile(s) {
		return nil
	}
	intl := FormatMobileNumber(s)
	local := strings.TrimPrefix(intl, "88")
	return []string{local, intl, "+" + intl}
}

// ValidateBDMobile is a validator.Func for the "bdmobile" struct tag.
func ValidateBDMobile(fl validator.FieldLevel) bool {
	return IsValidBangladeshiMobile(fl.Field().String())
}
