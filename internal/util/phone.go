package util

import (
	"regexp"
	"strings"
)

var phonePattern = regexp.MustCompile(`^\+?[0-9]{7,15}$`)

// NormalizePhone strips formatting characters so the same number always maps
// to the same directory key.
func NormalizePhone(phone string) string {
	phone = strings.TrimSpace(phone)
	replacer := strings.NewReplacer(" ", "", "-", "", "(", "", ")", "")
	return replacer.Replace(phone)
}

// IsValidPhone reports whether the normalized number looks like an E.164-ish
// phone number. Validation stays loose: the SMS provider is the real judge.
func IsValidPhone(phone string) bool {
	return phonePattern.MatchString(NormalizePhone(phone))
}
