package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"+1 555 123 4567", "+15551234567"},
		{"(555) 123-4567", "5551234567"},
		{"  +15551234567  ", "+15551234567"},
		{"+15551234567", "+15551234567"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizePhone(tt.in), "input %q", tt.in)
	}
}

func TestIsValidPhone(t *testing.T) {
	valid := []string{"+15551234567", "5551234567", "+1 (555) 123-4567", "1234567"}
	for _, phone := range valid {
		assert.True(t, IsValidPhone(phone), "expected %q to be valid", phone)
	}

	invalid := []string{"", "abc", "123456", "+12345678901234567890", "555-12ab"}
	for _, phone := range invalid {
		assert.False(t, IsValidPhone(phone), "expected %q to be invalid", phone)
	}
}
