package station

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateAddress(t *testing.T) {
	tests := []struct {
		name    string
		address string
		valid   bool
	}{
		{name: "typical", address: "192.168.1.50", valid: true},
		{name: "all zero", address: "0.0.0.0", valid: true},
		{name: "all max", address: "255.255.255.255", valid: true},
		{name: "leading zeros", address: "010.001.000.001", valid: true},
		{name: "with port", address: "127.0.0.1:8080", valid: true},
		{name: "blank", address: "", valid: false},
		{name: "whitespace only", address: "   ", valid: false},
		{name: "surrounding whitespace", address: " 10.0.0.1 ", valid: false},
		{name: "three octets", address: "192.168.1", valid: false},
		{name: "five octets", address: "192.168.1.1.1", valid: false},
		{name: "octet over 255", address: "192.168.1.256", valid: false},
		{name: "huge octet", address: "1.2.3.99999999999999999999", valid: false},
		{name: "non numeric", address: "192.168.one.1", valid: false},
		{name: "hostname", address: "weather.local", valid: false},
		{name: "four word hostname", address: "a.b.c.d", valid: false},
		{name: "empty octet", address: "192..1.1", valid: false},
		{name: "double dot tail", address: "192.168.1.", valid: false},
		{name: "negative octet", address: "192.168.-1.1", valid: false},
		{name: "plus sign", address: "+1.2.3.4", valid: false},
		{name: "port zero", address: "10.0.0.1:0", valid: false},
		{name: "port too large", address: "10.0.0.1:70000", valid: false},
		{name: "empty port", address: "10.0.0.1:", valid: false},
		{name: "non numeric port", address: "10.0.0.1:http", valid: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateAddress(tt.address)
			if tt.valid {
				assert.NoError(t, err)
				return
			}
			var verr *ValidationError
			if assert.True(t, errors.As(err, &verr), "want ValidationError, got %v", err) {
				assert.Equal(t, tt.address, verr.Address)
				assert.NotEmpty(t, verr.Reason)
			}
		})
	}
}

func TestBaseURL(t *testing.T) {
	assert.Equal(t, "http://192.168.1.50/", BaseURL("192.168.1.50"))
	assert.Equal(t, "http://127.0.0.1:8080/", BaseURL("127.0.0.1:8080"))
}
