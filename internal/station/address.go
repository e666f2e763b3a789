package station

import (
	"strconv"
	"strings"
)

// ValidateAddress accepts an IPv4 dotted quad with an optional :port suffix.
func ValidateAddress(address string) error {
	if strings.TrimSpace(address) == "" {
		return &ValidationError{Address: address, Reason: "address is blank"}
	}
	if address != strings.TrimSpace(address) {
		return &ValidationError{Address: address, Reason: "address contains surrounding whitespace"}
	}

	host := address
	if i := strings.LastIndexByte(address, ':'); i >= 0 {
		host = address[:i]
		if err := validatePort(address[i+1:]); err != nil {
			return &ValidationError{Address: address, Reason: err.Error()}
		}
	}

	parts := strings.Split(host, ".")
	if len(parts) != 4 {
		return &ValidationError{Address: address, Reason: "expected four dot-separated octets"}
	}
	for _, p := range parts {
		if !allDigits(p) {
			return &ValidationError{Address: address, Reason: "octet " + strconv.Quote(p) + " is not numeric"}
		}
		n, err := strconv.Atoi(p)
		if err != nil || n > 255 {
			return &ValidationError{Address: address, Reason: "octet " + p + " out of range 0-255"}
		}
	}
	return nil
}

func validatePort(s string) error {
	if !allDigits(s) {
		return errInvalidPort(s)
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 || n > 65535 {
		return errInvalidPort(s)
	}
	return nil
}

type errInvalidPort string

func (e errInvalidPort) Error() string {
	return "invalid port " + strconv.Quote(string(e))
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// BaseURL returns the root URL of the station API at address.
func BaseURL(address string) string {
	return "http://" + address + "/"
}
