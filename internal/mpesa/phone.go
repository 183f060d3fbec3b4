package mpesa

import (
	"errors"
	"strings"
)

var ErrInvalidPhone = errors.New("phone must be a Kenyan mobile number")

// NormalizePhone returns the 2547XXXXXXXX / 2541XXXXXXXX form Daraja
// accepts. "+254…", "07…" and "7…" inputs are rewritten.
func NormalizePhone(phone string) (string, error) {
	p := strings.TrimSpace(phone)
	p = strings.NewReplacer(" ", "", "-", "").Replace(p)
	p = strings.TrimPrefix(p, "+")
	switch {
	case strings.HasPrefix(p, "254"):
	case strings.HasPrefix(p, "0"):
		p = "254" + p[1:]
	default:
		p = "254" + p
	}
	if len(p) != 12 {
		return "", ErrInvalidPhone
	}
	for _, r := range p {
		if r < '0' || r > '9' {
			return "", ErrInvalidPhone
		}
	}
	if p[3] != '7' && p[3] != '1' {
		return "", ErrInvalidPhone
	}
	return p, nil
}
