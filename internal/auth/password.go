package auth

import (
	"unicode"

	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"

	"github.com/hivemind-app/hivemind-back/internal/config"
)

const (
	minPasswordLen = 8
	// bcrypt refuses inputs over 72 bytes, so longer passwords must be
	// rejected as invalid input instead of failing inside the hasher.
	maxPasswordLen = 72
)

// Hasher turns raw passwords into bcrypt hashes. The raw password is
// never stored anywhere; the cost factor comes from config and is held
// constant across the process.
type Hasher struct {
	cost int
}

func NewHasher(cfg *config.Config) *Hasher {
	return &Hasher{cost: cfg.BcryptCost}
}

func (h *Hasher) Hash(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", errors.Wrap(err, "generate password hash")
	}
	return string(b), nil
}

// Compare delegates to bcrypt, which is constant-time on the digest.
func (h *Hasher) Compare(hash, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}

// ValidatePassword enforces the complexity policy: bounded length plus
// at least one uppercase, lowercase, digit and symbol rune.
func ValidatePassword(password string) error {
	if len(password) < minPasswordLen {
		return errors.Errorf("password must be at least %d characters", minPasswordLen)
	}
	if len(password) > maxPasswordLen {
		return errors.Errorf("password must be at most %d bytes", maxPasswordLen)
	}

	var upper, lower, digit, symbol bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		default:
			symbol = true
		}
	}

	if !upper {
		return errors.New("password must contain an uppercase letter")
	}
	if !lower {
		return errors.New("password must contain a lowercase letter")
	}
	if !digit {
		return errors.New("password must contain a digit")
	}
	if !symbol {
		return errors.New("password must contain a symbol")
	}
	return nil
}
