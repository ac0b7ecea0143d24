package security

import (
	"errors"
	"fmt"

	"github.com/nbutton23/zxcvbn-go"
)

// ErrWeakPassword indicates the candidate password failed the policy check.
var ErrWeakPassword = errors.New("password does not meet strength requirements")

// PasswordPolicy validates candidate passwords with the zxcvbn estimator.
type PasswordPolicy struct {
	minLength int
	minScore  int
}

// NewPasswordPolicy builds a policy requiring at least minLength characters
// and a zxcvbn score of minScore (0-4).
func NewPasswordPolicy(minLength, minScore int) *PasswordPolicy {
	if minLength <= 0 {
		minLength = 8
	}
	if minScore < 0 || minScore > 4 {
		minScore = 2
	}
	return &PasswordPolicy{minLength: minLength, minScore: minScore}
}

// Validate checks password against the policy. userInputs (email, name) are
// penalized by the estimator so passwords derived from them score low.
func (p *PasswordPolicy) Validate(password string, userInputs ...string) error {
	if len(password) < p.minLength {
		return fmt.Errorf("%w: must be at least %d characters", ErrWeakPassword, p.minLength)
	}

	result := zxcvbn.PasswordStrength(password, userInputs)
	if result.Score < p.minScore {
		return fmt.Errorf("%w: too guessable", ErrWeakPassword)
	}

	return nil
}
