package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Known app_settings keys.
const (
	SettingPlasadaRate       = "plasada_rate"
	SettingDrawMultiplier    = "draw_multiplier"
	SettingPromoBonusPercent = "promo_bonus_percent"
)

// Setting is one runtime key/value row.
type Setting struct {
	Key       string     `json:"key"        db:"key"`
	Value     string     `json:"value"      db:"value"`
	UpdatedBy *uuid.UUID `json:"updated_by" db:"updated_by"`
	UpdatedAt time.Time  `json:"updated_at" db:"updated_at"`
}

// ValidateSetting checks a value before it is stored. Unknown keys are
// accepted as opaque strings.
func ValidateSetting(key, value string) error {
	switch key {
	case SettingPlasadaRate:
		rate, err := decimal.NewFromString(value)
		if err != nil {
			return fmt.Errorf("%w: %s is not a number", ErrValidation, key)
		}
		return ValidateRate(rate)
	case SettingDrawMultiplier:
		m, err := decimal.NewFromString(value)
		if err != nil || !m.GreaterThan(one) {
			return fmt.Errorf("%w: %s must be a number above 1", ErrValidation, key)
		}
	case SettingPromoBonusPercent:
		p, err := decimal.NewFromString(value)
		if err != nil || p.IsNegative() || p.GreaterThan(hundred) {
			return fmt.Errorf("%w: %s must be within 0..100", ErrValidation, key)
		}
	case "":
		return fmt.Errorf("%w: setting key is required", ErrValidation)
	}
	return nil
}
