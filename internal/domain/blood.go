package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownBloodType is returned when a blood type code is not one of the
// eight ABO/Rh groups.
var ErrUnknownBloodType = errors.New("unknown blood type")

// BloodType is an ABO/Rh blood group code such as "O-" or "AB+".
type BloodType string

const (
	BloodOMinus  BloodType = "O-"
	BloodOPlus   BloodType = "O+"
	BloodAMinus  BloodType = "A-"
	BloodAPlus   BloodType = "A+"
	BloodBMinus  BloodType = "B-"
	BloodBPlus   BloodType = "B+"
	BloodABMinus BloodType = "AB-"
	BloodABPlus  BloodType = "AB+"
)

// AllBloodTypes lists the eight groups in donor-universality order.
var AllBloodTypes = []BloodType{
	BloodOMinus, BloodOPlus, BloodAMinus, BloodAPlus,
	BloodBMinus, BloodBPlus, BloodABMinus, BloodABPlus,
}

// Valid reports whether b is one of the eight known groups.
func (b BloodType) Valid() bool {
	for _, t := range AllBloodTypes {
		if b == t {
			return true
		}
	}
	return false
}

func (b BloodType) String() string { return string(b) }

// ParseBloodType normalizes and validates a blood type code.
// "ab+", " O- " and "AB+" are all accepted.
func ParseBloodType(s string) (BloodType, error) {
	b := BloodType(strings.ToUpper(strings.TrimSpace(s)))
	if !b.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownBloodType, s)
	}
	return b, nil
}

// Urgency is the clinical urgency of a blood request.
type Urgency string

const (
	UrgencyStandard Urgency = "Standard"
	UrgencyHigh     Urgency = "High"
	UrgencyUrgent   Urgency = "Urgent"
)

// Valid reports whether u is a recognized urgency level.
// Unrecognized values are still accepted by the scoring engine and score as
// the lowest tier.
func (u Urgency) Valid() bool {
	switch u {
	case UrgencyStandard, UrgencyHigh, UrgencyUrgent:
		return true
	}
	return false
}
