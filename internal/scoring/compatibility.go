// Package scoring implements the donor/request matching score engine:
// blood-type compatibility, request urgency (RUS), donor readiness (DRS),
// the gated matching score and min-max normalization.
//
// Every function is pure. Time-dependent scores take the current time as an
// argument; Scorer binds a Clock for callers that want it injected.
package scoring

import (
	"github.com/lifelink-community/lifelink/internal/domain"
)

// compatibility maps a donor blood type to the recipient types it can supply.
// Built once at init and never mutated; callers only receive copies.
var compatibility = map[domain.BloodType][]domain.BloodType{
	domain.BloodOMinus: {
		domain.BloodOMinus, domain.BloodOPlus, domain.BloodAMinus, domain.BloodAPlus,
		domain.BloodBMinus, domain.BloodBPlus, domain.BloodABMinus, domain.BloodABPlus,
	},
	domain.BloodOPlus:   {domain.BloodOPlus, domain.BloodAPlus, domain.BloodBPlus, domain.BloodABPlus},
	domain.BloodAMinus:  {domain.BloodAMinus, domain.BloodAPlus, domain.BloodABMinus, domain.BloodABPlus},
	domain.BloodAPlus:   {domain.BloodAPlus, domain.BloodABPlus},
	domain.BloodBMinus:  {domain.BloodBMinus, domain.BloodBPlus, domain.BloodABMinus, domain.BloodABPlus},
	domain.BloodBPlus:   {domain.BloodBPlus, domain.BloodABPlus},
	domain.BloodABMinus: {domain.BloodABMinus, domain.BloodABPlus},
	domain.BloodABPlus:  {domain.BloodABPlus},
}

// CompatibleRecipients returns the recipient types a donor type can supply.
// An unknown donor type yields an empty slice.
func CompatibleRecipients(donor domain.BloodType) []domain.BloodType {
	recipients := compatibility[donor]
	out := make([]domain.BloodType, len(recipients))
	copy(out, recipients)
	return out
}

// CanDonate reports whether donor blood may be given to recipient.
func CanDonate(donor, recipient domain.BloodType) bool {
	for _, r := range compatibility[donor] {
		if r == recipient {
			return true
		}
	}
	return false
}

// CompatibleDonors is the reverse lookup: every donor type that can supply
// the recipient, in universality order.
func CompatibleDonors(recipient domain.BloodType) []domain.BloodType {
	var out []domain.BloodType
	for _, donor := range domain.AllBloodTypes {
		if CanDonate(donor, recipient) {
			out = append(out, donor)
		}
	}
	return out
}
