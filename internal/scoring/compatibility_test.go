package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lifelink-community/lifelink/internal/domain"
)

func TestCompatibility(t *testing.T) {
	t.Run("Matrix", func(t *testing.T) {
		expected := map[domain.BloodType][]domain.BloodType{
			"O-":  {"O-", "O+", "A-", "A+", "B-", "B+", "AB-", "AB+"},
			"O+":  {"O+", "A+", "B+", "AB+"},
			"A-":  {"A-", "A+", "AB-", "AB+"},
			"A+":  {"A+", "AB+"},
			"B-":  {"B-", "B+", "AB-", "AB+"},
			"B+":  {"B+", "AB+"},
			"AB-": {"AB-", "AB+"},
			"AB+": {"AB+"},
		}
		for donor, recipients := range expected {
			assert.ElementsMatch(t, recipients, CompatibleRecipients(donor), "donor %s", donor)
		}
	})

	t.Run("EveryTypeSuppliesItselfAndABPositive", func(t *testing.T) {
		for _, b := range domain.AllBloodTypes {
			assert.True(t, CanDonate(b, b), "%s -> %s", b, b)
			assert.True(t, CanDonate(b, domain.BloodABPlus), "%s -> AB+", b)
		}
	})

	t.Run("ONegativeIsUniversal", func(t *testing.T) {
		for _, r := range domain.AllBloodTypes {
			assert.True(t, CanDonate(domain.BloodOMinus, r), "O- -> %s", r)
		}
	})

	t.Run("UnknownDonorIsIncompatible", func(t *testing.T) {
		assert.Empty(t, CompatibleRecipients("Z+"))
		assert.False(t, CanDonate("Z+", domain.BloodABPlus))
		assert.False(t, CanDonate("", domain.BloodOMinus))
	})

	t.Run("RecipientsAreCopies", func(t *testing.T) {
		got := CompatibleRecipients(domain.BloodOPlus)
		got[0] = "X"
		assert.Equal(t, domain.BloodOPlus, CompatibleRecipients(domain.BloodOPlus)[0])
	})

	t.Run("CompatibleDonors", func(t *testing.T) {
		assert.Equal(t, []domain.BloodType{domain.BloodOMinus}, CompatibleDonors(domain.BloodOMinus))
		assert.Equal(t, domain.AllBloodTypes, CompatibleDonors(domain.BloodABPlus))
		assert.Equal(t,
			[]domain.BloodType{domain.BloodOMinus, domain.BloodOPlus, domain.BloodAMinus, domain.BloodAPlus},
			CompatibleDonors(domain.BloodAPlus))
		assert.Empty(t, CompatibleDonors("Q"))
	})
}
