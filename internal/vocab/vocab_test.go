package vocab

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/casting-aggregator/constants"
)

func TestDefaultLoads(t *testing.T) {
	v := Default()
	require.Positive(t, v.Version)
	require.NotEmpty(t, v.Reject)
	require.NotEmpty(t, v.StrongPositive)
	for _, cat := range constants.Categories() {
		require.NotEmpty(t, v.List(cat), "category %s", cat)
	}
}

func TestNormalizeFoldsArabicVariants(t *testing.T) {
	require.Equal(t, Normalize("الاجر"), Normalize("الأجر"))
	require.Equal(t, Normalize("مدرسه"), Normalize("مدرسة"))
	require.Equal(t, "casting call", Normalize("  Casting \n\t CALL "))
	require.Equal(t, Normalize("ممثل"), Normalize("مُمَثِّل"))
	require.Equal(t, Normalize("ممثل"), Normalize("ممـــثل"))
}

func TestMatchReturnsVocabularyOrder(t *testing.T) {
	v := Default()
	text := Normalize("للتواصل واتساب فقط")
	got := v.Match(constants.CategoryContact, text)
	require.Contains(t, got, "واتساب")
	require.Contains(t, got, "للتواصل")
	require.Less(t, indexOf(got, "واتساب"), indexOf(got, "للتواصل"))
}

func TestLatinKeywordsMatchWholeWords(t *testing.T) {
	v := Default()
	require.Empty(t, v.Match(constants.CategoryPayment, Normalize("Coffee and feedback session")))
	require.Empty(t, v.Match(constants.CategoryContact, Normalize("Happy to reapply next year")))
	require.Empty(t, v.Match(constants.CategoryTalent, Normalize("Talented chefs for the restaurant")))

	require.Equal(t, []string{"fee"}, v.Match(constants.CategoryPayment, Normalize("Fee: 500, coffee provided")))
	require.Contains(t, v.Match(constants.CategoryContact, Normalize("To apply, contact us")), "apply")
	require.Contains(t, v.Match(constants.CategoryTalent, Normalize("talent (female)")), "talent")

	// Arabic keywords still match inside prefixed words
	require.Contains(t, v.Match(constants.CategoryContact, Normalize("للتواصل واتساب")), "واتساب")
}

func TestParseRejectsIncompleteDocument(t *testing.T) {
	_, err := Parse([]byte("version: 1\nreject: [a]\n"))
	require.Error(t, err)

	_, err = Parse([]byte("version: [\n"))
	require.Error(t, err)
}

func indexOf(xs []string, s string) int {
	for i, x := range xs {
		if x == s {
			return i
		}
	}
	return -1
}
