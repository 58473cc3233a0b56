package constants

// PatternCategory tags a learned keyword with the signal it carries.
type PatternCategory string

const (
	CategoryTalent   PatternCategory = "talent"
	CategoryProject  PatternCategory = "project"
	CategoryContact  PatternCategory = "contact"
	CategoryPayment  PatternCategory = "payment"
	CategoryLocation PatternCategory = "location"
)

var allCategories = []PatternCategory{
	CategoryTalent,
	CategoryProject,
	CategoryContact,
	CategoryPayment,
	CategoryLocation,
}

// Categories returns the pattern categories in their canonical order.
func Categories() []PatternCategory {
	out := make([]PatternCategory, len(allCategories))
	copy(out, allCategories)
	return out
}
