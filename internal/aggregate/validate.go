package aggregate

import "github.com/jgoulah/usagereports/pkg/models"

// ValidCategories returns the categories where at least one item of at least
// one organization shows usage evidence. Categories with no items, or only
// all-zero items, are left out.
func ValidCategories(usages []models.OrganizationUsage) models.CategorySet {
	valid := models.CategorySet{}
	for _, u := range usages {
		for cat, items := range u.RankedItems {
			if valid.Has(cat) {
				continue
			}
			for _, it := range items {
				if it.HasUsageEvidence() {
					valid.Add(cat)
					break
				}
			}
		}
	}
	return valid
}
