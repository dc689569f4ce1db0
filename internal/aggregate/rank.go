package aggregate

import (
	"sort"
	"strings"

	"github.com/jgoulah/usagereports/pkg/models"
)

// rankLess orders by total item requests descending, then title ascending
// ignoring case. This matches the order the reporting console displays.
func rankLess(a, b models.ItemUsageRecord) bool {
	if a.TotalItemRequests != b.TotalItemRequests {
		return a.TotalItemRequests > b.TotalItemRequests
	}
	return strings.ToLower(a.Title) < strings.ToLower(b.Title)
}

// RankItems stable-sorts items in place into display order
func RankItems(items []models.ItemUsageRecord) {
	sort.SliceStable(items, func(i, j int) bool {
		return rankLess(items[i], items[j])
	})
}

// MergeCategory folds every organization's items for cat into one list keyed
// by exact title. The first record seen for a title keeps its descriptive
// fields; later ones only add their counters. Records without a title are
// dropped. The result is ranked and capped at topN (no cap when topN <= 0).
func MergeCategory(usages []models.OrganizationUsage, cat models.Category, topN int) []models.ItemUsageRecord {
	index := make(map[string]int)
	var merged []models.ItemUsageRecord

	for _, u := range usages {
		for _, it := range u.RankedItems[cat] {
			if it.Title == "" {
				continue
			}
			if i, ok := index[it.Title]; ok {
				merged[i].ItemCounters.Add(it.ItemCounters)
				continue
			}
			index[it.Title] = len(merged)
			merged = append(merged, it)
		}
	}

	// Exact title as a last key keeps the order independent of which
	// organization was folded first.
	sort.SliceStable(merged, func(i, j int) bool {
		a, b := merged[i], merged[j]
		if rankLess(a, b) {
			return true
		}
		if rankLess(b, a) {
			return false
		}
		return a.Title < b.Title
	})

	if topN > 0 && len(merged) > topN {
		merged = merged[:topN]
	}
	return merged
}
