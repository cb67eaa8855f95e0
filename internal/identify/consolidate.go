package identify

import (
	"strings"

	"medscan/pkg/models"
)

// Consolidate merges candidate lists from all detectors, groups them by
// generic name (case-insensitive), and keeps the single highest-confidence
// candidate per group. This is a strict priority-by-confidence reduction,
// not a weighted fusion; ties are broken by input order (first seen wins).
func Consolidate(lists ...[]models.MedicationCandidate) []models.MedicationCandidate {
	best := make(map[string]models.MedicationCandidate)
	var order []string

	for _, list := range lists {
		for _, candidate := range list {
			key := strings.ToLower(candidate.GenericName)
			if key == "" {
				continue
			}
			current, ok := best[key]
			if !ok {
				best[key] = candidate
				order = append(order, key)
				continue
			}
			if candidate.Confidence > current.Confidence {
				best[key] = candidate
			}
		}
	}

	out := make([]models.MedicationCandidate, 0, len(order))
	for _, key := range order {
		out = append(out, best[key])
	}
	return out
}
