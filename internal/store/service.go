// Package store provides access to the remote medication database.
//
// The store holds the brand→generic dictionary, per-medication details
// (usage, side effects, warnings) and persisted scan records. All calls may
// fail with a connectivity error; callers treat such failures as non-fatal
// and fall back to cached data.
package store

import (
	"context"
	"errors"

	"medscan/pkg/models"
)

// ErrUnavailable is returned when the remote store cannot be reached.
var ErrUnavailable = errors.New("medication store unavailable")

// MedicationStore is the remote dictionary/detail store.
type MedicationStore interface {
	// FetchMap returns the full brand→generic map, keys lowercased.
	FetchMap(ctx context.Context) (map[string]string, error)

	// SearchByName finds a dictionary entry by brand or generic name.
	// Returns nil when nothing matches.
	SearchByName(ctx context.Context, name string) (*models.DictionaryEntry, error)

	// SearchSimilar returns medications similar to a text span, scored in
	// [0,1], best first.
	SearchSimilar(ctx context.Context, text string) ([]models.SimilarEntry, error)

	// FetchDetails returns the patient-facing details for a generic name.
	// Returns nil when unknown; missing fields carry "not available"
	// defaults.
	FetchDetails(ctx context.Context, genericName string) (*models.MedicationDetails, error)

	// UpsertEntries bulk-writes dictionary entries, last write wins per
	// brand name.
	UpsertEntries(ctx context.Context, entries []models.DictionaryEntry) error

	// InsertRecord persists a completed scan.
	InsertRecord(ctx context.Context, record *models.ScanRecord) error
}
