package models

import "time"

// Source identifies which detector produced a candidate.
type Source string

const (
	// SourceDictionary marks an exact brand-name substring hit against the
	// brand→generic dictionary.
	SourceDictionary Source = "dictionary"

	// SourcePattern marks a candidate found by dosage/entity pattern scanning
	// plus a similarity lookup against the remote store.
	SourcePattern Source = "pattern"

	// SourceClassifier marks a single-chunk classifier detection.
	SourceClassifier Source = "classifier"

	// SourceEnsemble marks a classifier detection confirmed by multiple text
	// chunks, with an occurrence-boosted confidence.
	SourceEnsemble Source = "ensemble"
)

// MedicationCandidate is one detector's proposed medication match.
// Candidates are immutable value objects owned by the pipeline call that
// created them.
type MedicationCandidate struct {
	// BrandName is the commercial name as matched or inferred, title-cased
	// for display.
	BrandName string `json:"brand_name"`

	// GenericName is the canonical active-ingredient name. Grouping and
	// deduplication compare it case-insensitively. Never empty on an
	// emitted candidate.
	GenericName string `json:"generic_name"`

	// Confidence is the detector-specific score in [0,1]. Dictionary matches
	// carry a fixed 0.95; pattern and classifier matches carry variable
	// scores.
	Confidence float64 `json:"confidence"`

	// Source records provenance for ranking transparency and display.
	Source Source `json:"source"`

	// Metadata carries free-form detector context (text offsets, occurrence
	// counts). Never used for equality.
	Metadata map[string]any `json:"metadata,omitempty"`
}

// DictionaryEntry is one brand→generic row from the remote medication store.
// Brand names are treated as unique keys; on map construction the last write
// wins.
type DictionaryEntry struct {
	BrandName   string `json:"brand_name" bson:"brand_name"`
	GenericName string `json:"generic_name" bson:"generic_name"`
}

// SimilarEntry is a similarity-search result for a text span.
type SimilarEntry struct {
	BrandName   string  `json:"brand_name" bson:"brand_name"`
	GenericName string  `json:"generic_name" bson:"generic_name"`
	Similarity  float64 `json:"similarity" bson:"similarity"`
}

// DetailsUnavailable is the defined default for detail fields the store has
// no data for.
const DetailsUnavailable = "Not available"

// MedicationDetails holds the patient-facing description of a medication.
// Missing fields default to DetailsUnavailable rather than empty strings.
type MedicationDetails struct {
	GenericName string `json:"generic_name" bson:"generic_name"`
	Usage       string `json:"usage" bson:"usage"`
	Dosage      string `json:"dosage" bson:"dosage"`
	SideEffects string `json:"side_effects" bson:"side_effects"`
	Warnings    string `json:"warnings" bson:"warnings"`
}

// Normalize fills empty detail fields with the "not available" default.
func (d *MedicationDetails) Normalize() {
	if d.Usage == "" {
		d.Usage = DetailsUnavailable
	}
	if d.Dosage == "" {
		d.Dosage = DetailsUnavailable
	}
	if d.SideEffects == "" {
		d.SideEffects = DetailsUnavailable
	}
	if d.Warnings == "" {
		d.Warnings = DetailsUnavailable
	}
}

// ScanRecord is a persisted record of one completed scan.
type ScanRecord struct {
	ID         string                `json:"id" bson:"_id"`
	ImagePath  string                `json:"image_path" bson:"image_path"`
	RawText    string                `json:"raw_text" bson:"raw_text"`
	Candidates []MedicationCandidate `json:"candidates" bson:"candidates"`
	ScannedAt  time.Time             `json:"scanned_at" bson:"scanned_at"`
}
