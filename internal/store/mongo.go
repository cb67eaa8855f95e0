package store

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"medscan/internal/identify"
	"medscan/internal/logger"
	"medscan/pkg/models"
)

const (
	medicationsCollection = "medications"
	scansCollection       = "scans"

	// similarityThreshold is the minimum bigram similarity for a span hit.
	similarityThreshold = 0.75

	// maxSimilarResults bounds SearchSimilar output.
	maxSimilarResults = 5

	connectTimeout = 10 * time.Second
)

// MongoStore implements MedicationStore on a MongoDB database.
type MongoStore struct {
	client      *mongo.Client
	medications *mongo.Collection
	scans       *mongo.Collection
	log         zerolog.Logger
}

// NewMongoStore connects to the database at uri and verifies reachability.
func NewMongoStore(ctx context.Context, uri, database string) (*MongoStore, error) {
	const op = "NewMongoStore"

	connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("store: %s: %w", op, err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("store: %s: %w: %v", op, ErrUnavailable, err)
	}

	db := client.Database(database)
	return &MongoStore{
		client:      client,
		medications: db.Collection(medicationsCollection),
		scans:       db.Collection(scansCollection),
		log:         logger.WithComponent("medication-store"),
	}, nil
}

// FetchMap returns the full brand→generic map with lowercased brand keys.
// Duplicate brand rows resolve last-write-wins.
func (s *MongoStore) FetchMap(ctx context.Context) (map[string]string, error) {
	const op = "FetchMap"

	cursor, err := s.medications.Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("store: %s: %w", op, err)
	}
	defer cursor.Close(ctx)

	dictionary := make(map[string]string)
	for cursor.Next(ctx) {
		var entry models.DictionaryEntry
		if err := cursor.Decode(&entry); err != nil {
			return nil, fmt.Errorf("store: %s: decode entry: %w", op, err)
		}
		if entry.BrandName == "" || entry.GenericName == "" {
			continue
		}
		dictionary[strings.ToLower(entry.BrandName)] = entry.GenericName
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("store: %s: %w", op, err)
	}

	s.log.Debug().Int("entries", len(dictionary)).Msg("Fetched medication dictionary")
	return dictionary, nil
}

// SearchByName finds one entry whose brand or generic name equals name,
// case-insensitively. Returns nil when nothing matches.
func (s *MongoStore) SearchByName(ctx context.Context, name string) (*models.DictionaryEntry, error) {
	const op = "SearchByName"

	name = strings.TrimSpace(name)
	if name == "" {
		return nil, nil
	}

	pattern := primitive.Regex{Pattern: "^" + regexp.QuoteMeta(name) + "$", Options: "i"}
	filter := bson.M{"$or": []bson.M{
		{"brand_name": pattern},
		{"generic_name": pattern},
	}}

	var entry models.DictionaryEntry
	err := s.medications.FindOne(ctx, filter).Decode(&entry)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: %s: %w", op, err)
	}
	return &entry, nil
}

// SearchSimilar scores every dictionary entry against the span using
// character-bigram similarity over the span's tokens. Results above the
// threshold are returned best first, capped at maxSimilarResults.
func (s *MongoStore) SearchSimilar(ctx context.Context, text string) ([]models.SimilarEntry, error) {
	const op = "SearchSimilar"

	normalized := identify.Normalize(text)
	if normalized == "" {
		return nil, nil
	}
	tokens := append(strings.Fields(normalized), normalized)

	cursor, err := s.medications.Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("store: %s: %w", op, err)
	}
	defer cursor.Close(ctx)

	var results []models.SimilarEntry
	for cursor.Next(ctx) {
		var entry models.DictionaryEntry
		if err := cursor.Decode(&entry); err != nil {
			return nil, fmt.Errorf("store: %s: decode entry: %w", op, err)
		}

		score := bestTokenSimilarity(tokens, identify.Normalize(entry.BrandName))
		if generic := bestTokenSimilarity(tokens, identify.Normalize(entry.GenericName)); generic > score {
			score = generic
		}
		if score < similarityThreshold {
			continue
		}

		results = append(results, models.SimilarEntry{
			BrandName:   entry.BrandName,
			GenericName: entry.GenericName,
			Similarity:  score,
		})
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("store: %s: %w", op, err)
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})
	if len(results) > maxSimilarResults {
		results = results[:maxSimilarResults]
	}
	return results, nil
}

func bestTokenSimilarity(tokens []string, target string) float64 {
	if target == "" {
		return 0
	}
	best := 0.0
	for _, token := range tokens {
		if score := bigramSimilarity(token, target); score > best {
			best = score
		}
	}
	return best
}

// FetchDetails returns patient-facing details for a generic name, with
// defined defaults for fields the store has no data for.
func (s *MongoStore) FetchDetails(ctx context.Context, genericName string) (*models.MedicationDetails, error) {
	const op = "FetchDetails"

	pattern := primitive.Regex{Pattern: "^" + regexp.QuoteMeta(strings.TrimSpace(genericName)) + "$", Options: "i"}

	var details models.MedicationDetails
	err := s.medications.FindOne(ctx, bson.M{"generic_name": pattern}).Decode(&details)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: %s: %w", op, err)
	}

	details.Normalize()
	return &details, nil
}

// UpsertEntries bulk-writes dictionary entries keyed by lowercased brand
// name, last write wins.
func (s *MongoStore) UpsertEntries(ctx context.Context, entries []models.DictionaryEntry) error {
	const op = "UpsertEntries"

	if len(entries) == 0 {
		return nil
	}

	writes := make([]mongo.WriteModel, 0, len(entries))
	for _, entry := range entries {
		if entry.BrandName == "" || entry.GenericName == "" {
			continue
		}
		filter := bson.M{"brand_name": primitive.Regex{
			Pattern: "^" + regexp.QuoteMeta(entry.BrandName) + "$",
			Options: "i",
		}}
		writes = append(writes, mongo.NewReplaceOneModel().
			SetFilter(filter).
			SetReplacement(entry).
			SetUpsert(true))
	}
	if len(writes) == 0 {
		return nil
	}

	result, err := s.medications.BulkWrite(ctx, writes)
	if err != nil {
		return fmt.Errorf("store: %s: %w", op, err)
	}

	s.log.Info().
		Int64("upserted", result.UpsertedCount).
		Int64("modified", result.ModifiedCount).
		Msg("Dictionary entries written")
	return nil
}

// InsertRecord persists a completed scan, assigning an id and timestamp when
// absent.
func (s *MongoStore) InsertRecord(ctx context.Context, record *models.ScanRecord) error {
	const op = "InsertRecord"

	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.ScannedAt.IsZero() {
		record.ScannedAt = time.Now()
	}

	if _, err := s.scans.InsertOne(ctx, record); err != nil {
		return fmt.Errorf("store: %s: %w", op, err)
	}
	return nil
}

// Close disconnects from the database.
func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
