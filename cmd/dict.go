package cmd

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"medscan/internal/config"
	"medscan/internal/logger"
	"medscan/internal/store"
	"medscan/pkg/models"
)

var dictCmd = &cobra.Command{
	Use:   "dict",
	Short: "Manage the medication dictionary",
	Long: `Manage the brand→generic medication dictionary.

The dictionary lives in the medication database and is cached locally for
offline scanning. Use "dict sync" to refresh the local snapshot and
"dict import" to load entries from a CSV file into the database.`,
}

var dictSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Refresh the local dictionary snapshot from the database",
	Example: `  # Force a fresh download of the dictionary
  medscan dict sync`,
	Args: cobra.NoArgs,
	RunE: runDictSync,
}

var dictImportCmd = &cobra.Command{
	Use:   "import [csv-file]",
	Short: "Import dictionary entries from a CSV file",
	Long: `Import medication entries from a CSV file into the database.

Rows with two columns are read as brand_name,generic_name pairs. Rows with a
single column are read as molecule lists, where the brand and generic name
are the same. A header row containing "brand" or "molecule" is skipped.`,
	Example: `  # Import brand,generic pairs
  medscan dict import medications.csv

  # Import a single-column molecule list
  medscan dict import molecules.csv`,
	Args: cobra.ExactArgs(1),
	RunE: runDictImport,
}

func init() {
	rootCmd.AddCommand(dictCmd)
	dictCmd.AddCommand(dictSyncCmd)
	dictCmd.AddCommand(dictImportCmd)

	dictSyncCmd.Flags().Int("timeout", 60, "Processing timeout in seconds")
	dictImportCmd.Flags().Int("timeout", 120, "Processing timeout in seconds")
}

func runDictSync(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("dict")

	timeoutSecs, _ := cmd.Flags().GetInt("timeout")

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	ctx, cancel := createContextWithTimeout(timeoutSecs, log)
	defer cancel()

	medStore, err := store.NewMongoStore(ctx, cfg.MongoURI, cfg.MongoDatabase)
	if err != nil {
		log.Error().Err(err).Msg("Failed to connect to database")
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer func() {
		if closeErr := medStore.Close(ctx); closeErr != nil {
			log.Warn().Err(closeErr).Msg("Failed to close database connection")
		}
	}()

	cache, kv := openDictionaryCache(cfg, medStore, log)
	if kv == nil {
		return fmt.Errorf("failed to open snapshot store at %s", cfg.SnapshotPath)
	}
	defer func() {
		if closeErr := kv.Close(); closeErr != nil {
			log.Warn().Err(closeErr).Msg("Failed to close snapshot store")
		}
	}()

	entries, err := cache.Refresh(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Dictionary refresh failed")
		return fmt.Errorf("failed to refresh dictionary: %w", err)
	}

	log.Info().
		Int("entries", len(entries)).
		Str("snapshot", cfg.SnapshotPath).
		Msg("Dictionary snapshot refreshed")

	fmt.Printf("Synced %d dictionary entries to %s\n", len(entries), cfg.SnapshotPath)
	return nil
}

func runDictImport(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("dict")

	timeoutSecs, _ := cmd.Flags().GetInt("timeout")
	csvPath := args[0]

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	entries, err := readDictionaryCSV(csvPath, log)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return fmt.Errorf("no dictionary entries found in %s", csvPath)
	}

	ctx, cancel := createContextWithTimeout(timeoutSecs, log)
	defer cancel()

	medStore, err := store.NewMongoStore(ctx, cfg.MongoURI, cfg.MongoDatabase)
	if err != nil {
		log.Error().Err(err).Msg("Failed to connect to database")
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer func() {
		if closeErr := medStore.Close(ctx); closeErr != nil {
			log.Warn().Err(closeErr).Msg("Failed to close database connection")
		}
	}()

	if err := medStore.UpsertEntries(ctx, entries); err != nil {
		log.Error().
			Err(err).
			Int("entries", len(entries)).
			Msg("Dictionary import failed")
		return fmt.Errorf("failed to import dictionary entries: %w", err)
	}

	log.Info().
		Int("entries", len(entries)).
		Str("file", csvPath).
		Msg("Dictionary entries imported")

	fmt.Printf("Imported %d dictionary entries from %s\n", len(entries), csvPath)
	return nil
}

// readDictionaryCSV parses brand,generic rows or single-column molecule lists.
func readDictionaryCSV(csvPath string, log zerolog.Logger) ([]models.DictionaryEntry, error) {
	file, err := os.Open(csvPath)
	if err != nil {
		log.Error().
			Err(err).
			Str("file", csvPath).
			Msg("Failed to open CSV file")
		return nil, fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer func() {
		if closeErr := file.Close(); closeErr != nil {
			log.Warn().Err(closeErr).Msg("Failed to close CSV file")
		}
	}()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	var entries []models.DictionaryEntry
	line := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse CSV at line %d: %w", line+1, err)
		}
		line++

		if line == 1 && isHeaderRow(record) {
			continue
		}

		entry, ok := entryFromRecord(record)
		if !ok {
			log.Debug().
				Int("line", line).
				Strs("record", record).
				Msg("Skipping row without a usable name")
			continue
		}
		entries = append(entries, entry)
	}

	return entries, nil
}

// isHeaderRow reports whether the first CSV row looks like column names.
func isHeaderRow(record []string) bool {
	for _, field := range record {
		lower := strings.ToLower(field)
		if strings.Contains(lower, "brand") ||
			strings.Contains(lower, "generic") ||
			strings.Contains(lower, "molecule") ||
			strings.Contains(lower, "name") {
			return true
		}
	}
	return false
}

// entryFromRecord maps one CSV row to a dictionary entry. Single-column rows
// are molecule names used as both brand and generic.
func entryFromRecord(record []string) (models.DictionaryEntry, bool) {
	if len(record) == 0 {
		return models.DictionaryEntry{}, false
	}

	brand := strings.TrimSpace(record[0])
	if brand == "" {
		return models.DictionaryEntry{}, false
	}

	generic := brand
	if len(record) > 1 {
		if g := strings.TrimSpace(record[1]); g != "" {
			generic = g
		}
	}

	return models.DictionaryEntry{BrandName: brand, GenericName: generic}, true
}
