package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"medscan/internal/config"
	"medscan/internal/identify"
	"medscan/internal/logger"
	"medscan/internal/speech"
	"medscan/internal/store"
	"medscan/pkg/models"
)

var lookupCmd = &cobra.Command{
	Use:   "lookup [medication-name]",
	Short: "Look up a medication by brand or generic name",
	Long: `Look up a medication in the dictionary and print its details.

The name is matched against brand and generic names in the database, falling
back to the cached dictionary when the database is unavailable. With --audio
the query is transcribed from a recorded voice clip instead of the argument.`,
	Example: `  # Look up by brand name
  medscan lookup tylenol

  # Look up by generic name, output as JSON
  medscan lookup acetaminophen --json

  # Ask by voice and hear the answer
  medscan lookup --audio question.mp3 --speak`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLookup,
}

// LookupOutput represents the JSON output structure when --json flag is used
type LookupOutput struct {
	Query   string                    `json:"query"`
	Entry   *models.DictionaryEntry   `json:"entry"`
	Details *models.MedicationDetails `json:"details,omitempty"`
}

func init() {
	rootCmd.AddCommand(lookupCmd)

	lookupCmd.Flags().String("audio", "", "Audio file with the spoken medication name")
	lookupCmd.Flags().Bool("json", false, "Output as JSON")
	lookupCmd.Flags().Bool("speak", false, "Read the medication details aloud")
	lookupCmd.Flags().Int("timeout", 60, "Processing timeout in seconds")
}

func runLookup(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("lookup")

	audioPath, _ := cmd.Flags().GetString("audio")
	jsonOutput, _ := cmd.Flags().GetBool("json")
	speak, _ := cmd.Flags().GetBool("speak")
	timeoutSecs, _ := cmd.Flags().GetInt("timeout")

	if len(args) == 0 && audioPath == "" {
		return fmt.Errorf("provide a medication name or --audio with a voice recording")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	ctx, cancel := createContextWithTimeout(timeoutSecs, log)
	defer cancel()

	query, err := resolveQuery(ctx, cfg, args, audioPath, log)
	if err != nil {
		return err
	}

	log.Info().
		Str("query", query).
		Msg("Looking up medication")

	var medStore *store.MongoStore
	connected := false
	medStore, err = store.NewMongoStore(ctx, cfg.MongoURI, cfg.MongoDatabase)
	if err != nil {
		log.Warn().
			Err(err).
			Msg("Database unavailable, falling back to local snapshot")
	} else {
		connected = true
		defer func() {
			if closeErr := medStore.Close(ctx); closeErr != nil {
				log.Warn().Err(closeErr).Msg("Failed to close database connection")
			}
		}()
	}

	entry, err := findEntry(ctx, cfg, medStore, connected, query, log)
	if err != nil {
		return err
	}
	if entry == nil {
		return fmt.Errorf("no medication found matching %q", query)
	}

	var details *models.MedicationDetails
	if connected {
		details, err = medStore.FetchDetails(ctx, entry.GenericName)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to fetch medication details")
		}
	}
	if details == nil {
		details = &models.MedicationDetails{GenericName: entry.GenericName}
	}
	details.Normalize()

	if err := outputLookup(query, entry, details, jsonOutput); err != nil {
		return err
	}

	if speak {
		speakDetails(ctx, cfg, entry, details, log)
	}

	return nil
}

// resolveQuery returns the lookup query, transcribing the audio clip when given.
func resolveQuery(ctx context.Context, cfg *config.Config, args []string, audioPath string, log zerolog.Logger) (string, error) {
	if audioPath == "" {
		return strings.TrimSpace(args[0]), nil
	}

	if cfg.OpenAIAPIKey == "" {
		return "", fmt.Errorf("OPENAI_API_KEY is required for voice lookup")
	}

	transcriber, err := speech.NewOpenAISpeech(cfg.OpenAIAPIKey)
	if err != nil {
		return "", fmt.Errorf("failed to create speech service: %w", err)
	}

	query, err := transcriber.Transcribe(ctx, audioPath)
	if err != nil {
		log.Error().
			Err(err).
			Str("file", audioPath).
			Msg("Transcription failed")
		return "", fmt.Errorf("failed to transcribe audio: %w", err)
	}

	query = strings.TrimSpace(query)
	if query == "" {
		return "", fmt.Errorf("no speech recognized in %s", audioPath)
	}

	log.Info().
		Str("file", audioPath).
		Str("transcript", query).
		Msg("Transcribed voice query")
	return query, nil
}

// findEntry resolves the query against the database, or against the cached
// dictionary when no database connection is available.
func findEntry(ctx context.Context, cfg *config.Config, medStore *store.MongoStore, connected bool, query string, log zerolog.Logger) (*models.DictionaryEntry, error) {
	if connected {
		entry, err := medStore.SearchByName(ctx, query)
		if err != nil {
			log.Warn().Err(err).Msg("Database search failed, falling back to local snapshot")
		} else if entry != nil {
			return entry, nil
		}
	}

	cache, kv := openDictionaryCache(cfg, medStore, log)
	if kv != nil {
		defer func() {
			if closeErr := kv.Close(); closeErr != nil {
				log.Warn().Err(closeErr).Msg("Failed to close snapshot store")
			}
		}()
	}

	dict := cache.Get(ctx, connected)
	normalized := identify.Normalize(query)
	if normalized == "" {
		return nil, nil
	}

	for brand, generic := range dict {
		if identify.Normalize(brand) == normalized || identify.Normalize(generic) == normalized {
			return &models.DictionaryEntry{
				BrandName:   identify.TitleCase(brand),
				GenericName: identify.TitleCase(generic),
			}, nil
		}
	}
	return nil, nil
}

// outputLookup formats and prints the lookup result.
func outputLookup(query string, entry *models.DictionaryEntry, details *models.MedicationDetails, jsonOutput bool) error {
	if jsonOutput {
		outputData, err := json.MarshalIndent(LookupOutput{
			Query:   query,
			Entry:   entry,
			Details: details,
		}, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to create JSON output: %w", err)
		}
		fmt.Println(string(outputData))
		return nil
	}

	fmt.Printf("%s (%s)\n\n", entry.BrandName, entry.GenericName)
	fmt.Printf("  Usage:        %s\n", details.Usage)
	fmt.Printf("  Dosage:       %s\n", details.Dosage)
	fmt.Printf("  Side effects: %s\n", details.SideEffects)
	fmt.Printf("  Warnings:     %s\n", details.Warnings)
	return nil
}

// speakDetails reads the medication details aloud via text-to-speech.
func speakDetails(ctx context.Context, cfg *config.Config, entry *models.DictionaryEntry, details *models.MedicationDetails, log zerolog.Logger) {
	if cfg.OpenAIAPIKey == "" {
		log.Warn().Msg("OPENAI_API_KEY not set, cannot speak result")
		return
	}

	synth, err := speech.NewOpenAISpeech(cfg.OpenAIAPIKey)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to create speech service")
		return
	}

	summary := fmt.Sprintf("%s, generic name %s.", entry.BrandName, entry.GenericName)
	if details.Usage != models.DetailsUnavailable {
		summary += " " + details.Usage
	}
	if err := synth.Speak(ctx, summary); err != nil {
		log.Warn().Err(err).Msg("Failed to speak result")
	}
}
