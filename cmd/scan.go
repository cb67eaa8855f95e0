package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"medscan/internal/classifier"
	"medscan/internal/config"
	"medscan/internal/dictionary"
	"medscan/internal/entity"
	"medscan/internal/identify"
	"medscan/internal/kvstore"
	"medscan/internal/logger"
	"medscan/internal/ocr"
	"medscan/internal/speech"
	"medscan/internal/store"
	"medscan/pkg/models"
)

var scanCmd = &cobra.Command{
	Use:   "scan [image-file]",
	Short: "Identify medications from a photo of a medication package",
	Long: `Scan a photo of a medication package and identify the medications on it.

The image is processed with Google Cloud Vision OCR to extract the printed
text, which is then matched against the medication dictionary using exact
substring matching, pattern-based extraction with database similarity search,
and an optional ONNX text classifier. Overlapping detections are merged,
keeping the highest-confidence candidate per generic name.

Required environment variables:
  MONGO_URI - MongoDB connection string for the medication database
  GOOGLE_APPLICATION_CREDENTIALS - Path to service account JSON file, OR
  GOOGLE_CREDENTIALS - Inline JSON credentials string`,
	Example: `  # Identify medications on a package photo
  medscan scan box.jpg

  # Output candidates as JSON
  medscan scan box.jpg --json

  # Read the result aloud and save the scan to the database
  medscan scan box.jpg --speak --save

  # Work from the local dictionary snapshot without a database connection
  medscan scan box.jpg --offline`,
	Args: cobra.ExactArgs(1),
	RunE: runScan,
}

// ScanOutput represents the JSON output structure when --json flag is used
type ScanOutput struct {
	FileName   string                       `json:"file_name"`
	Text       string                       `json:"text,omitempty"`
	Candidates []models.MedicationCandidate `json:"candidates"`
	Confidence float32                      `json:"ocr_confidence,omitempty"`
	ScannedAt  time.Time                    `json:"scanned_at"`
}

func init() {
	rootCmd.AddCommand(scanCmd)

	scanCmd.Flags().Bool("json", false, "Output as JSON")
	scanCmd.Flags().Bool("speak", false, "Read the identified medications aloud")
	scanCmd.Flags().Bool("save", false, "Save the scan result to the database")
	scanCmd.Flags().Bool("offline", false, "Skip the database and use the local dictionary snapshot")
	scanCmd.Flags().Bool("text", false, "Include the raw OCR text in the output")
	scanCmd.Flags().Int("timeout", 120, "Processing timeout in seconds")
}

func runScan(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("scan")

	jsonOutput, _ := cmd.Flags().GetBool("json")
	speak, _ := cmd.Flags().GetBool("speak")
	save, _ := cmd.Flags().GetBool("save")
	offline, _ := cmd.Flags().GetBool("offline")
	includeText, _ := cmd.Flags().GetBool("text")
	timeoutSecs, _ := cmd.Flags().GetInt("timeout")

	imagePath := args[0]

	log.Info().
		Str("file", imagePath).
		Bool("json", jsonOutput).
		Bool("offline", offline).
		Int("timeout", timeoutSecs).
		Msg("Starting medication scan")

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if _, err := validateImageFile(imagePath, log); err != nil {
		return err
	}

	ctx, cancel := createContextWithTimeout(timeoutSecs, log)
	defer cancel()

	imageBytes, err := os.ReadFile(imagePath)
	if err != nil {
		log.Error().
			Err(err).
			Str("file", imagePath).
			Msg("Failed to read image file")
		return fmt.Errorf("failed to read image file: %w", err)
	}

	// OCR
	visionService, err := createVisionService(ctx, log)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := visionService.Close(); closeErr != nil {
			log.Warn().Err(closeErr).Msg("Failed to close Vision client")
		}
	}()

	result, err := visionService.RecognizeImage(ctx, bytes.NewReader(imageBytes))
	if err != nil {
		return handleScanError(err, log)
	}

	log.Info().
		Float32("confidence", result.Confidence).
		Int("text_length", len(result.Text)).
		Dur("duration", result.ProcessingDuration).
		Msg("OCR completed")

	// Database connection is optional: without it the scan falls back to
	// the persisted dictionary snapshot.
	var medStore *store.MongoStore
	connected := false
	if !offline {
		medStore, err = store.NewMongoStore(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			log.Warn().
				Err(err).
				Msg("Database unavailable, continuing with local snapshot")
		} else {
			connected = true
			defer func() {
				if closeErr := medStore.Close(ctx); closeErr != nil {
					log.Warn().Err(closeErr).Msg("Failed to close database connection")
				}
			}()
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
	if len(dict) == 0 {
		log.Warn().Msg("Medication dictionary is empty, detection quality will be limited")
	}

	input, cleanup := buildPipelineInput(ctx, cfg, dict, imageBytes, result.Text, medStore, connected, log)
	defer cleanup()

	pipeline := identify.NewPipeline()
	candidates, err := pipeline.Identify(ctx, result.Text, input)
	if err != nil {
		return handleScanError(err, log)
	}

	if save {
		saveScanRecord(ctx, medStore, connected, imagePath, result.Text, candidates, log)
	}

	if err := outputCandidates(result, candidates, imagePath, jsonOutput, includeText); err != nil {
		return err
	}

	if speak {
		speakCandidates(ctx, cfg, candidates, log)
	}

	return nil
}

// validateImageFile checks if the file exists, is readable, and fits the OCR size limit
func validateImageFile(imagePath string, log zerolog.Logger) (os.FileInfo, error) {
	fileInfo, err := os.Stat(imagePath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Error().
				Str("file", imagePath).
				Msg("Image file not found")
			return nil, fmt.Errorf("image file not found: %s", imagePath)
		}
		if os.IsPermission(err) {
			log.Error().
				Str("file", imagePath).
				Msg("Permission denied accessing image file")
			return nil, fmt.Errorf("permission denied accessing image file: %s", imagePath)
		}
		return nil, fmt.Errorf("error accessing image file: %w", err)
	}

	if !fileInfo.Mode().IsRegular() {
		log.Error().
			Str("file", imagePath).
			Msg("Path is not a regular file")
		return nil, fmt.Errorf("path is not a regular file: %s", imagePath)
	}

	if fileInfo.Size() == 0 {
		log.Error().
			Str("file", imagePath).
			Msg("Image file is empty")
		return nil, fmt.Errorf("image file is empty: %s", imagePath)
	}

	if fileInfo.Size() > ocr.MaxFileSizeBytes {
		log.Error().
			Str("file", imagePath).
			Int64("size", fileInfo.Size()).
			Int64("max_size", ocr.MaxFileSizeBytes).
			Msg("Image file exceeds maximum size limit")
		return nil, fmt.Errorf("image file too large (%d bytes). Maximum size is %d bytes (20MB)",
			fileInfo.Size(), ocr.MaxFileSizeBytes)
	}

	return fileInfo, nil
}

// createContextWithTimeout creates a context with timeout and signal handling
func createContextWithTimeout(timeoutSecs int, log zerolog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(timeoutSecs)*time.Second)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigChan:
			log.Info().
				Str("signal", sig.String()).
				Msg("Received interrupt signal, canceling")
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}

// createVisionService creates and configures the Vision OCR service
func createVisionService(ctx context.Context, log zerolog.Logger) (*ocr.GoogleVisionService, error) {
	visionService, err := ocr.NewGoogleVisionService(ctx)
	if err != nil {
		if errors.Is(err, ocr.ErrMissingCredentials) {
			log.Error().
				Err(err).
				Msg("Google Cloud credentials validation failed")
			return nil, fmt.Errorf("Google Cloud credentials not configured. Please set one of:\n\n"+
				"1. Export GOOGLE_APPLICATION_CREDENTIALS with path to service account JSON:\n"+
				"   export GOOGLE_APPLICATION_CREDENTIALS=/path/to/service-account-key.json\n\n"+
				"2. Export GOOGLE_CREDENTIALS with inline JSON\n\n"+
				"3. Use Application Default Credentials (if gcloud is configured):\n"+
				"   gcloud auth application-default login\n\n"+
				"Original error: %w", err)
		}
		log.Error().
			Err(err).
			Msg("Failed to create Vision service")
		return nil, fmt.Errorf("failed to create Vision service: %w", err)
	}

	log.Debug().Msg("Vision service created successfully")
	return visionService, nil
}

// openDictionaryCache wires the dictionary cache to the database and the
// local snapshot store. Either side may be unavailable.
func openDictionaryCache(cfg *config.Config, medStore *store.MongoStore, log zerolog.Logger) (*dictionary.Cache, *kvstore.Store) {
	var source dictionary.RemoteSource
	if medStore != nil {
		source = medStore
	}

	var snapshots dictionary.SnapshotStore
	kv, err := kvstore.Open(cfg.SnapshotPath)
	if err != nil {
		log.Warn().
			Err(err).
			Str("path", cfg.SnapshotPath).
			Msg("Failed to open snapshot store, dictionary will not be persisted")
		kv = nil
	} else {
		snapshots = kv
	}

	cache := dictionary.New(source, snapshots,
		dictionary.WithWindows(cfg.CacheFreshFor, cfg.CacheRetainFor))
	return cache, kv
}

// buildPipelineInput assembles the detector collaborators. Every collaborator
// is optional: a missing one disables its detector rather than failing the scan.
// The returned cleanup func releases the classifier session.
func buildPipelineInput(ctx context.Context, cfg *config.Config, dict map[string]string, imageBytes []byte, text string, medStore *store.MongoStore, connected bool, log zerolog.Logger) (identify.Input, func()) {
	input := identify.Input{
		Dictionary: dict,
		Threshold:  cfg.ClassifierThreshold,
	}
	cleanup := func() {}

	if connected {
		input.Lookup = medStore.SearchSimilar
	}

	input.Entities = extractEntities(ctx, cfg, imageBytes, text, log)

	scorer, err := classifier.NewOnnxScorer(cfg.ClassifierModelPath, cfg.OnnxRuntimeLibrary)
	if err != nil {
		if errors.Is(err, classifier.ErrModelNotConfigured) {
			log.Debug().Msg("No classifier model configured, skipping classifier detection")
		} else {
			log.Warn().
				Err(err).
				Str("model", cfg.ClassifierModelPath).
				Msg("Failed to load classifier model, skipping classifier detection")
		}
	} else {
		input.Scorer = scorer
		input.ClassMap = loadClassMap(cfg, dict, log)
		cleanup = func() {
			if closeErr := scorer.Close(); closeErr != nil {
				log.Warn().Err(closeErr).Msg("Failed to close classifier session")
			}
		}
	}

	return input, cleanup
}

// extractEntities collects medication-related spans from the configured
// entity extractors. Extraction failures degrade to fewer spans.
func extractEntities(ctx context.Context, cfg *config.Config, imageBytes []byte, text string, log zerolog.Logger) []string {
	var spans []string

	if cfg.OpenAIAPIKey != "" {
		extractor, err := entity.NewOpenAIExtractor(cfg.OpenAIAPIKey)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to create entity extractor")
		} else {
			entities, err := extractor.ExtractEntities(ctx, text)
			if err != nil {
				log.Warn().Err(err).Msg("Entity extraction failed, continuing without entities")
			} else {
				spans = append(spans, entity.Spans(entities)...)
			}
		}
	}

	if cfg.DocumentAIProcessorID != "" {
		docExtractor, err := entity.NewDocumentAIExtractor(ctx, entity.DocumentAIConfig{
			ProjectID:   cfg.GoogleCloudProject,
			Location:    cfg.GoogleCloudLocation,
			ProcessorID: cfg.DocumentAIProcessorID,
		})
		if err != nil {
			log.Warn().Err(err).Msg("Failed to create Document AI extractor")
		} else {
			defer func() {
				if closeErr := docExtractor.Close(); closeErr != nil {
					log.Warn().Err(closeErr).Msg("Failed to close Document AI client")
				}
			}()
			entities, err := docExtractor.ExtractFromImage(ctx, imageBytes, mimeTypeForImage(imageBytes))
			if err != nil {
				log.Warn().Err(err).Msg("Document AI extraction failed, continuing without entities")
			} else {
				spans = append(spans, entity.Spans(entities)...)
			}
		}
	}

	return spans
}

// mimeTypeForImage sniffs the image format from its magic bytes.
func mimeTypeForImage(data []byte) string {
	switch {
	case bytes.HasPrefix(data, []byte("\x89PNG")):
		return "image/png"
	case bytes.HasPrefix(data, []byte("GIF8")):
		return "image/gif"
	case bytes.HasPrefix(data, []byte("BM")):
		return "image/bmp"
	default:
		return "image/jpeg"
	}
}

// loadClassMap resolves the classifier class map, preferring an explicit
// class map file over one derived from the dictionary.
func loadClassMap(cfg *config.Config, dict map[string]string, log zerolog.Logger) map[int]models.DictionaryEntry {
	if cfg.ClassifierClassMap != "" {
		classMap, err := classifier.LoadClassMap(cfg.ClassifierClassMap)
		if err != nil {
			log.Warn().
				Err(err).
				Str("path", cfg.ClassifierClassMap).
				Msg("Failed to load class map file, deriving from dictionary")
		} else {
			return classMap
		}
	}
	return classifier.ClassMapFromDictionary(dict)
}

// saveScanRecord persists the scan to the database when connected.
func saveScanRecord(ctx context.Context, medStore *store.MongoStore, connected bool, imagePath, text string, candidates []models.MedicationCandidate, log zerolog.Logger) {
	if !connected {
		log.Warn().Msg("Cannot save scan record without a database connection")
		return
	}

	record := &models.ScanRecord{
		ImagePath:  imagePath,
		RawText:    text,
		Candidates: candidates,
	}
	if err := medStore.InsertRecord(ctx, record); err != nil {
		log.Warn().Err(err).Msg("Failed to save scan record")
		return
	}

	log.Info().
		Str("record_id", record.ID).
		Msg("Scan record saved")
}

// handleScanError provides user-friendly error messages for scan failures
func handleScanError(err error, log zerolog.Logger) error {
	log.Error().Err(err).Msg("Medication scan failed")

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("scan timed out. Try increasing --timeout")
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("scan was canceled")
	case errors.Is(err, ocr.ErrNoText), errors.Is(err, identify.ErrEmptyText):
		return fmt.Errorf("no text found in the image. Try a sharper, better-lit photo of the package")
	case errors.Is(err, ocr.ErrImageTooLarge):
		return fmt.Errorf("image file is too large (maximum 20MB). Try resizing the photo")
	case errors.Is(err, ocr.ErrInvalidImage):
		return fmt.Errorf("invalid or corrupted image file. Please check the file")
	case errors.Is(err, ocr.ErrOCRFailed):
		return fmt.Errorf("OCR processing failed. This may be due to network issues, API quota limits, or service unavailability: %w", err)
	default:
		return fmt.Errorf("scan failed: %w", err)
	}
}

// outputCandidates formats and prints the identified medications.
func outputCandidates(result *ocr.Result, candidates []models.MedicationCandidate, imagePath string, jsonOutput, includeText bool) error {
	if jsonOutput {
		scanOutput := ScanOutput{
			FileName:   filepath.Base(imagePath),
			Candidates: candidates,
			Confidence: result.Confidence,
			ScannedAt:  time.Now(),
		}
		if includeText {
			scanOutput.Text = result.Text
		}
		if scanOutput.Candidates == nil {
			scanOutput.Candidates = []models.MedicationCandidate{}
		}

		outputData, err := json.MarshalIndent(scanOutput, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to create JSON output: %w", err)
		}
		fmt.Println(string(outputData))
		return nil
	}

	if includeText {
		fmt.Println("=== Extracted Text ===")
		fmt.Println(result.Text)
		fmt.Println()
	}

	if len(candidates) == 0 {
		fmt.Println("No medications recognized.")
		return nil
	}

	fmt.Printf("Identified %d medication(s):\n\n", len(candidates))
	for i, c := range candidates {
		fmt.Printf("%d. %s (%s) - %.1f%% [%s]\n",
			i+1, c.BrandName, c.GenericName, c.Confidence*100, c.Source)
	}
	return nil
}

// speakCandidates reads the result aloud via text-to-speech.
func speakCandidates(ctx context.Context, cfg *config.Config, candidates []models.MedicationCandidate, log zerolog.Logger) {
	if cfg.OpenAIAPIKey == "" {
		log.Warn().Msg("OPENAI_API_KEY not set, cannot speak result")
		return
	}

	synth, err := speech.NewOpenAISpeech(cfg.OpenAIAPIKey)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to create speech service")
		return
	}

	if err := synth.Speak(ctx, summarizeCandidates(candidates)); err != nil {
		log.Warn().Err(err).Msg("Failed to speak result")
	}
}

// summarizeCandidates builds the spoken summary of a scan.
func summarizeCandidates(candidates []models.MedicationCandidate) string {
	if len(candidates) == 0 {
		return "No medications were recognized on the package."
	}
	if len(candidates) == 1 {
		c := candidates[0]
		return fmt.Sprintf("The medication is %s, generic name %s.", c.BrandName, c.GenericName)
	}

	names := make([]string, 0, len(candidates))
	for _, c := range candidates {
		names = append(names, fmt.Sprintf("%s, generic name %s", c.BrandName, c.GenericName))
	}
	return fmt.Sprintf("%d medications were recognized: %s.", len(candidates), strings.Join(names, "; "))
}
