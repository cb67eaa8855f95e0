package entity

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	documentai "cloud.google.com/go/documentai/apiv1"
	"cloud.google.com/go/documentai/apiv1/documentaipb"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"

	"medscan/internal/logger"
)

// DocumentAIConfig holds configuration for the Document AI entity extractor.
type DocumentAIConfig struct {
	// ProjectID is the Google Cloud project where Document AI is enabled.
	ProjectID string

	// Location is the processing location (e.g. "us", "eu").
	Location string

	// ProcessorID is the Document AI processor to use.
	ProcessorID string

	// Timeout bounds one processing call. Default: 60 seconds.
	Timeout time.Duration
}

// DocumentAIExtractor tags entities directly on the package image. It
// supplements the text-based extractor when a processor is configured.
type DocumentAIExtractor struct {
	client *documentai.DocumentProcessorClient
	config DocumentAIConfig
	log    zerolog.Logger
}

// NewDocumentAIExtractor creates the extractor; config must name a project
// and processor.
func NewDocumentAIExtractor(ctx context.Context, config DocumentAIConfig) (*DocumentAIExtractor, error) {
	const op = "NewDocumentAIExtractor"

	if config.ProjectID == "" || config.ProcessorID == "" {
		return nil, fmt.Errorf("entity: %s: project and processor are required", op)
	}
	if config.Location == "" {
		config.Location = "us"
	}
	if config.Timeout == 0 {
		config.Timeout = 60 * time.Second
	}

	var clientOptions []option.ClientOption
	if config.Location != "us" {
		endpoint := fmt.Sprintf("%s-documentai.googleapis.com:443", config.Location)
		clientOptions = append(clientOptions, option.WithEndpoint(endpoint))
	}
	if credJSON := os.Getenv("GOOGLE_CREDENTIALS"); credJSON != "" {
		clientOptions = append(clientOptions, option.WithCredentialsJSON([]byte(credJSON)))
	} else if credFile := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"); credFile != "" {
		clientOptions = append(clientOptions, option.WithCredentialsFile(credFile))
	}

	client, err := documentai.NewDocumentProcessorClient(ctx, clientOptions...)
	if err != nil {
		return nil, fmt.Errorf("entity: %s: create client: %w", op, err)
	}

	return &DocumentAIExtractor{
		client: client,
		config: config,
		log:    logger.WithComponent("entity-documentai"),
	}, nil
}

// ExtractFromImage processes the raw image and returns its tagged entities.
func (e *DocumentAIExtractor) ExtractFromImage(ctx context.Context, image []byte, mimeType string) ([]Entity, error) {
	const op = "ExtractFromImage"

	processCtx, cancel := context.WithTimeout(ctx, e.config.Timeout)
	defer cancel()

	req := &documentaipb.ProcessRequest{
		Name: fmt.Sprintf("projects/%s/locations/%s/processors/%s",
			e.config.ProjectID, e.config.Location, e.config.ProcessorID),
		Source: &documentaipb.ProcessRequest_RawDocument{
			RawDocument: &documentaipb.RawDocument{
				Content:  image,
				MimeType: mimeType,
			},
		},
	}

	resp, err := e.client.ProcessDocument(processCtx, req)
	if err != nil {
		return nil, fmt.Errorf("entity: %s: %w", op, err)
	}
	if resp.Document == nil {
		return nil, fmt.Errorf("entity: %s: no document in response", op)
	}

	var entities []Entity
	for _, docEntity := range resp.Document.Entities {
		text := strings.TrimSpace(docEntity.MentionText)
		if text == "" {
			continue
		}
		entities = append(entities, Entity{Text: text, Type: docEntity.Type})
	}

	e.log.Debug().Int("entities", len(entities)).Msg("Document AI entity extraction completed")
	return entities, nil
}

// Close closes the underlying Document AI client.
func (e *DocumentAIExtractor) Close() error {
	if e.client != nil {
		return e.client.Close()
	}
	return nil
}
