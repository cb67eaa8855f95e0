package classifier

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	ort "github.com/yalue/onnxruntime_go"

	"medscan/internal/logger"
)

// ErrModelNotConfigured is returned when no model path is set; the pipeline
// then runs without classifier matching.
var ErrModelNotConfigured = errors.New("classifier model not configured")

var initOnce sync.Once

// initRuntime initializes the shared ONNX Runtime environment once per
// process.
func initRuntime(libraryPath string) error {
	var err error
	initOnce.Do(func() {
		if libraryPath != "" {
			ort.SetSharedLibraryPath(libraryPath)
		}
		err = ort.InitializeEnvironment()
	})
	return err
}

// OnnxScorer runs the medication classifier model through ONNX Runtime.
type OnnxScorer struct {
	mu      sync.Mutex
	session *ort.DynamicAdvancedSession
	log     zerolog.Logger
}

// NewOnnxScorer loads the model at modelPath. libraryPath optionally points
// at the onnxruntime shared library.
func NewOnnxScorer(modelPath, libraryPath string) (*OnnxScorer, error) {
	const op = "NewOnnxScorer"

	if modelPath == "" {
		return nil, ErrModelNotConfigured
	}
	if err := initRuntime(libraryPath); err != nil {
		return nil, fmt.Errorf("classifier: %s: initialize runtime: %w", op, err)
	}

	session, err := ort.NewDynamicAdvancedSession(modelPath,
		[]string{"input"}, []string{"scores"}, nil)
	if err != nil {
		return nil, fmt.Errorf("classifier: %s: load model: %w", op, err)
	}

	return &OnnxScorer{
		session: session,
		log:     logger.WithComponent("classifier-onnx"),
	}, nil
}

// Run scores one encoded chunk, returning one score per known class.
func (s *OnnxScorer) Run(_ context.Context, input []float32) ([]float32, error) {
	const op = "Run"

	if len(input) == 0 {
		return nil, fmt.Errorf("classifier: %s: empty input vector", op)
	}

	inputTensor, err := ort.NewTensor(ort.NewShape(1, int64(len(input))), input)
	if err != nil {
		return nil, fmt.Errorf("classifier: %s: create input tensor: %w", op, err)
	}
	defer inputTensor.Destroy()

	// Sessions are not safe for concurrent Run calls.
	s.mu.Lock()
	defer s.mu.Unlock()

	outputs := []ort.Value{nil}
	if err := s.session.Run([]ort.Value{inputTensor}, outputs); err != nil {
		return nil, fmt.Errorf("classifier: %s: inference failed: %w", op, err)
	}

	outputTensor, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("classifier: %s: unexpected output tensor type", op)
	}
	defer outputTensor.Destroy()

	scores := make([]float32, len(outputTensor.GetData()))
	copy(scores, outputTensor.GetData())
	return scores, nil
}

// Close releases the model session.
func (s *OnnxScorer) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session != nil {
		err := s.session.Destroy()
		s.session = nil
		return err
	}
	return nil
}
