package speech

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"

	"medscan/internal/logger"
)

// defaultPlayer is the command used to play synthesized audio; override with
// AUDIO_PLAYER.
const defaultPlayer = "mpg123"

// OpenAISpeech implements Synthesizer and Transcriber with the OpenAI audio
// endpoints (TTS and Whisper).
type OpenAISpeech struct {
	client *openai.Client
	player string
	log    zerolog.Logger
}

// NewOpenAISpeech creates the speech service using the given API key.
func NewOpenAISpeech(apiKey string) (*OpenAISpeech, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("speech: OPENAI_API_KEY is required")
	}

	player := os.Getenv("AUDIO_PLAYER")
	if player == "" {
		player = defaultPlayer
	}

	return &OpenAISpeech{
		client: openai.NewClient(apiKey),
		player: player,
		log:    logger.WithComponent("speech"),
	}, nil
}

// Speak synthesizes text and plays it through the configured audio player.
func (s *OpenAISpeech) Speak(ctx context.Context, text string) error {
	const op = "Speak"

	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	resp, err := s.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model: openai.TTSModel1,
		Voice: openai.VoiceAlloy,
		Input: text,
	})
	if err != nil {
		return fmt.Errorf("speech: %s: synthesis failed: %w", op, err)
	}
	defer resp.Close()

	audioFile, err := os.CreateTemp("", "medscan-speech-*.mp3")
	if err != nil {
		return fmt.Errorf("speech: %s: create temp file: %w", op, err)
	}
	defer os.Remove(audioFile.Name())

	if _, err := io.Copy(audioFile, resp); err != nil {
		audioFile.Close()
		return fmt.Errorf("speech: %s: write audio: %w", op, err)
	}
	if err := audioFile.Close(); err != nil {
		return fmt.Errorf("speech: %s: close audio file: %w", op, err)
	}

	s.log.Debug().
		Str("player", s.player).
		Int("text_length", len(text)).
		Msg("Playing synthesized speech")

	if err := exec.CommandContext(ctx, s.player, audioFile.Name()).Run(); err != nil {
		return fmt.Errorf("speech: %s: playback with %q failed: %w", op, s.player, err)
	}
	return nil
}

// Transcribe converts a recorded voice query to text with Whisper.
func (s *OpenAISpeech) Transcribe(ctx context.Context, audioPath string) (string, error) {
	const op = "Transcribe"

	resp, err := s.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    openai.Whisper1,
		FilePath: audioPath,
	})
	if err != nil {
		return "", fmt.Errorf("speech: %s: transcription failed: %w", op, err)
	}

	text := strings.TrimSpace(resp.Text)
	s.log.Debug().
		Str("audio", audioPath).
		Int("text_length", len(text)).
		Msg("Voice query transcribed")
	return text, nil
}
