package collaborator

import (
	"context"
	"fmt"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"

	"github.com/Kerhoff/DailyCast/internal/models"
)

type synthesisResponse struct {
	FileURL string `json:"file_url"`
}

// Speech calls the text-to-speech API
type Speech struct {
	http   *resty.Client
	logger *logrus.Logger
}

// NewSpeech creates a new speech synthesis client
func NewSpeech(cfg ClientConfig, logger *logrus.Logger) *Speech {
	return &Speech{
		http:   newRestyClient(cfg),
		logger: logger,
	}
}

// Synthesize renders text with the given voice and returns the file URL.
func (s *Speech) Synthesize(ctx context.Context, req models.SynthesisRequest) (string, error) {
	var out synthesisResponse
	var failure errorBody

	resp, err := s.http.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&out).
		SetError(&failure).
		Post("/v1/synthesize")
	if err != nil {
		return "", &models.UpstreamError{Code: models.CodeAudioFailed, Err: err}
	}
	if resp.IsError() {
		s.logger.WithFields(logrus.Fields{
			"status": resp.StatusCode(),
			"role":   req.Role,
		}).Warn("Speech synthesis returned an error")
		return "", &models.UpstreamError{
			Code: models.CodeAudioFailed,
			Err:  fmt.Errorf("status %d: %s", resp.StatusCode(), failure.Error),
		}
	}
	if out.FileURL == "" {
		return "", &models.UpstreamError{Code: models.CodeAudioFailed, Err: fmt.Errorf("no file url in response")}
	}

	return out.FileURL, nil
}
