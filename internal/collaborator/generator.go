package collaborator

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"

	"github.com/Kerhoff/DailyCast/internal/models"
)

// Generator calls the content generation API
type Generator struct {
	http   *resty.Client
	logger *logrus.Logger
}

// NewGenerator creates a new content generator client
func NewGenerator(cfg ClientConfig, logger *logrus.Logger) *Generator {
	return &Generator{
		http:   newRestyClient(cfg),
		logger: logger,
	}
}

// Generate requests the message and narration scripts for one cell.
func (g *Generator) Generate(ctx context.Context, req models.GenerationRequest) (*models.GeneratedContent, error) {
	var out models.GeneratedContent
	var failure errorBody

	resp, err := g.http.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&out).
		SetError(&failure).
		Post("/v1/generate")
	if err != nil {
		return nil, &models.UpstreamError{Code: models.CodeGenerationFailed, Err: err}
	}
	if resp.IsError() {
		g.logger.WithFields(logrus.Fields{
			"status":      resp.StatusCode(),
			"user_level":  req.UserLevel,
			"child_level": req.ChildLevel,
		}).Warn("Generator returned an error")
		return nil, &models.UpstreamError{
			Code: models.CodeGenerationFailed,
			Err:  fmt.Errorf("status %d: %s", resp.StatusCode(), failure.Error),
		}
	}
	if strings.TrimSpace(out.MessageText) == "" {
		return nil, &models.UpstreamError{
			Code: models.CodeGenerationFailed,
			Err:  fmt.Errorf("generator returned an empty message"),
		}
	}

	return &out, nil
}
