// Package drafting asks an external text-generation service for a suggested
// reply. Drafts are advisory: a failure is recorded, never propagated into ingestion.
package drafting

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/thistle/pkg/httpclient"
	"github.com/Ramsey-B/thistle/pkg/models"
	"github.com/Ramsey-B/thistle/pkg/tracing"
)

var ErrEmptyDraft = errors.New("drafting service returned an empty draft")

type Config struct {
	Enabled bool
	URL     string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// Request carries what the drafting service needs to know about one interaction.
type Request struct {
	Interaction *models.Interaction
	Messages    []models.Message
}

type Drafter interface {
	Draft(ctx context.Context, req Request) (string, error)
}

type HTTPDrafter struct {
	client *httpclient.Client
	config Config
	logger ectologger.Logger
}

func NewHTTPDrafter(client *httpclient.Client, config Config, logger ectologger.Logger) *HTTPDrafter {
	return &HTTPDrafter{client: client, config: config, logger: logger}
}

type draftMessage struct {
	Author string `json:"author"`
	Text   string `json:"text"`
}

type draftRequest struct {
	Model       string         `json:"model,omitempty"`
	SellerID    int64          `json:"seller_id"`
	Marketplace string         `json:"marketplace"`
	Channel     models.Channel `json:"channel"`
	Subject     string         `json:"subject,omitempty"`
	Text        string         `json:"text,omitempty"`
	Rating      *int           `json:"rating,omitempty"`
	Messages    []draftMessage `json:"messages,omitempty"`
}

type draftResponse struct {
	Text string `json:"text"`
}

func (d *HTTPDrafter) Draft(ctx context.Context, req Request) (string, error) {
	ctx, span := tracing.StartSpan(ctx, "HTTPDrafter.Draft")
	defer span.End()

	if d.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.config.Timeout)
		defer cancel()
	}

	i := req.Interaction
	body := draftRequest{
		Model:       d.config.Model,
		SellerID:    i.SellerID,
		Marketplace: i.Marketplace,
		Channel:     i.Channel,
		Subject:     i.Subject,
		Text:        i.Text,
		Rating:      i.Rating,
	}
	for _, m := range req.Messages {
		body.Messages = append(body.Messages, draftMessage{Author: string(m.Author), Text: m.Text})
	}

	headers := map[string]string{}
	if d.config.APIKey != "" {
		headers["Authorization"] = "Bearer " + d.config.APIKey
	}

	resp, err := d.client.PostJSON(ctx, d.config.URL, headers, body)
	if err != nil {
		return "", err
	}
	if !resp.IsSuccess() {
		return "", fmt.Errorf("drafting service returned %d", resp.StatusCode)
	}

	var out draftResponse
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return "", fmt.Errorf("failed to decode draft: %w", err)
	}
	text := strings.TrimSpace(out.Text)
	if text == "" {
		return "", ErrEmptyDraft
	}

	d.logger.WithContext(ctx).WithField("interaction_id", i.ID).Debug("Generated reply draft")
	return text, nil
}
