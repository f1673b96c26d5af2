// Package httpfeed is a generic JSON-over-HTTP channel adapter. Field
// locations in the payload are JMESPath expressions so one implementation
// serves every marketplace feed that pages by cursor.
package httpfeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/thistle/pkg/adapters"
	"github.com/Ramsey-B/thistle/pkg/expressions"
	"github.com/Ramsey-B/thistle/pkg/httpclient"
	"github.com/Ramsey-B/thistle/pkg/models"
	"github.com/Ramsey-B/thistle/pkg/ratelimit"
	"github.com/Ramsey-B/thistle/pkg/tracing"
)

// Mapping holds the JMESPath expressions locating each field. Item-level
// expressions are evaluated against a single item.
type Mapping struct {
	Items      string `json:"items"`
	NextCursor string `json:"next_cursor"`
	HasMore    string `json:"has_more"`

	ExternalID string `json:"external_id"`
	Position   string `json:"position"`
	CustomerID string `json:"customer_id"`
	OrderID    string `json:"order_id"`
	ProductID  string `json:"product_id"`
	Subject    string `json:"subject"`
	Text       string `json:"text"`
	Rating     string `json:"rating"`
	Sentiment  string `json:"sentiment"`
	Answered   string `json:"answered"`
	AnswerText string `json:"answer_text"`
	OccurredAt string `json:"occurred_at"`

	Messages      string `json:"messages"`
	MessageID     string `json:"message_id"`
	MessageAuthor string `json:"message_author"`
	MessageText   string `json:"message_text"`
	MessageSentAt string `json:"message_sent_at"`
}

func DefaultMapping() Mapping {
	return Mapping{
		Items:         "items",
		NextCursor:    "next_cursor",
		HasMore:       "has_more",
		ExternalID:    "id",
		Position:      "position",
		CustomerID:    "customer_id",
		OrderID:       "order_id",
		ProductID:     "product_id",
		Subject:       "subject",
		Text:          "text",
		Rating:        "rating",
		Sentiment:     "sentiment",
		Answered:      "answered",
		AnswerText:    "answer.text",
		OccurredAt:    "created_at",
		Messages:      "messages",
		MessageID:     "id",
		MessageAuthor: "author",
		MessageText:   "text",
		MessageSentAt: "sent_at",
	}
}

type Config struct {
	URL         string
	CursorParam string
	LimitParam  string
	Headers     map[string]string
	Mapping     Mapping
	// Authors maps source author labels to roles. Unmapped labels pass through lowercased.
	Authors map[string]models.AuthorRole
	Source  models.Source
}

type Feed struct {
	client    *httpclient.Client
	evaluator *expressions.Evaluator
	config    Config
	logger    ectologger.Logger
	now       func() time.Time
}

func New(client *httpclient.Client, evaluator *expressions.Evaluator, config Config, logger ectologger.Logger) (*Feed, error) {
	if config.URL == "" {
		return nil, errors.New("httpfeed: url is required")
	}
	if config.CursorParam == "" {
		config.CursorParam = "cursor"
	}
	if config.LimitParam == "" {
		config.LimitParam = "limit"
	}
	if config.Mapping == (Mapping{}) {
		config.Mapping = DefaultMapping()
	}
	if config.Source == "" {
		config.Source = models.SourceAPI
	}
	if config.Mapping.Items == "" || config.Mapping.ExternalID == "" {
		return nil, errors.New("httpfeed: items and external_id expressions are required")
	}
	return &Feed{client: client, evaluator: evaluator, config: config, logger: logger, now: time.Now}, nil
}

func (f *Feed) Fetch(ctx context.Context, req adapters.FetchRequest) (*adapters.FetchResult, error) {
	ctx, span := tracing.StartSpan(ctx, "Feed.Fetch")
	defer span.End()

	target, err := f.buildURL(req)
	if err != nil {
		return nil, adapters.Permanent(err, 0)
	}

	resp, err := f.client.Get(ctx, target, f.config.Headers)
	if err != nil {
		return nil, adapters.Transient(err, 0)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		result := &adapters.FetchResult{Status: adapters.StatusRateLimited}
		if header := resp.Headers.Get("Retry-After"); header != "" {
			if d, perr := ratelimit.ParseRetryAfter(header, f.now()); perr == nil {
				result.RetryAfter = d
			}
		}
		f.logger.WithContext(ctx).WithFields(map[string]any{
			"sync_key":    req.Key.String(),
			"retry_after": result.RetryAfter.String(),
		}).Warn("Source rate limited the request")
		return result, nil
	case resp.StatusCode >= 500:
		return nil, adapters.Transient(fmt.Errorf("upstream returned %d", resp.StatusCode), resp.StatusCode)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, adapters.Permanent(fmt.Errorf("authentication rejected"), resp.StatusCode)
	case !resp.IsSuccess():
		return nil, adapters.Permanent(fmt.Errorf("upstream returned %d", resp.StatusCode), resp.StatusCode)
	}

	var payload any
	if err := json.Unmarshal(resp.Body, &payload); err != nil {
		return nil, adapters.Permanent(fmt.Errorf("malformed payload: %w", err), resp.StatusCode)
	}

	return f.parse(payload)
}

func (f *Feed) buildURL(req adapters.FetchRequest) (string, error) {
	u, err := url.Parse(f.config.URL)
	if err != nil {
		return "", fmt.Errorf("invalid feed url: %w", err)
	}
	q := u.Query()
	q.Set("seller_id", strconv.FormatInt(req.Key.SellerID, 10))
	if req.Cursor != nil && *req.Cursor != "" {
		q.Set(f.config.CursorParam, *req.Cursor)
	}
	if req.Limit > 0 {
		q.Set(f.config.LimitParam, strconv.Itoa(req.Limit))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (f *Feed) parse(payload any) (*adapters.FetchResult, error) {
	m := f.config.Mapping

	items, err := f.evaluator.EvaluateSlice(m.Items, payload)
	if err != nil {
		return nil, adapters.Permanent(fmt.Errorf("malformed payload: %w", err), 0)
	}

	result := &adapters.FetchResult{Status: adapters.StatusOK, Records: make([]adapters.RawRecord, 0, len(items))}
	if m.NextCursor != "" {
		if result.NextCursor, err = f.evaluator.EvaluateOptionalString(m.NextCursor, payload); err != nil {
			return nil, adapters.Permanent(err, 0)
		}
	}
	if m.HasMore != "" {
		if result.HasMore, err = f.evaluator.EvaluateBool(m.HasMore, payload); err != nil {
			return nil, adapters.Permanent(err, 0)
		}
	}

	for _, item := range items {
		record, err := f.parseItem(item)
		if err != nil {
			record.ParseError = fmt.Errorf("malformed item: %w", err)
		}
		result.Records = append(result.Records, record)
	}
	return result, nil
}

func (f *Feed) parseItem(item any) (adapters.RawRecord, error) {
	m := f.config.Mapping
	e := f.evaluator
	record := adapters.RawRecord{Source: f.config.Source}

	// identity and position first so a bad item can still be skipped past
	id, err := e.EvaluateString(m.ExternalID, item)
	record.ExternalID = id
	if m.Position != "" {
		position, perr := e.EvaluateString(m.Position, item)
		record.Position = position
		if err == nil {
			err = perr
		}
	}
	if err != nil {
		return record, err
	}

	fields := []struct {
		expr string
		dst  *string
	}{
		{m.CustomerID, &record.CustomerID},
		{m.OrderID, &record.OrderID},
		{m.ProductID, &record.ProductID},
		{m.Subject, &record.Subject},
		{m.Text, &record.Text},
		{m.AnswerText, &record.AnswerText},
	}
	for _, s := range fields {
		if s.expr == "" {
			continue
		}
		if *s.dst, err = e.EvaluateString(s.expr, item); err != nil {
			return record, err
		}
	}

	if record.Rating, err = e.EvaluateOptionalInt(m.Rating, item); err != nil {
		return record, err
	}
	if record.SentimentScore, err = e.EvaluateOptionalFloat(m.Sentiment, item); err != nil {
		return record, err
	}
	if m.Answered != "" {
		if record.Answered, err = e.EvaluateBool(m.Answered, item); err != nil {
			return record, err
		}
	}
	if record.AnswerText != "" {
		record.Answered = true
	}
	if m.OccurredAt != "" {
		at, err := e.EvaluateTime(m.OccurredAt, item)
		if err != nil {
			return record, err
		}
		if !at.IsZero() {
			record.OccurredAt = &at
		}
	}

	if m.Messages == "" {
		return record, nil
	}
	messages, err := e.EvaluateSlice(m.Messages, item)
	if err != nil {
		return record, err
	}
	for _, raw := range messages {
		msg, err := f.parseMessage(raw)
		if err != nil {
			return record, err
		}
		record.Messages = append(record.Messages, msg)
	}
	return record, nil
}

func (f *Feed) parseMessage(raw any) (adapters.RawMessage, error) {
	m := f.config.Mapping
	e := f.evaluator
	var msg adapters.RawMessage
	var err error

	if msg.ExternalID, err = e.EvaluateString(m.MessageID, raw); err != nil {
		return msg, err
	}
	author, err := e.EvaluateString(m.MessageAuthor, raw)
	if err != nil {
		return msg, err
	}
	msg.Author = f.author(author)
	if msg.Text, err = e.EvaluateString(m.MessageText, raw); err != nil {
		return msg, err
	}
	if msg.SentAt, err = e.EvaluateTime(m.MessageSentAt, raw); err != nil {
		return msg, err
	}
	return msg, nil
}

func (f *Feed) author(label string) models.AuthorRole {
	if role, ok := f.config.Authors[label]; ok {
		return role
	}
	return models.AuthorRole(strings.ToLower(strings.TrimSpace(label)))
}
