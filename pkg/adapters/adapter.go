// Package adapters defines the contract between the ingestion engine and the
// per-channel marketplace clients.
package adapters

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Ramsey-B/thistle/pkg/models"
)

type FetchStatus string

const (
	StatusOK          FetchStatus = "ok"
	StatusRateLimited FetchStatus = "rate_limited"
	StatusError       FetchStatus = "error"
)

// FetchRequest asks for the next batch after Cursor. A nil cursor means a full backfill.
type FetchRequest struct {
	Key    models.SyncKey
	Cursor *string
	Limit  int
}

// FetchResult is one ordered batch. Records are in source order.
type FetchResult struct {
	Records    []RawRecord
	NextCursor *string
	HasMore    bool
	Status     FetchStatus
	// RetryAfter is set by the source on rate limiting.
	RetryAfter time.Duration
}

// Adapter fetches normalized deltas for one marketplace channel. Failures are
// returned as *SourceError.
type Adapter interface {
	Fetch(ctx context.Context, req FetchRequest) (*FetchResult, error)
}

// AdapterFunc lets a plain function act as an Adapter.
type AdapterFunc func(ctx context.Context, req FetchRequest) (*FetchResult, error)

func (f AdapterFunc) Fetch(ctx context.Context, req FetchRequest) (*FetchResult, error) {
	return f(ctx, req)
}

// RawMessage is one chat message as delivered by the source.
type RawMessage struct {
	ExternalID string            `json:"external_id" validate:"required,max=255"`
	Author     models.AuthorRole `json:"author"`
	Text       string            `json:"text"`
	SentAt     time.Time         `json:"sent_at" validate:"required"`
}

// RawRecord is a source item before normalization.
type RawRecord struct {
	ExternalID string `json:"external_id" validate:"required,max=255"`
	// Position is the cursor value just after this record, when the source has one.
	Position string `json:"position,omitempty"`

	CustomerID string `json:"customer_id,omitempty" validate:"max=255"`
	OrderID    string `json:"order_id,omitempty" validate:"max=255"`
	ProductID  string `json:"product_id,omitempty" validate:"max=255"`

	Subject        string   `json:"subject,omitempty" validate:"max=1024"`
	Text           string   `json:"text,omitempty"`
	Rating         *int     `json:"rating,omitempty" validate:"omitempty,min=1,max=5"`
	SentimentScore *float64 `json:"sentiment_score,omitempty" validate:"omitempty,min=-1,max=1"`

	// Answered marks reviews and questions the seller already replied to on the marketplace.
	Answered   bool   `json:"answered,omitempty"`
	AnswerText string `json:"answer_text,omitempty"`

	Messages   []RawMessage  `json:"messages,omitempty" validate:"dive"`
	Source     models.Source `json:"source,omitempty" validate:"omitempty,oneof=api fallback"`
	OccurredAt *time.Time    `json:"occurred_at,omitempty"`

	// ParseError is set when the source item could not be decoded. The
	// record keeps whatever fields were read so the batch can skip past it.
	ParseError error `json:"-"`
}

// SourceError is an adapter failure. Transient errors are retried, permanent ones are not.
type SourceError struct {
	Transient  bool
	StatusCode int
	Err        error
}

func (e *SourceError) Error() string {
	kind := "permanent"
	if e.Transient {
		kind = "transient"
	}
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s source error (status %d): %v", kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s source error: %v", kind, e.Err)
}

func (e *SourceError) Unwrap() error {
	return e.Err
}

func Transient(err error, statusCode int) *SourceError {
	return &SourceError{Transient: true, StatusCode: statusCode, Err: err}
}

func Permanent(err error, statusCode int) *SourceError {
	return &SourceError{Transient: false, StatusCode: statusCode, Err: err}
}

// IsTransient treats unclassified errors as transient.
func IsTransient(err error) bool {
	var se *SourceError
	if errors.As(err, &se) {
		return se.Transient
	}
	return err != nil
}

var ErrNoAdapter = errors.New("no adapter registered")

type registryKey struct {
	marketplace string
	channel     models.Channel
}

// Registry resolves the adapter for a marketplace channel.
type Registry struct {
	mu       sync.RWMutex
	adapters map[registryKey]Adapter
}

func NewRegistry() *Registry {
	return &Registry{adapters: make(map[registryKey]Adapter)}
}

func (r *Registry) Register(marketplace string, channel models.Channel, adapter Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[registryKey{marketplace: marketplace, channel: channel}] = adapter
}

func (r *Registry) Get(marketplace string, channel models.Channel) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	adapter, ok := r.adapters[registryKey{marketplace: marketplace, channel: channel}]
	if !ok {
		return nil, fmt.Errorf("%w for %s/%s", ErrNoAdapter, marketplace, channel)
	}
	return adapter, nil
}
