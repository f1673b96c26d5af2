package httpfeed

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/thistle/pkg/adapters"
	"github.com/Ramsey-B/thistle/pkg/expressions"
	"github.com/Ramsey-B/thistle/pkg/httpclient"
	"github.com/Ramsey-B/thistle/pkg/models"
)

func newFeed(t *testing.T, handler http.HandlerFunc) *Feed {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	feed, err := New(httpclient.NewClient(httpclient.DefaultConfig(), logger), expressions.NewEvaluator(), Config{
		URL:     server.URL + "/chats",
		Authors: map[string]models.AuthorRole{"buyer": models.AuthorCustomer},
	}, logger)
	require.NoError(t, err)
	return feed
}

var chatKey = models.SyncKey{SellerID: 7, Marketplace: "wb", Channel: models.ChannelChat}

func TestFeed_Fetch(t *testing.T) {
	var gotQuery string
	feed := newFeed(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"items": [
				{"id": 301, "position": "301", "customer_id": "c-1", "order_id": "o-9", "text": "где заказ?",
				 "created_at": "2024-05-01T10:00:00Z",
				 "messages": [
					{"id": "m1", "author": "buyer", "text": "где заказ?", "sent_at": "2024-05-01T10:00:00Z"},
					{"id": "m2", "author": "seller", "text": "в пути", "sent_at": "2024-05-01T10:05:00Z"}
				 ]}
			],
			"next_cursor": "301",
			"has_more": true
		}`))
	})

	result, err := feed.Fetch(context.Background(), adapters.FetchRequest{Key: chatKey, Cursor: models.Ptr("205"), Limit: 50})
	require.NoError(t, err)

	assert.Contains(t, gotQuery, "cursor=205")
	assert.Contains(t, gotQuery, "limit=50")
	assert.Contains(t, gotQuery, "seller_id=7")

	assert.Equal(t, adapters.StatusOK, result.Status)
	assert.True(t, result.HasMore)
	require.NotNil(t, result.NextCursor)
	assert.Equal(t, "301", *result.NextCursor)

	require.Len(t, result.Records, 1)
	rec := result.Records[0]
	assert.Equal(t, "301", rec.ExternalID)
	assert.Equal(t, "c-1", rec.CustomerID)
	assert.Equal(t, "o-9", rec.OrderID)
	assert.Equal(t, models.SourceAPI, rec.Source)
	require.NotNil(t, rec.OccurredAt)
	assert.True(t, rec.OccurredAt.Equal(time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)))
	require.Len(t, rec.Messages, 2)
	assert.Equal(t, models.AuthorCustomer, rec.Messages[0].Author)
	assert.Equal(t, models.AuthorSeller, rec.Messages[1].Author)
}

func TestFeed_StatusMapping(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		transient bool
	}{
		{"server error", http.StatusBadGateway, "", true},
		{"unauthorized", http.StatusUnauthorized, "", false},
		{"forbidden", http.StatusForbidden, "", false},
		{"bad request", http.StatusBadRequest, "", false},
		{"malformed payload", http.StatusOK, "{not json", false},
		{"items not an array", http.StatusOK, `{"items": {"id": 1}}`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			feed := newFeed(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			_, err := feed.Fetch(context.Background(), adapters.FetchRequest{Key: chatKey})
			require.Error(t, err)

			var se *adapters.SourceError
			require.True(t, errors.As(err, &se))
			assert.Equal(t, tt.transient, se.Transient)
		})
	}
}

func TestFeed_RateLimited(t *testing.T) {
	feed := newFeed(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusTooManyRequests)
	})

	result, err := feed.Fetch(context.Background(), adapters.FetchRequest{Key: chatKey})
	require.NoError(t, err)
	assert.Equal(t, adapters.StatusRateLimited, result.Status)
	assert.Equal(t, 30*time.Second, result.RetryAfter)
	assert.Empty(t, result.Records)
}

func TestFeed_ReviewAnswered(t *testing.T) {
	feed := newFeed(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"items": [
			{"id": "r1", "rating": 2, "text": "брак", "answer": {"text": "заменим"}},
			{"id": "r2", "rating": 5, "answer": null}
		]}`))
	})

	result, err := feed.Fetch(context.Background(), adapters.FetchRequest{Key: models.SyncKey{SellerID: 7, Marketplace: "wb", Channel: models.ChannelReview}})
	require.NoError(t, err)
	require.Len(t, result.Records, 2)

	assert.True(t, result.Records[0].Answered)
	assert.Equal(t, "заменим", result.Records[0].AnswerText)
	require.NotNil(t, result.Records[0].Rating)
	assert.Equal(t, 2, *result.Records[0].Rating)
	assert.False(t, result.Records[1].Answered)
	assert.Nil(t, result.NextCursor)
	assert.False(t, result.HasMore)
}

func TestFeed_BadItemDoesNotFailBatch(t *testing.T) {
	feed := newFeed(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{
			"items": [
				{"id": 1, "position": "1", "text": "ok", "created_at": "2024-05-01T10:00:00Z"},
				{"id": 2, "position": "2", "text": "broken", "created_at": "not-a-date"},
				{"id": 3, "position": "3", "rating": "five"}
			],
			"has_more": false
		}`))
	})

	result, err := feed.Fetch(context.Background(), adapters.FetchRequest{Key: chatKey})
	require.NoError(t, err)
	require.Len(t, result.Records, 3)

	assert.NoError(t, result.Records[0].ParseError)
	assert.Equal(t, "1", result.Records[0].ExternalID)

	bad := result.Records[1]
	require.Error(t, bad.ParseError)
	assert.Contains(t, bad.ParseError.Error(), "malformed item")
	assert.Equal(t, "2", bad.ExternalID)
	assert.Equal(t, "2", bad.Position)

	assert.Error(t, result.Records[2].ParseError)
	assert.Equal(t, "3", result.Records[2].Position)
}
