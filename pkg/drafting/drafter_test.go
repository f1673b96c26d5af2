package drafting

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/thistle/pkg/httpclient"
	"github.com/Ramsey-B/thistle/pkg/models"
)

func newDrafter(t *testing.T, handler http.HandlerFunc) *HTTPDrafter {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	return NewHTTPDrafter(httpclient.NewClient(httpclient.DefaultConfig(), logger), Config{
		Enabled: true,
		URL:     server.URL + "/draft",
		APIKey:  "secret",
		Model:   "reply-small",
	}, logger)
}

func review() *models.Interaction {
	return &models.Interaction{
		ID:          uuid.New(),
		SellerID:    7,
		Marketplace: "wb",
		Channel:     models.ChannelReview,
		Text:        "пришел брак",
		Rating:      models.Ptr(1),
	}
}

func TestHTTPDrafter_Draft(t *testing.T) {
	var got draftRequest
	var auth string
	drafter := newDrafter(t, func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"text": "  Приносим извинения, оформим возврат.  "}`))
	})

	text, err := drafter.Draft(context.Background(), Request{Interaction: review()})
	require.NoError(t, err)

	assert.Equal(t, "Приносим извинения, оформим возврат.", text)
	assert.Equal(t, "Bearer secret", auth)
	assert.Equal(t, "reply-small", got.Model)
	assert.Equal(t, int64(7), got.SellerID)
	assert.Equal(t, models.ChannelReview, got.Channel)
	require.NotNil(t, got.Rating)
	assert.Equal(t, 1, *got.Rating)
}

func TestHTTPDrafter_Failures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"server error", http.StatusInternalServerError, `{}`},
		{"empty draft", http.StatusOK, `{"text": "   "}`},
		{"bad json", http.StatusOK, `nope`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			drafter := newDrafter(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})
			_, err := drafter.Draft(context.Background(), Request{Interaction: review()})
			assert.Error(t, err)
		})
	}
}
