package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/go-playground/validator/v10"

	"github.com/Ramsey-B/thistle/pkg/adapters/httpfeed"
	"github.com/Ramsey-B/thistle/pkg/models"
)

// Feed registers one httpfeed adapter for a marketplace channel.
type Feed struct {
	Marketplace string                       `json:"marketplace" validate:"required"`
	Channel     models.Channel               `json:"channel" validate:"required,oneof=review question chat"`
	URL         string                       `json:"url" validate:"required,url"`
	CursorParam string                       `json:"cursor_param"`
	LimitParam  string                       `json:"limit_param"`
	Headers     map[string]string            `json:"headers"`
	Mapping     httpfeed.Mapping             `json:"mapping"`
	Authors     map[string]models.AuthorRole `json:"authors"`
	Source      models.Source                `json:"source" validate:"omitempty,oneof=api fallback"`
}

func (f Feed) HTTPFeed() httpfeed.Config {
	return httpfeed.Config{
		URL:         f.URL,
		CursorParam: f.CursorParam,
		LimitParam:  f.LimitParam,
		Headers:     expandHeaders(f.Headers),
		Mapping:     f.Mapping,
		Authors:     f.Authors,
		Source:      f.Source,
	}
}

// Header values may reference environment variables so tokens stay out of the file.
func expandHeaders(headers map[string]string) map[string]string {
	if len(headers) == 0 {
		return nil
	}
	out := make(map[string]string, len(headers))
	for k, v := range headers {
		out[k] = os.ExpandEnv(v)
	}
	return out
}

// LoadFeeds reads the feed list from path. A missing file yields no feeds.
func LoadFeeds(path string) ([]Feed, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read feeds file %s: %w", path, err)
	}
	return ParseFeeds(data)
}

func ParseFeeds(data []byte) ([]Feed, error) {
	var feeds []Feed
	if err := json.Unmarshal(data, &feeds); err != nil {
		return nil, fmt.Errorf("invalid feeds file: %w", err)
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	seen := map[string]bool{}
	for idx, feed := range feeds {
		if err := validate.Struct(feed); err != nil {
			return nil, fmt.Errorf("feed %d: %w", idx, err)
		}
		key := feed.Marketplace + "/" + string(feed.Channel)
		if seen[key] {
			return nil, fmt.Errorf("feed %d: duplicate feed for %s", idx, key)
		}
		seen[key] = true
	}
	return feeds, nil
}
