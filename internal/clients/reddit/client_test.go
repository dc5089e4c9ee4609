package reddit

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/aristath/equityscope/internal/config"
	"github.com/aristath/equityscope/internal/domain"
)

func TestMentionsSymbol(t *testing.T) {
	tests := []struct {
		title string
		text  string
		want  bool
	}{
		{"Thoughts on AAPL earnings?", "", true},
		{"$AAPL to the moon", "", true},
		{"apple discussion", "I bought aapl today", true},
		{"PLAAPLE is not a ticker", "", false},
		{"AAPLX fund question", "", false},
		{"", "nothing relevant here", false},
	}
	for _, tt := range tests {
		got := mentionsSymbol("AAPL", tt.title, tt.text)
		assert.Equal(t, tt.want, got, "title=%q text=%q", tt.title, tt.text)
	}
}

func TestSelfTest_WithoutCredentials(t *testing.T) {
	c := NewClient(config.SourceCredentials{}, config.RateLimit{MaxRequests: 10, WindowSeconds: 60},
		zerolog.New(nil).Level(zerolog.Disabled))

	assert.Equal(t, domain.APIInvalidCredentials, c.SelfTest(context.Background()))
}

func TestFetchPosts_WithoutCredentials(t *testing.T) {
	c := NewClient(config.SourceCredentials{}, config.RateLimit{MaxRequests: 10, WindowSeconds: 60},
		zerolog.New(nil).Level(zerolog.Disabled))

	_, err := c.FetchPosts(context.Background(), "AAPL")
	assert.ErrorIs(t, err, ErrNotConfigured)
}
