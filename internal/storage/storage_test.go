package storage

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseExpiry(t *testing.T) {
	epoch := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	url := fmt.Sprintf("https://storage.googleapis.com/bucket/archives/abc.wacz?GoogleAccessId=x&Expires=%d&Signature=y", epoch.Unix())
	got, err := ParseExpiry(url)
	require.NoError(t, err)
	assert.True(t, got.Equal(epoch))
}

func TestParseExpiry_Errors(t *testing.T) {
	tests := []struct {
		name string
		url  string
	}{
		{"missing parameter", "https://storage.googleapis.com/bucket/archives/abc.wacz?Signature=y"},
		{"non numeric", "https://storage.googleapis.com/bucket/abc.wacz?Expires=tomorrow"},
		{"unparseable url", "://not-a-url"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseExpiry(tt.url)
			assert.Error(t, err)
		})
	}
}
