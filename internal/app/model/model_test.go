package model

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimestamp(t *testing.T) {
	want := time.Date(2024, 3, 9, 14, 30, 5, 123456000, time.UTC)

	tests := []struct {
		name  string
		input string
		want  time.Time
	}{
		{name: "rfc3339 utc", input: "2024-03-09T14:30:05.123456Z", want: want},
		{name: "rfc3339 offset", input: "2024-03-09T16:30:05.123456+02:00", want: want},
		{name: "naive iso", input: "2024-03-09T14:30:05.123456", want: want},
		{name: "naive space separated", input: "2024-03-09 14:30:05.123456", want: want},
		{name: "date only", input: "2024-03-09", want: time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTimestamp(tt.input)
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "got %s", got)
			assert.Equal(t, time.UTC, got.Location())
		})
	}

	_, err := ParseTimestamp("next tuesday")
	assert.Error(t, err)
}

func TestLink_IsExpired(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Second)
	future := now.Add(time.Second)

	assert.False(t, (&Link{}).IsExpired(now), "no expiry never expires")
	assert.True(t, (&Link{ExpiresAt: &past}).IsExpired(now))
	assert.False(t, (&Link{ExpiresAt: &future}).IsExpired(now))
}

func TestLink_JSON(t *testing.T) {
	created := time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)
	expires := created.Add(24 * time.Hour)
	link := Link{Code: "abc123", URL: "https://example.com", CreatedAt: created, ExpiresAt: &expires, Clicks: 7}

	data, err := json.Marshal(link)
	require.NoError(t, err)
	assert.JSONEq(t, `{"url":"https://example.com","created_at":"2025-05-01T08:00:00Z","expires_at":"2025-05-02T08:00:00Z","clicks":7}`, string(data))

	var decoded Link
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "", decoded.Code)
	assert.True(t, created.Equal(decoded.CreatedAt))
	require.NotNil(t, decoded.ExpiresAt)
	assert.True(t, expires.Equal(*decoded.ExpiresAt))
	assert.Equal(t, int64(7), decoded.Clicks)
}

func TestLink_UnmarshalLegacyRecord(t *testing.T) {
	var link Link
	err := json.Unmarshal([]byte(`{"url":"https://example.com","created_at":"2024-01-02T03:04:05.000001","expires_at":null,"clicks":3}`), &link)
	require.NoError(t, err)

	assert.Nil(t, link.ExpiresAt)
	assert.Equal(t, 2024, link.CreatedAt.Year())
	assert.Equal(t, int64(3), link.Clicks)
}

func TestLink_Clone(t *testing.T) {
	expires := time.Now()
	link := &Link{Code: "a", ExpiresAt: &expires}

	c := link.Clone()
	c.Clicks = 10
	*c.ExpiresAt = expires.Add(time.Hour)

	assert.Equal(t, int64(0), link.Clicks)
	assert.True(t, link.ExpiresAt.Equal(expires))
}

func TestNewClickEvent(t *testing.T) {
	at := time.Date(2025, 2, 3, 4, 5, 6, 0, time.UTC)
	ua := strings.Repeat("é", MaxUserAgentLength+50)

	ev := NewClickEvent("x", at, "", ua, "https://ref.example")
	assert.Nil(t, ev.IP)
	assert.Equal(t, MaxUserAgentLength, len([]rune(ev.UserAgent)))

	data, err := json.Marshal(ev)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"ip":null`)
	assert.Contains(t, string(data), `"time":"2025-02-03T04:05:06Z"`)

	withIP := NewClickEvent("x", at, "10.0.0.1", "curl/8", "")
	var decoded ClickEvent
	data, err = json.Marshal(withIP)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.NotNil(t, decoded.IP)
	assert.Equal(t, "10.0.0.1", *decoded.IP)
	assert.True(t, at.Equal(decoded.Time))
}
