package model

import (
	"encoding/json"
	"time"
)

// Link is the stored record for one short code.
type Link struct {
	Code      string
	URL       string
	CreatedAt time.Time
	ExpiresAt *time.Time
	Clicks    int64
}

// IsExpired reports whether now is strictly past ExpiresAt. A link without
// ExpiresAt never expires.
func (l *Link) IsExpired(now time.Time) bool {
	if l.ExpiresAt == nil {
		return false
	}
	return l.ExpiresAt.Before(now)
}

// Clone returns a copy that shares no memory with l.
func (l *Link) Clone() *Link {
	c := *l
	if l.ExpiresAt != nil {
		t := *l.ExpiresAt
		c.ExpiresAt = &t
	}
	return &c
}

// linkDocument is the persisted shape of a Link. The code is the key of the
// enclosing object and is not repeated here.
type linkDocument struct {
	URL       string  `json:"url"`
	CreatedAt string  `json:"created_at"`
	ExpiresAt *string `json:"expires_at"`
	Clicks    int64   `json:"clicks"`
}

// MarshalJSON encodes the record body without its code.
func (l Link) MarshalJSON() ([]byte, error) {
	doc := linkDocument{
		URL:       l.URL,
		CreatedAt: FormatTimestamp(l.CreatedAt),
		Clicks:    l.Clicks,
	}
	if l.ExpiresAt != nil {
		s := FormatTimestamp(*l.ExpiresAt)
		doc.ExpiresAt = &s
	}
	return json.Marshal(doc)
}

// UnmarshalJSON decodes a record body. Code is left untouched.
func (l *Link) UnmarshalJSON(data []byte) error {
	var doc linkDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}

	created, err := ParseTimestamp(doc.CreatedAt)
	if err != nil {
		return err
	}

	l.URL = doc.URL
	l.CreatedAt = created
	l.Clicks = doc.Clicks
	l.ExpiresAt = nil
	if doc.ExpiresAt != nil && *doc.ExpiresAt != "" {
		expires, err := ParseTimestamp(*doc.ExpiresAt)
		if err != nil {
			return err
		}
		l.ExpiresAt = &expires
	}
	if l.Clicks < 0 {
		l.Clicks = 0
	}
	return nil
}
