package model

import (
	"encoding/json"
	"time"
	"unicode/utf8"
)

// MaxUserAgentLength bounds the user agent stored with each click.
const MaxUserAgentLength = 200

// ClickEvent is one logged visit to a short link.
type ClickEvent struct {
	Code      string    `json:"code"`
	Time      time.Time `json:"time"`
	IP        *string   `json:"ip"`
	UserAgent string    `json:"user_agent"`
	Referer   string    `json:"referer"`
}

// NewClickEvent builds an event at t, truncating the user agent and storing
// an empty client address as null.
func NewClickEvent(code string, t time.Time, ip, userAgent, referer string) ClickEvent {
	ev := ClickEvent{
		Code:      code,
		Time:      t.UTC(),
		UserAgent: TruncateUserAgent(userAgent),
		Referer:   referer,
	}
	if ip != "" {
		ev.IP = &ip
	}
	return ev
}

// TruncateUserAgent keeps at most MaxUserAgentLength characters.
func TruncateUserAgent(ua string) string {
	if utf8.RuneCountInString(ua) <= MaxUserAgentLength {
		return ua
	}
	runes := []rune(ua)
	return string(runes[:MaxUserAgentLength])
}

type clickEventDocument struct {
	Code      string  `json:"code"`
	Time      string  `json:"time"`
	IP        *string `json:"ip"`
	UserAgent string  `json:"user_agent"`
	Referer   string  `json:"referer"`
}

func (e ClickEvent) MarshalJSON() ([]byte, error) {
	return json.Marshal(clickEventDocument{
		Code:      e.Code,
		Time:      FormatTimestamp(e.Time),
		IP:        e.IP,
		UserAgent: e.UserAgent,
		Referer:   e.Referer,
	})
}

func (e *ClickEvent) UnmarshalJSON(data []byte) error {
	var doc clickEventDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	t, err := ParseTimestamp(doc.Time)
	if err != nil {
		return err
	}
	*e = ClickEvent{
		Code:      doc.Code,
		Time:      t,
		IP:        doc.IP,
		UserAgent: doc.UserAgent,
		Referer:   doc.Referer,
	}
	return nil
}

// ClickStats aggregates the logged clicks of one code.
type ClickStats struct {
	Total  int64        `json:"total"`
	Recent []ClickEvent `json:"recent"`
}

const (
	ClickStreamName     = "CLICKS"
	ClickStreamSubject  = "clicks.events"
	ClickConsumerName   = "click-archiver"
	ClickStreamMaxBytes = 1024 * 1024 * 100 // 100MB
)
