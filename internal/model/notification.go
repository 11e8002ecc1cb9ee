package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ToastType classifies how a notification is presented as a toast.
type ToastType string

const (
	ToastSuccess ToastType = "success"
	ToastError   ToastType = "error"
	ToastInfo    ToastType = "info"
)

// Normalize maps unknown or empty toast types to ToastInfo.
func (t ToastType) Normalize() ToastType {
	switch t {
	case ToastSuccess, ToastError, ToastInfo:
		return t
	default:
		return ToastInfo
	}
}

// Notification represents an alert about activity on one of the user's
// carry requests or carry offers.
type Notification struct {
	// ID is the stable identifier assigned by the backend. It is unique
	// within a store.
	ID string `json:"id"`

	// Message is the human-readable notification text.
	Message string `json:"message"`

	// Read indicates whether the user has seen this notification.
	Read bool `json:"read"`

	// CreatedAt is the ISO-8601 timestamp supplied by the backend. It is
	// kept verbatim because it doubles as the long-poll watermark.
	CreatedAt string `json:"createdAt"`

	// Link is an optional deep-link target.
	Link string `json:"link,omitempty"`

	// SenderName and SenderImage describe who triggered the notification.
	SenderName  string `json:"senderName,omitempty"`
	SenderImage string `json:"senderImage,omitempty"`

	// Type selects the toast style. Empty means info.
	Type ToastType `json:"type,omitempty"`
}

// HasLink reports whether the notification carries a deep-link target.
func (n Notification) HasLink() bool {
	return strings.TrimSpace(n.Link) != ""
}

// wireNotification accepts both the camelCase fields of the client model
// and the snake_case fields the backend emits.
type wireNotification struct {
	ID          json.RawMessage `json:"id"`
	Message     string          `json:"message"`
	Read        *bool           `json:"read"`
	IsRead      json.RawMessage `json:"is_read"`
	CreatedAt   string          `json:"createdAt"`
	CreatedAtSC string          `json:"created_at"`
	Link        string          `json:"link"`
	SenderName  string          `json:"senderName"`
	SenderNmSC  string          `json:"sender_name"`
	SenderImage string          `json:"senderImage"`
	SenderImSC  string          `json:"sender_image"`
	Type        ToastType       `json:"type"`
}

// UnmarshalJSON decodes a notification from either wire spelling.
// Numeric ids are converted to their decimal string form.
func (n *Notification) UnmarshalJSON(data []byte) error {
	var w wireNotification
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	id, err := decodeID(w.ID)
	if err != nil {
		return err
	}

	read := false
	if w.Read != nil {
		read = *w.Read
	} else if len(w.IsRead) > 0 {
		read = decodeFlag(w.IsRead)
	}

	*n = Notification{
		ID:          id,
		Message:     w.Message,
		Read:        read,
		CreatedAt:   firstNonEmpty(w.CreatedAt, w.CreatedAtSC),
		Link:        w.Link,
		SenderName:  firstNonEmpty(w.SenderName, w.SenderNmSC),
		SenderImage: firstNonEmpty(w.SenderImage, w.SenderImSC),
		Type:        w.Type,
	}
	return nil
}

// decodeID accepts a JSON string or number.
func decodeID(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", fmt.Errorf("decoding notification id: %w", err)
		}
		return s, nil
	}
	var num json.Number
	if err := json.Unmarshal(raw, &num); err != nil {
		return "", fmt.Errorf("decoding notification id: %w", err)
	}
	return num.String(), nil
}

// decodeFlag interprets 0/1, "0"/"1" and true/false as a boolean.
func decodeFlag(raw json.RawMessage) bool {
	s := strings.Trim(strings.TrimSpace(string(raw)), `"`)
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	return false
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
