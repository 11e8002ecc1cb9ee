package backend

import "github.com/nhle/carrylink/internal/model"

// Epoch is the watermark that asks the backend for every notification.
const Epoch = "1970-01-01T00:00:00"

// ExchangeRequest is the body of POST /auth/exchange.
type ExchangeRequest struct {
	AccessToken string         `json:"accessToken"`
	Provider    model.Provider `json:"provider"`
}

// ExchangeResponse is the body returned by POST /auth/exchange. The
// backend reuses the accessToken field name for its own credential.
type ExchangeResponse struct {
	AccessToken string `json:"accessToken"`
}

// LongPollResponse is the body returned by GET /notifications/longpoll.
type LongPollResponse struct {
	Notifications []model.Notification `json:"notifications"`
}

// ErrorResponse is the error envelope the backend uses for non-2xx replies.
type ErrorResponse struct {
	Detail string `json:"detail"`
}
