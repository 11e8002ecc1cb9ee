package ui

import "github.com/nhle/carrylink/internal/model"

// NavigateMsg asks the root model to follow a notification's link.
type NavigateMsg struct {
	Notification model.Notification
}

// ViewAllMsg asks the root model to open the full notification list.
type ViewAllMsg struct{}

// BackMsg asks the root model to return to the previous view.
type BackMsg struct{}
