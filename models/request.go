package models

import (
	"fmt"
	"time"
)

// Kind identifies which backend endpoint a verification goes to.
type Kind string

const (
	KindText  Kind = "text"
	KindImage Kind = "image"
	KindVideo Kind = "video"
)

// ParseKind converts a user-supplied kind string.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindText, KindImage, KindVideo:
		return Kind(s), nil
	}
	return "", fmt.Errorf("unknown verification kind %q", s)
}

// VerificationRequest is one verification intent. It is consumed once by
// the orchestrator and never persisted.
type VerificationRequest struct {
	Kind  Kind `json:"kind"`
	TabID int  `json:"tab_id"`

	// Payload is the text, image URL or page URL depending on Kind.
	Payload   string `json:"payload"`
	OriginURL string `json:"origin_url"`

	// Passive marks requests issued by the scan scheduler rather than a user.
	Passive bool `json:"passive,omitempty"`
}

// TrackedRequest is the tracker entry for a tab with an in-flight request.
type TrackedRequest struct {
	TabID     int       `json:"tab_id"`
	Kind      Kind      `json:"kind"`
	StartedAt time.Time `json:"started_at"`
}
