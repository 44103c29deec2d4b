package models

// TextResult is the normalized text verification verdict.
type TextResult struct {
	Accuracy       string   `json:"accuracy"` // percentage string, e.g. "82%"
	AccuracyReason string   `json:"accuracy_reason"`
	Reason         string   `json:"reason"`
	URLs           []string `json:"urls"`
	RecordID       string   `json:"record_id,omitempty"`
	CreatedAt      string   `json:"created_at,omitempty"`
	InputText      string   `json:"input_text,omitempty"`
}

// ImageResult is the image verdict. Fake is a tri-state string as the
// backend reports it ("65%", "true", "unknown", ...).
type ImageResult struct {
	Fake   string `json:"fake"`
	Reason string `json:"reason"`
}

// VideoResult is the video analysis outcome.
type VideoResult struct {
	FFTArtifactScore   string      `json:"fft_artifact_score"`
	ActionPatternScore string      `json:"action_pattern_score"`
	ResultSummary      string      `json:"result"`
	Transcript         string      `json:"transcript,omitempty"`
	FactCheck          *TextResult `json:"fact_check,omitempty"`
	Cached             bool        `json:"cached,omitempty"`
	RecordID           string      `json:"record_id,omitempty"`
	VideoID            string      `json:"video_id,omitempty"`
	Duration           float64     `json:"duration,omitempty"`
}

// VerificationResult is a discriminated union over Kind. Exactly one of
// Text, Image or Video is set, matching Kind.
type VerificationResult struct {
	Kind  Kind         `json:"kind"`
	Text  *TextResult  `json:"text,omitempty"`
	Image *ImageResult `json:"image,omitempty"`
	Video *VideoResult `json:"video,omitempty"`
}

// RecordID returns the backend record id of a text or video result.
func (r *VerificationResult) RecordID() string {
	if r == nil {
		return ""
	}
	switch r.Kind {
	case KindText:
		if r.Text != nil {
			return r.Text.RecordID
		}
	case KindVideo:
		if r.Video != nil {
			return r.Video.RecordID
		}
	}
	return ""
}

// Accuracy returns the percentage string of a text result, or of the fact
// check embedded in a video result.
func (r *VerificationResult) Accuracy() string {
	if r == nil {
		return ""
	}
	if r.Text != nil {
		return r.Text.Accuracy
	}
	if r.Video != nil && r.Video.FactCheck != nil {
		return r.Video.FactCheck.Accuracy
	}
	return ""
}
