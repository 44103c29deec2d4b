package models

import "encoding/json"

// MessageType is the discriminator carried by every cross-context message.
type MessageType string

// Presentation messages, background -> page.
const (
	MsgShowLoading        MessageType = "show_loading"
	MsgShowTextResult     MessageType = "show_text_result"
	MsgShowImageResult    MessageType = "show_image_result"
	MsgShowVideoResult    MessageType = "show_video_result"
	MsgShowError          MessageType = "show_error"
	MsgShowBaseURLWarning MessageType = "show_base_url_warning"
	MsgShowConfigure      MessageType = "show_configure_base_url"
	MsgShowBusy           MessageType = "show_busy"
	MsgShowWarning        MessageType = "show_warning_overlay"
	MsgPageChanged        MessageType = "page_changed"
)

// Intent and control messages, page/popup -> background.
const (
	MsgVerifyText        MessageType = "verify_text"
	MsgVerifyImage       MessageType = "verify_image"
	MsgVerifyVideo       MessageType = "verify_video"
	MsgPassiveScan       MessageType = "passive_scan"
	MsgSetFactCheck      MessageType = "set_fact_check_enabled"
	MsgSetBackgroundScan MessageType = "set_background_detection_enabled"
	MsgGetSettings       MessageType = "get_settings"
	MsgTabClosed         MessageType = "tab_closed"
)

// Message is the wire envelope: a type tag plus a data payload.
type Message struct {
	ID   string          `json:"id,omitempty"`
	Type MessageType     `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// NewMessage marshals data into a message of the given type.
func NewMessage(t MessageType, data any) (Message, error) {
	m := Message{Type: t}
	if data == nil {
		return m, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return m, err
	}
	m.Data = raw
	return m, nil
}

// Decode unmarshals the message payload into v.
func (m Message) Decode(v any) error {
	if len(m.Data) == 0 {
		return nil
	}
	return json.Unmarshal(m.Data, v)
}

// LoadingData accompanies MsgShowLoading.
type LoadingData struct {
	Kind Kind `json:"kind"`
}

// ResultData accompanies the three show-result messages.
type ResultData struct {
	Result    *VerificationResult `json:"result"`
	ShareLink string              `json:"share_link,omitempty"`
	OriginURL string              `json:"origin_url,omitempty"`
}

// ErrorData accompanies MsgShowError, MsgShowBaseURLWarning,
// MsgShowConfigure and MsgShowBusy.
type ErrorData struct {
	Kind           Kind           `json:"kind"`
	Classification Classification `json:"classification"`
	Message        string         `json:"message"`
}

// WarningData accompanies MsgShowWarning, emitted by passive scans.
type WarningData struct {
	PageURL       string      `json:"page_url"`
	Accuracy      float64     `json:"accuracy"`
	Result        *TextResult `json:"result"`
	IsCurrentPage bool        `json:"is_current_page"`
	ShareLink     string      `json:"share_link,omitempty"`
}

// PageData accompanies MsgPageChanged, sent when the tab's URL changes.
type PageData struct {
	URL     string `json:"url"`
	VideoID string `json:"video_id,omitempty"`
}

// VerifyData is the payload of the three verify intents and passive_scan.
type VerifyData struct {
	Payload   string `json:"payload"`
	OriginURL string `json:"origin_url,omitempty"`
}

// ToggleData is the payload of the two toggle messages.
type ToggleData struct {
	Enabled bool `json:"enabled"`
}
