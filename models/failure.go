package models

import "fmt"

// Classification is the error taxonomy surfaced to the user.
type Classification string

const (
	NetworkUnreachable       Classification = "network_unreachable"
	EndpointMissing          Classification = "endpoint_missing"
	ServerError              Classification = "server_error"
	UnexpectedFormat         Classification = "unexpected_format"
	ContentForbidden         Classification = "content_forbidden"
	DownloadForbidden        Classification = "download_forbidden"
	UnsupportedMediaType     Classification = "unsupported_media_type"
	ConfigurationMissing     Classification = "configuration_missing"
	RequestAlreadyInProgress Classification = "request_already_in_progress"
	Unknown                  Classification = "unknown"
)

// Fixed user-facing messages for classifications that are not a
// configuration problem.
const (
	MsgContentForbidden     = "forbidden content, cannot process request"
	MsgDownloadForbidden    = "the video cannot be downloaded"
	MsgUnsupportedMediaType = "unsupported image format"
	MsgAlreadyInProgress    = "a fact check is already running in this tab"
	MsgConfigurationMissing = "set the API base URL in the extension settings first"
)

// IsBaseURLProblem reports whether the failure most likely means the
// configured base URL is wrong or the backend is down.
func (c Classification) IsBaseURLProblem() bool {
	switch c {
	case NetworkUnreachable, EndpointMissing, ServerError, UnexpectedFormat:
		return true
	}
	return false
}

// FixedMessage returns the fixed human message for classifications that
// have one.
func (c Classification) FixedMessage() (string, bool) {
	switch c {
	case ContentForbidden:
		return MsgContentForbidden, true
	case DownloadForbidden:
		return MsgDownloadForbidden, true
	case UnsupportedMediaType:
		return MsgUnsupportedMediaType, true
	}
	return "", false
}

// VerificationFailure is the only error type the verification client
// returns.
type VerificationFailure struct {
	Classification Classification `json:"classification"`
	HumanMessage   string         `json:"message"`
	RawDetail      string         `json:"raw_detail,omitempty"`
	StatusCode     int            `json:"status_code,omitempty"`
}

func (f *VerificationFailure) Error() string {
	if f.RawDetail != "" {
		return fmt.Sprintf("%s: %s (%s)", f.Classification, f.HumanMessage, f.RawDetail)
	}
	return fmt.Sprintf("%s: %s", f.Classification, f.HumanMessage)
}

// NewFailure builds a failure with a message.
func NewFailure(c Classification, msg, detail string) *VerificationFailure {
	return &VerificationFailure{Classification: c, HumanMessage: msg, RawDetail: detail}
}
