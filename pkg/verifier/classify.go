package verifier

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"strings"
	"syscall"

	"github.com/dtnitsch/factcheck-relay/models"
)

const (
	msgNetworkUnreachable = "cannot reach the fact-check server, check the API base URL"
	msgEndpointMissing    = "the fact-check endpoint does not exist on this server, check the API base URL"
	msgServerError        = "the fact-check server failed to process the request"
	msgHTMLResponse       = "the server answered with an HTML page instead of JSON, the API base URL is likely misconfigured"
	msgUnexpectedFormat   = "the server answered in an unexpected format"
	msgCanceled           = "the request was canceled"
)

// htmlMarkers are body prefixes that identify an HTML page.
var htmlMarkers = [][]byte{[]byte("<!doctype html"), []byte("<html")}

// Classify maps an HTTP outcome to a failure. It returns nil when the
// response is a 2xx JSON answer that should be decoded. The result depends
// only on its arguments.
func Classify(kind models.Kind, status int, contentType string, body []byte) *models.VerificationFailure {
	if !isJSON(contentType) {
		if looksLikeHTML(body) {
			return &models.VerificationFailure{
				Classification: models.UnexpectedFormat,
				HumanMessage:   msgHTMLResponse,
				RawDetail:      fmt.Sprintf("status %d, content-type %q", status, contentType),
				StatusCode:     status,
			}
		}
		return &models.VerificationFailure{
			Classification: models.UnexpectedFormat,
			HumanMessage:   msgUnexpectedFormat,
			RawDetail:      fmt.Sprintf("status %d, content-type %q", status, contentType),
			StatusCode:     status,
		}
	}

	fail := func(c models.Classification, msg string) *models.VerificationFailure {
		return &models.VerificationFailure{
			Classification: c,
			HumanMessage:   msg,
			RawDetail:      statusDetail(status),
			StatusCode:     status,
		}
	}

	switch {
	case status == http.StatusNotFound:
		return fail(models.EndpointMissing, msgEndpointMissing)
	case status == 0 || status == http.StatusInternalServerError:
		return fail(models.ServerError, msgServerError)
	case status == http.StatusForbidden && kind == models.KindVideo:
		return fail(models.DownloadForbidden, models.MsgDownloadForbidden)
	case status == http.StatusUnprocessableEntity && kind == models.KindVideo:
		return fail(models.ContentForbidden, models.MsgContentForbidden)
	case status == http.StatusUnsupportedMediaType && kind == models.KindImage:
		return fail(models.UnsupportedMediaType, models.MsgUnsupportedMediaType)
	case status < 200 || status > 299:
		return fail(models.ServerError, msgServerError)
	}
	return nil
}

// classifyTransportError maps an error from http.Client.Do.
func classifyTransportError(err error) *models.VerificationFailure {
	if errors.Is(err, context.Canceled) {
		return models.NewFailure(models.Unknown, msgCanceled, err.Error())
	}
	if isConnectivityError(err) {
		return models.NewFailure(models.NetworkUnreachable, msgNetworkUnreachable, err.Error())
	}
	return models.NewFailure(models.Unknown, "the request failed", err.Error())
}

func isConnectivityError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ENETUNREACH) || errors.Is(err, syscall.EHOSTUNREACH) {
		return true
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"connection refused", "no such host", "network is unreachable", "failed to fetch"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

func isJSON(contentType string) bool {
	if contentType == "" {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}

func looksLikeHTML(body []byte) bool {
	prefix := bytes.TrimSpace(body)
	if len(prefix) > 64 {
		prefix = prefix[:64]
	}
	prefix = bytes.ToLower(prefix)
	for _, m := range htmlMarkers {
		if bytes.HasPrefix(prefix, m) {
			return true
		}
	}
	return false
}

func statusDetail(status int) string {
	if text := http.StatusText(status); text != "" {
		return fmt.Sprintf("HTTP %d %s", status, text)
	}
	return fmt.Sprintf("HTTP %d", status)
}
