// Package verifier is the client for the fact-check backend. Every call
// issues exactly one HTTP request and returns either a normalized result
// or a *models.VerificationFailure; it never retries.
package verifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dtnitsch/factcheck-relay/models"
)

const (
	PathText        = "/verify/text"
	PathImageGemini = "/verify/image-gemini"
	PathImage       = "/verify/image"
	PathVideo       = "/verify/video"
	PathHealth      = "/health"

	maxBodyBytes = 4 << 20
)

// BaseURLSource supplies the backend base URL at call time. The settings
// store implements it.
type BaseURLSource interface {
	APIBaseURL() (string, error)
}

// Options tunes a Client. Zero values use defaults.
type Options struct {
	HTTPClient    *http.Client
	Timeout       time.Duration
	ImageEndpoint string // models.ImageEndpointGemini (default) or models.ImageEndpointDetector
	Logger        *slog.Logger
}

type Client struct {
	base      BaseURLSource
	client    *http.Client
	imagePath string
	logger    *slog.Logger
}

func New(base BaseURLSource, opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 120 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	imagePath := PathImageGemini
	if opts.ImageEndpoint == models.ImageEndpointDetector {
		imagePath = PathImage
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		base:      base,
		client:    httpClient,
		imagePath: imagePath,
		logger:    logger,
	}
}

// Verify dispatches on kind. The returned error is always a
// *models.VerificationFailure.
func (c *Client) Verify(ctx context.Context, kind models.Kind, payload string) (*models.VerificationResult, error) {
	switch kind {
	case models.KindText:
		return c.VerifyText(ctx, payload)
	case models.KindImage:
		return c.VerifyImage(ctx, payload)
	case models.KindVideo:
		return c.VerifyVideo(ctx, payload)
	}
	return nil, models.NewFailure(models.Unknown, fmt.Sprintf("unsupported verification kind %q", kind), "")
}

func (c *Client) VerifyText(ctx context.Context, text string) (*models.VerificationResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, models.NewFailure(models.Unknown, "no text to check", "")
	}

	var wire struct {
		Result *struct {
			Accuracy       string   `json:"accuracy"`
			AccuracyReason string   `json:"accuracy_reason"`
			Reason         string   `json:"reason"`
			URLs           []string `json:"urls"`
		} `json:"result"`
		RecordID  string `json:"record_id"`
		CreatedAt string `json:"created_at"`
		InputText string `json:"input_text"`
	}
	if fail := c.post(ctx, models.KindText, PathText, map[string]string{"text": text}, &wire); fail != nil {
		return nil, fail
	}
	if wire.Result == nil {
		return nil, missingField("result")
	}

	return &models.VerificationResult{
		Kind: models.KindText,
		Text: &models.TextResult{
			Accuracy:       wire.Result.Accuracy,
			AccuracyReason: wire.Result.AccuracyReason,
			Reason:         wire.Result.Reason,
			URLs:           wire.Result.URLs,
			RecordID:       wire.RecordID,
			CreatedAt:      wire.CreatedAt,
			InputText:      wire.InputText,
		},
	}, nil
}

func (c *Client) VerifyImage(ctx context.Context, imageURL string) (*models.VerificationResult, error) {
	if err := validateURL(imageURL); err != nil {
		return nil, models.NewFailure(models.Unknown, "the image address is not a valid URL", err.Error())
	}

	var wire struct {
		Result *models.ImageResult `json:"result"`
	}
	if fail := c.post(ctx, models.KindImage, c.imagePath, map[string]string{"image_url": imageURL}, &wire); fail != nil {
		return nil, fail
	}
	if wire.Result == nil {
		return nil, missingField("result")
	}

	return &models.VerificationResult{Kind: models.KindImage, Image: wire.Result}, nil
}

func (c *Client) VerifyVideo(ctx context.Context, pageURL string) (*models.VerificationResult, error) {
	if err := validateURL(pageURL); err != nil {
		return nil, models.NewFailure(models.Unknown, "the page address is not a valid URL", err.Error())
	}

	var wire struct {
		FFTArtifactScore   flexString         `json:"fft_artifact_score"`
		ActionPatternScore flexString         `json:"action_pattern_score"`
		Result             string             `json:"result"`
		Transcript         string             `json:"transcript"`
		FactCheck          *models.TextResult `json:"fact_check"`
		Cached             bool               `json:"cached"`
		RecordID           string             `json:"record_id"`
		VideoID            string             `json:"video_id"`
		Duration           float64            `json:"duration"`
	}
	if fail := c.post(ctx, models.KindVideo, PathVideo, map[string]string{"url": pageURL}, &wire); fail != nil {
		return nil, fail
	}

	return &models.VerificationResult{
		Kind: models.KindVideo,
		Video: &models.VideoResult{
			FFTArtifactScore:   string(wire.FFTArtifactScore),
			ActionPatternScore: string(wire.ActionPatternScore),
			ResultSummary:      wire.Result,
			Transcript:         wire.Transcript,
			FactCheck:          wire.FactCheck,
			Cached:             wire.Cached,
			RecordID:           wire.RecordID,
			VideoID:            wire.VideoID,
			Duration:           wire.Duration,
		},
	}, nil
}

// Health probes GET /health. It reports failures with the same taxonomy.
func (c *Client) Health(ctx context.Context) error {
	base, fail := c.baseURL()
	if fail != nil {
		return fail
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+PathHealth, nil)
	if err != nil {
		return models.NewFailure(models.Unknown, "failed to build request", err.Error())
	}
	var out map[string]any
	if fail := c.do(req, "", &out); fail != nil {
		return fail
	}
	return nil
}

func (c *Client) baseURL() (string, *models.VerificationFailure) {
	base, err := c.base.APIBaseURL()
	if err != nil {
		return "", models.NewFailure(models.Unknown, "failed to read settings", err.Error())
	}
	base = strings.TrimRight(strings.TrimSpace(base), "/")
	if base == "" {
		return "", models.NewFailure(models.ConfigurationMissing, models.MsgConfigurationMissing, "")
	}
	return base, nil
}

// post sends body as JSON to path and decodes a successful answer into out.
func (c *Client) post(ctx context.Context, kind models.Kind, path string, body any, out any) *models.VerificationFailure {
	base, fail := c.baseURL()
	if fail != nil {
		return fail
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return models.NewFailure(models.Unknown, "failed to encode request", err.Error())
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+path, bytes.NewReader(payload))
	if err != nil {
		return models.NewFailure(models.Unknown, "failed to build request", err.Error())
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	return c.do(req, kind, out)
}

func (c *Client) do(req *http.Request, kind models.Kind, out any) *models.VerificationFailure {
	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		fail := classifyTransportError(err)
		c.logger.Warn("Backend request failed", "kind", kind, "url", req.URL.String(), "classification", fail.Classification, "error", err)
		return fail
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		fail := classifyTransportError(err)
		c.logger.Warn("Failed to read backend response", "kind", kind, "url", req.URL.String(), "error", err)
		return fail
	}

	if fail := Classify(kind, resp.StatusCode, resp.Header.Get("Content-Type"), body); fail != nil {
		c.logger.Warn("Backend returned failure", "kind", kind, "status", resp.StatusCode, "classification", fail.Classification)
		return fail
	}

	if err := json.Unmarshal(body, out); err != nil {
		c.logger.Warn("Backend returned malformed JSON", "kind", kind, "error", err)
		return models.NewFailure(models.UnexpectedFormat, msgUnexpectedFormat, err.Error())
	}

	c.logger.Debug("Backend request succeeded", "kind", kind, "status", resp.StatusCode, "elapsed_ms", time.Since(start).Milliseconds())
	return nil
}

func missingField(name string) *models.VerificationFailure {
	return models.NewFailure(models.UnexpectedFormat, msgUnexpectedFormat, fmt.Sprintf("response has no %q field", name))
}

func validateURL(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("missing host")
	}
	return nil
}

// flexString accepts a JSON string or number; scores arrive as either.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}
