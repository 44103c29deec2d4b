package verifier

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/dtnitsch/factcheck-relay/models"
)

type staticBase string

func (s staticBase) APIBaseURL() (string, error) { return string(s), nil }

func asFailure(t *testing.T, err error) *models.VerificationFailure {
	t.Helper()
	var fail *models.VerificationFailure
	if !errors.As(err, &fail) {
		t.Fatalf("error %v (%T) is not a *VerificationFailure", err, err)
	}
	return fail
}

func TestClassify(t *testing.T) {
	const jsonCT = "application/json"
	tests := []struct {
		name        string
		kind        models.Kind
		status      int
		contentType string
		body        string
		want        models.Classification // empty means success
	}{
		{"text ok", models.KindText, 200, jsonCT, `{}`, ""},
		{"json with charset", models.KindText, 201, "application/json; charset=utf-8", `{}`, ""},
		{"problem+json 404", models.KindText, 404, "application/problem+json", `{}`, models.EndpointMissing},
		{"html doctype", models.KindText, 200, "text/html", "  <!DOCTYPE html><html></html>", models.UnexpectedFormat},
		{"html tag", models.KindImage, 404, "text/html; charset=utf-8", "<html><body>nginx</body></html>", models.UnexpectedFormat},
		{"plain text", models.KindText, 500, "text/plain", "Internal Server Error", models.UnexpectedFormat},
		{"no content type", models.KindText, 200, "", `{"result":{}}`, models.UnexpectedFormat},
		{"404", models.KindVideo, 404, jsonCT, `{"detail":"Not Found"}`, models.EndpointMissing},
		{"status 0", models.KindText, 0, jsonCT, `{}`, models.ServerError},
		{"500", models.KindImage, 500, jsonCT, `{}`, models.ServerError},
		{"video 403", models.KindVideo, 403, jsonCT, `{}`, models.DownloadForbidden},
		{"text 403", models.KindText, 403, jsonCT, `{}`, models.ServerError},
		{"video 422", models.KindVideo, 422, jsonCT, `{}`, models.ContentForbidden},
		{"text 422", models.KindText, 422, jsonCT, `{}`, models.ServerError},
		{"image 415", models.KindImage, 415, jsonCT, `{}`, models.UnsupportedMediaType},
		{"video 415", models.KindVideo, 415, jsonCT, `{}`, models.ServerError},
		{"502", models.KindText, 502, jsonCT, `{}`, models.ServerError},
		{"301", models.KindText, 301, jsonCT, `{}`, models.ServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.kind, tt.status, tt.contentType, []byte(tt.body))
			again := Classify(tt.kind, tt.status, tt.contentType, []byte(tt.body))

			if tt.want == "" {
				if got != nil {
					t.Errorf("Classify() = %v, want success", got)
				}
				return
			}
			if got == nil {
				t.Fatalf("Classify() = nil, want %s", tt.want)
			}
			if got.Classification != tt.want {
				t.Errorf("Classify() = %s, want %s", got.Classification, tt.want)
			}
			if again == nil || *again != *got {
				t.Errorf("Classify() not deterministic: %v vs %v", got, again)
			}
		})
	}
}

func TestClassify_HTMLHint(t *testing.T) {
	html := Classify(models.KindText, 200, "text/html", []byte("<!doctype html>"))
	plain := Classify(models.KindText, 200, "text/plain", []byte("hello"))
	if html.HumanMessage == plain.HumanMessage {
		t.Error("HTML responses should carry the misconfigured base URL hint")
	}
	if !strings.Contains(html.HumanMessage, "base URL") {
		t.Errorf("HTML hint = %q, want mention of base URL", html.HumanMessage)
	}
}

func TestClassify_FixedMessages(t *testing.T) {
	got := Classify(models.KindVideo, 422, "application/json", nil)
	if got.HumanMessage != "forbidden content, cannot process request" {
		t.Errorf("422 message = %q", got.HumanMessage)
	}
}

func newServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *int32) {
	t.Helper()
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

func TestVerifyText_Success(t *testing.T) {
	srv, _ := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != PathText {
			t.Errorf("request = %s %s, want POST %s", r.Method, r.URL.Path, PathText)
		}
		body, _ := io.ReadAll(r.Body)
		if !strings.Contains(string(body), `"text":"the moon is made of cheese"`) {
			t.Errorf("request body = %s", body)
		}
		writeJSON(w, 200, `{"result":{"accuracy":"12%","accuracy_reason":"no sources","reason":"false","urls":["https://nasa.gov"]},"record_id":"abc-123","created_at":"2025-01-01T00:00:00Z","input_text":"the moon is made of cheese"}`)
	})

	c := New(staticBase(srv.URL+"/"), Options{})
	res, err := c.VerifyText(context.Background(), "the moon is made of cheese")
	if err != nil {
		t.Fatalf("VerifyText() error = %v", err)
	}
	if res.Kind != models.KindText || res.Text == nil {
		t.Fatalf("VerifyText() = %+v, want text result", res)
	}
	if res.Text.Accuracy != "12%" || res.RecordID() != "abc-123" || len(res.Text.URLs) != 1 {
		t.Errorf("VerifyText() text = %+v", res.Text)
	}
}

func TestVerify_ConfigurationMissing(t *testing.T) {
	srv, hits := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, `{}`)
	})
	_ = srv

	c := New(staticBase(""), Options{})
	_, err := c.VerifyText(context.Background(), "some claim")
	fail := asFailure(t, err)
	if fail.Classification != models.ConfigurationMissing {
		t.Errorf("classification = %s, want %s", fail.Classification, models.ConfigurationMissing)
	}
	if atomic.LoadInt32(hits) != 0 {
		t.Errorf("backend hit %d times, want 0", *hits)
	}
}

func TestVerifyVideo_ContentForbidden(t *testing.T) {
	srv, _ := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 422, `{"detail":"blocked"}`)
	})

	c := New(staticBase(srv.URL), Options{})
	_, err := c.VerifyVideo(context.Background(), "https://www.youtube.com/watch?v=abc")
	fail := asFailure(t, err)
	if fail.Classification != models.ContentForbidden {
		t.Errorf("classification = %s, want %s", fail.Classification, models.ContentForbidden)
	}
	if fail.HumanMessage != models.MsgContentForbidden {
		t.Errorf("message = %q, want %q", fail.HumanMessage, models.MsgContentForbidden)
	}
}

func TestVerifyVideo_NumericScores(t *testing.T) {
	srv, _ := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, `{"fft_artifact_score":0.42,"action_pattern_score":"0.10","result":"likely real","cached":true,"record_id":"v1","video_id":"abc","duration":12.5}`)
	})

	c := New(staticBase(srv.URL), Options{})
	res, err := c.VerifyVideo(context.Background(), "https://youtu.be/abc")
	if err != nil {
		t.Fatalf("VerifyVideo() error = %v", err)
	}
	v := res.Video
	if v.FFTArtifactScore != "0.42" || v.ActionPatternScore != "0.10" || !v.Cached || v.VideoID != "abc" {
		t.Errorf("VerifyVideo() = %+v", v)
	}
	if res.RecordID() != "v1" {
		t.Errorf("RecordID() = %q, want v1", res.RecordID())
	}
}

func TestVerifyImage_Endpoints(t *testing.T) {
	tests := []struct {
		endpoint string
		wantPath string
	}{
		{"", PathImageGemini},
		{models.ImageEndpointGemini, PathImageGemini},
		{models.ImageEndpointDetector, PathImage},
	}

	for _, tt := range tests {
		t.Run(tt.wantPath, func(t *testing.T) {
			srv, _ := newServer(t, func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != tt.wantPath {
					t.Errorf("path = %s, want %s", r.URL.Path, tt.wantPath)
				}
				writeJSON(w, 200, `{"result":{"fake":"80%","reason":"smooth skin"}}`)
			})
			c := New(staticBase(srv.URL), Options{ImageEndpoint: tt.endpoint})
			res, err := c.VerifyImage(context.Background(), "https://cdn.example.com/a.png")
			if err != nil {
				t.Fatalf("VerifyImage() error = %v", err)
			}
			if res.Image.Fake != "80%" {
				t.Errorf("Fake = %q, want 80%%", res.Image.Fake)
			}
		})
	}
}

func TestVerifyImage_UnsupportedMediaType(t *testing.T) {
	srv, _ := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 415, `{"detail":"svg"}`)
	})
	c := New(staticBase(srv.URL), Options{})
	_, err := c.VerifyImage(context.Background(), "https://cdn.example.com/a.svg")
	if got := asFailure(t, err).Classification; got != models.UnsupportedMediaType {
		t.Errorf("classification = %s, want %s", got, models.UnsupportedMediaType)
	}
}

func TestVerify_NetworkUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	c := New(staticBase(base), Options{})
	_, err := c.VerifyText(context.Background(), "claim")
	if got := asFailure(t, err).Classification; got != models.NetworkUnreachable {
		t.Errorf("classification = %s, want %s", got, models.NetworkUnreachable)
	}
}

func TestVerify_MalformedJSON(t *testing.T) {
	srv, _ := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, `{"result": [`)
	})
	c := New(staticBase(srv.URL), Options{})
	_, err := c.VerifyText(context.Background(), "claim")
	if got := asFailure(t, err).Classification; got != models.UnexpectedFormat {
		t.Errorf("classification = %s, want %s", got, models.UnexpectedFormat)
	}
}

func TestVerify_MissingResult(t *testing.T) {
	srv, _ := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, `{"record_id":"x"}`)
	})
	c := New(staticBase(srv.URL), Options{})
	_, err := c.VerifyText(context.Background(), "claim")
	if got := asFailure(t, err).Classification; got != models.UnexpectedFormat {
		t.Errorf("classification = %s, want %s", got, models.UnexpectedFormat)
	}
}

func TestVerify_InvalidInput(t *testing.T) {
	srv, hits := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, `{}`)
	})
	c := New(staticBase(srv.URL), Options{})

	if _, err := c.VerifyText(context.Background(), "   "); err == nil {
		t.Error("VerifyText() with blank text succeeded")
	}
	if _, err := c.VerifyImage(context.Background(), "javascript:alert(1)"); err == nil {
		t.Error("VerifyImage() with non-http URL succeeded")
	}
	if _, err := c.Verify(context.Background(), "audio", "x"); err == nil {
		t.Error("Verify() with unknown kind succeeded")
	}
	if atomic.LoadInt32(hits) != 0 {
		t.Errorf("backend hit %d times for invalid input, want 0", *hits)
	}
}

func TestHealth(t *testing.T) {
	srv, _ := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != PathHealth {
			w.Header().Set("Content-Type", "text/html")
			_, _ = io.WriteString(w, "<!doctype html>")
			return
		}
		writeJSON(w, 200, `{"status":"ok"}`)
	})

	if err := New(staticBase(srv.URL), Options{}).Health(context.Background()); err != nil {
		t.Errorf("Health() error = %v", err)
	}
	if err := New(staticBase(srv.URL+"/app"), Options{}).Health(context.Background()); err == nil {
		t.Error("Health() against HTML page succeeded")
	}
}
