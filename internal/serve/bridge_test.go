package serve

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dtnitsch/factcheck-relay/internal/common"
	"github.com/dtnitsch/factcheck-relay/models"
	"github.com/dtnitsch/factcheck-relay/pkg/db"
	"github.com/dtnitsch/factcheck-relay/pkg/settings"
)

type testBridge struct {
	srv     *httptest.Server
	backend *httptest.Server
	hub     *common.Hub
}

func newTestBridge(t *testing.T) *testBridge {
	t.Helper()
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"result":{"accuracy":"55%","accuracy_reason":"a","reason":"b","urls":[]},"record_id":"rec-1"}`))
	}))
	t.Cleanup(backend.Close)

	database, err := db.Open(":memory:")
	if err != nil {
		t.Fatalf("db.Open() error = %v", err)
	}
	t.Cleanup(func() { database.Close() })

	rt := &common.Runtime{
		Config:   models.DefaultConfig(),
		Logger:   nil,
		DB:       database,
		Settings: settings.New(database, nil),
	}
	bridge := NewBridge(rt.Settings, nil)
	hub := rt.NewHub(bridge.Bus(), bridge.ForgetTab)
	srv := httptest.NewServer(bridge.Handler(hub.Router))
	t.Cleanup(srv.Close)

	return &testBridge{srv: srv, backend: backend, hub: hub}
}

func (b *testBridge) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, b.srv.URL+path, &buf)
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s error = %v", method, path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func expectStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		t.Fatalf("%s %s status = %d, want %d", resp.Request.Method, resp.Request.URL.Path, resp.StatusCode, want)
	}
}

func TestBridge_VerifyFlow(t *testing.T) {
	b := newTestBridge(t)

	resp := b.do(t, http.MethodPut, "/v1/settings", map[string]string{models.KeyAPIBaseURL: b.backend.URL + "/"})
	expectStatus(t, resp, http.StatusOK)
	snap := decode[models.Settings](t, resp)
	if snap.APIBaseURL != b.backend.URL {
		t.Errorf("APIBaseURL = %q, want %q", snap.APIBaseURL, b.backend.URL)
	}

	expectStatus(t, b.do(t, http.MethodPost, "/v1/tabs/4/ready", pageBody{URL: "https://news.example.com/a"}), http.StatusNoContent)

	msg, err := models.NewMessage(models.MsgVerifyText, models.VerifyData{Payload: "the moon is cheese", OriginURL: "https://news.example.com/a"})
	if err != nil {
		t.Fatalf("NewMessage() error = %v", err)
	}
	resp = b.do(t, http.MethodPost, "/v1/tabs/4/messages", msg)
	expectStatus(t, resp, http.StatusOK)
	if reply := decode[map[string]any](t, resp); reply["accepted"] != true {
		t.Errorf("reply = %v", reply)
	}
	b.hub.Router.Wait()

	resp = b.do(t, http.MethodGet, "/v1/tabs/4/events", nil)
	expectStatus(t, resp, http.StatusOK)
	events := decode[struct {
		Events []models.Message `json:"events"`
	}](t, resp).Events
	if len(events) != 2 || events[0].Type != models.MsgShowLoading || events[1].Type != models.MsgShowTextResult {
		t.Fatalf("events = %+v, want loading then text result", events)
	}

	resp = b.do(t, http.MethodGet, "/v1/tabs/4/events", nil)
	if again := decode[map[string][]models.Message](t, resp)["events"]; len(again) != 0 {
		t.Errorf("events not drained: %v", again)
	}
}

func TestBridge_ConfigureWhenBaseURLMissing(t *testing.T) {
	b := newTestBridge(t)
	expectStatus(t, b.do(t, http.MethodPost, "/v1/tabs/1/ready", pageBody{URL: "https://news.example.com/a"}), http.StatusNoContent)

	msg, _ := models.NewMessage(models.MsgVerifyImage, models.VerifyData{Payload: "https://cdn.example.com/x.png"})
	expectStatus(t, b.do(t, http.MethodPost, "/v1/tabs/1/messages", msg), http.StatusOK)
	b.hub.Router.Wait()

	events := decode[map[string][]models.Message](t, b.do(t, http.MethodGet, "/v1/tabs/1/events", nil))["events"]
	if len(events) != 1 || events[0].Type != models.MsgShowConfigure {
		t.Errorf("events = %+v, want one %s", events, models.MsgShowConfigure)
	}
}

func TestBridge_RestrictedTabGetsNothing(t *testing.T) {
	b := newTestBridge(t)
	b.do(t, http.MethodPut, "/v1/settings", map[string]string{models.KeyAPIBaseURL: b.backend.URL})
	expectStatus(t, b.do(t, http.MethodPost, "/v1/tabs/2/ready", pageBody{URL: "https://news.example.com/a"}), http.StatusNoContent)
	expectStatus(t, b.do(t, http.MethodPost, "/v1/tabs/2/navigate", pageBody{URL: "chrome://settings/", Hard: true}), http.StatusNoContent)

	msg, _ := models.NewMessage(models.MsgVerifyText, models.VerifyData{Payload: "claim"})
	expectStatus(t, b.do(t, http.MethodPost, "/v1/tabs/2/messages", msg), http.StatusOK)
	b.hub.Router.Wait()

	events := decode[map[string][]models.Message](t, b.do(t, http.MethodGet, "/v1/tabs/2/events", nil))["events"]
	if len(events) != 0 {
		t.Errorf("restricted tab received %+v", events)
	}
}

func TestBridge_Errors(t *testing.T) {
	b := newTestBridge(t)

	expectStatus(t, b.do(t, http.MethodPut, "/v1/settings", map[string]string{"theme": "dark"}), http.StatusBadRequest)
	expectStatus(t, b.do(t, http.MethodPut, "/v1/settings", map[string]string{models.KeyFactCheckEnabled: "maybe"}), http.StatusBadRequest)
	expectStatus(t, b.do(t, http.MethodPost, "/v1/tabs/x/messages", models.Message{Type: models.MsgGetSettings}), http.StatusBadRequest)
	expectStatus(t, b.do(t, http.MethodPost, "/v1/tabs/1/messages", models.Message{Type: "explode"}), http.StatusBadRequest)
	expectStatus(t, b.do(t, http.MethodPost, "/v1/tabs/9/navigate", pageBody{URL: "https://a.example"}), http.StatusNotFound)
}

func TestBridge_CloseTab(t *testing.T) {
	b := newTestBridge(t)
	expectStatus(t, b.do(t, http.MethodPost, "/v1/tabs/3/ready", pageBody{URL: "https://news.example.com/a"}), http.StatusNoContent)
	b.hub.Tracker.TryAdmit(3, models.KindVideo)

	expectStatus(t, b.do(t, http.MethodDelete, "/v1/tabs/3", nil), http.StatusNoContent)

	if b.hub.Tracker.Len() != 0 {
		t.Error("tracker entry survived tab close")
	}
	expectStatus(t, b.do(t, http.MethodPost, "/v1/tabs/3/navigate", pageBody{URL: "https://a.example"}), http.StatusNotFound)
}

func TestBridge_ToggleMessages(t *testing.T) {
	b := newTestBridge(t)

	msg, _ := models.NewMessage(models.MsgSetFactCheck, models.ToggleData{Enabled: false})
	resp := b.do(t, http.MethodPost, "/v1/tabs/1/messages", msg)
	expectStatus(t, resp, http.StatusOK)

	snap := decode[models.Settings](t, b.do(t, http.MethodGet, "/v1/settings", nil))
	if snap.FactCheckEnabled {
		t.Error("FactCheckEnabled still true after toggle message")
	}
}
