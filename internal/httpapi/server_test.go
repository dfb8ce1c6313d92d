package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hajjtech/mawkib/internal/httpapi"
	"github.com/hajjtech/mawkib/internal/mawkib/codec"
	"github.com/hajjtech/mawkib/internal/mawkib/metrics"
	"github.com/hajjtech/mawkib/internal/mawkib/sensor"
	"github.com/hajjtech/mawkib/internal/mawkib/sensor/sim"
	"github.com/hajjtech/mawkib/internal/mawkib/service"
	"github.com/hajjtech/mawkib/internal/mawkib/store/memory"
	"github.com/hajjtech/mawkib/internal/mawkib/types"
)

const testPIN = "246810"

type testEnv struct {
	server *httpapi.Server
	codec  *codec.Codec
	camera *sim.Camera
	door   *sim.Door
	finger *sim.Fingerprint
}

type staticPIN struct{ pin string }

func (s staticPIN) Verify(_ context.Context, pin string) (bool, error) {
	return pin == s.pin, nil
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	logger := log.New(io.Discard, "", 0)
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	cdc, err := codec.New("httpapi-test-secret")
	if err != nil {
		t.Fatalf("codec.New: %v", err)
	}

	pilgrims := memory.NewPilgrimStore()
	attempts := memory.NewAttemptStore()
	trips := memory.NewTripStore()

	finger := &sim.Fingerprint{Default: sensor.MatchResult{Matched: true}}
	camera := &sim.Camera{}
	door := &sim.Door{}
	cards := &sim.CardWriter{}

	auth := service.NewAuthenticator(cdc, pilgrims, finger, attempts, logger, m)
	recon := service.NewReconciler(camera, 3, 2, logger, m)
	ctrl := service.NewTripController(auth, recon, door, staticPIN{pin: testPIN}, trips,
		logger, m, service.TripControllerConfig{
			HeadcountWindows: 2,
			DoorTimeout:      50 * time.Millisecond,
			DoorPollInterval: 5 * time.Millisecond,
		})
	enroller := service.NewEnroller(cdc, pilgrims, finger, cards, logger)

	srv := httpapi.NewServer(httpapi.Dependencies{
		Logger:     logger,
		Addr:       "127.0.0.1:0",
		Controller: ctrl,
		Enroller:   enroller,
		Trips:      trips,
		Registry:   reg,
	})

	return &testEnv{server: srv, codec: cdc, camera: camera, door: door, finger: finger}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rr, req)
	return rr
}

func decodeResp(t *testing.T, rr *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.Unmarshal(rr.Body.Bytes(), dst); err != nil {
		t.Fatalf("decode response %q: %v", rr.Body.String(), err)
	}
}

func TestAPI_FullTripFlow(t *testing.T) {
	e := newTestEnv(t)

	// Enroll two pilgrims through the admin endpoint.
	for _, p := range []map[string]string{
		{"hajj_id": "HAJJ-0001", "name": "Ahmed Ali"},
		{"hajj_id": "HAJJ-0002", "name": "Fatima Noor"},
	} {
		rr := e.do(t, http.MethodPost, "/v1/enroll", p)
		if rr.Code != http.StatusCreated {
			t.Fatalf("enroll %v: status %d body %s", p, rr.Code, rr.Body.String())
		}
	}

	// Open boarding.
	rr := e.do(t, http.MethodPost, "/v1/boarding/open", map[string]string{"pin": testPIN})
	if rr.Code != http.StatusOK {
		t.Fatalf("boarding/open: status %d body %s", rr.Code, rr.Body.String())
	}

	// Authenticate both at the door, using the payloads written to the
	// cards during enrollment.
	for _, id := range []string{"HAJJ-0001", "HAJJ-0002"} {
		sealed := e.sealedFor(t, id)
		rr := e.do(t, http.MethodPost, "/v1/authenticate", map[string]string{"card_payload": sealed})
		if rr.Code != http.StatusOK {
			t.Fatalf("authenticate %s: status %d body %s", id, rr.Code, rr.Body.String())
		}
		var att struct {
			Outcome string `json:"outcome"`
		}
		decodeResp(t, rr, &att)
		if att.Outcome != string(types.OutcomeAccepted) {
			t.Fatalf("authenticate %s outcome = %s", id, att.Outcome)
		}
	}

	// Close boarding, count matches, door closed: the trip departs.
	rr = e.do(t, http.MethodPost, "/v1/boarding/close", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("boarding/close: status %d", rr.Code)
	}

	e.camera.Default = 2
	e.door.SetClosed(true)

	rr = e.do(t, http.MethodPost, "/v1/trip/start", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("trip/start: status %d body %s", rr.Code, rr.Body.String())
	}
	var sess struct {
		State         string `json:"state"`
		ManifestCount int    `json:"manifest_count"`
	}
	decodeResp(t, rr, &sess)
	if sess.State != string(types.TripInTrip) {
		t.Fatalf("trip state = %s, want in_trip", sess.State)
	}
	if sess.ManifestCount != 2 {
		t.Errorf("manifest_count = %d, want 2", sess.ManifestCount)
	}

	// End the trip and find it in the history.
	rr = e.do(t, http.MethodPost, "/v1/trip/end", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("trip/end: status %d body %s", rr.Code, rr.Body.String())
	}

	rr = e.do(t, http.MethodGet, "/v1/trips", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("trips: status %d", rr.Code)
	}
	var hist struct {
		Trips []struct {
			State string `json:"state"`
		} `json:"trips"`
	}
	decodeResp(t, rr, &hist)
	if len(hist.Trips) != 1 || hist.Trips[0].State != string(types.TripClosed) {
		t.Errorf("history = %+v, want one closed trip", hist.Trips)
	}
}

// sealedFor seals a fresh credential for hajjID with the same codec the
// server holds, standing in for the payload a reader would lift off the
// pilgrim's card.
func (e *testEnv) sealedFor(t *testing.T, hajjID string) string {
	t.Helper()
	nonce, err := codec.NewNonce()
	if err != nil {
		t.Fatalf("NewNonce: %v", err)
	}
	sealed, err := e.codec.Encrypt(types.Credential{HajjID: hajjID, IssueNonce: nonce})
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	return sealed
}

func TestAPI_BoardingOpenRejectsBadPIN(t *testing.T) {
	e := newTestEnv(t)

	rr := e.do(t, http.MethodPost, "/v1/boarding/open", map[string]string{"pin": "000000"})
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rr.Code)
	}
	var resp struct {
		Error string `json:"error"`
	}
	decodeResp(t, rr, &resp)
	if resp.Error != "pin_rejected" {
		t.Errorf("error = %q, want pin_rejected", resp.Error)
	}
}

func TestAPI_AuthenticateWithoutSession(t *testing.T) {
	e := newTestEnv(t)

	rr := e.do(t, http.MethodPost, "/v1/authenticate", map[string]string{"card_payload": "anything"})
	if rr.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rr.Code)
	}
}

func TestAPI_TamperedCardRejected(t *testing.T) {
	e := newTestEnv(t)

	rr := e.do(t, http.MethodPost, "/v1/enroll", map[string]string{"hajj_id": "HAJJ-0001", "name": "Ahmed Ali"})
	if rr.Code != http.StatusCreated {
		t.Fatalf("enroll: status %d", rr.Code)
	}
	rr = e.do(t, http.MethodPost, "/v1/boarding/open", map[string]string{"pin": testPIN})
	if rr.Code != http.StatusOK {
		t.Fatalf("boarding/open: status %d", rr.Code)
	}

	rr = e.do(t, http.MethodPost, "/v1/authenticate", map[string]string{"card_payload": "bm90IGEgcmVhbCBibG9i"})
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 with a rejection outcome", rr.Code)
	}
	var att struct {
		Outcome string `json:"outcome"`
	}
	decodeResp(t, rr, &att)
	if att.Outcome != string(types.OutcomeRejectedCard) {
		t.Errorf("outcome = %s, want rejected_card", att.Outcome)
	}
}

func TestAPI_TripStatusWithoutSession(t *testing.T) {
	e := newTestEnv(t)

	rr := e.do(t, http.MethodGet, "/v1/trip", nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rr.Code)
	}
}

func TestAPI_EnrollValidation(t *testing.T) {
	e := newTestEnv(t)

	rr := e.do(t, http.MethodPost, "/v1/enroll", map[string]string{"hajj_id": "", "name": "Ahmed Ali"})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("empty hajj_id: status = %d, want 400", rr.Code)
	}

	rr = e.do(t, http.MethodPost, "/v1/enroll", map[string]string{"hajj_id": "HAJJ-0001", "name": "Ahmed Ali"})
	if rr.Code != http.StatusCreated {
		t.Fatalf("enroll: status %d", rr.Code)
	}
	rr = e.do(t, http.MethodPost, "/v1/enroll", map[string]string{"hajj_id": "HAJJ-0001", "name": "Ahmed Ali"})
	if rr.Code != http.StatusConflict {
		t.Fatalf("duplicate enroll: status = %d, want 409", rr.Code)
	}
}

func TestAPI_UnknownFieldRejected(t *testing.T) {
	e := newTestEnv(t)

	rr := e.do(t, http.MethodPost, "/v1/boarding/open", map[string]string{"pin": testPIN, "extra": "field"})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
}

func TestAPI_MetricsExposed(t *testing.T) {
	e := newTestEnv(t)

	rr := e.do(t, http.MethodGet, "/metrics", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("metrics: status %d", rr.Code)
	}
}
