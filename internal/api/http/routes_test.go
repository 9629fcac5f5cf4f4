package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"github.com/solas-app/solas-agent/internal/environment"
	"github.com/solas-app/solas-agent/internal/identity"
	"github.com/solas-app/solas-agent/internal/lifecycle"
	"github.com/solas-app/solas-agent/internal/location"
	"github.com/solas-app/solas-agent/internal/report"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

type fakeSampler struct{}

func (fakeSampler) RequestForegroundPermission(context.Context) error { return nil }
func (fakeSampler) RequestBackgroundPermission(context.Context) error { return nil }
func (fakeSampler) CurrentPosition(context.Context) (location.Position, error) {
	acc := 5.2
	return location.Position{Latitude: 53.35, Longitude: -6.26, AccuracyM: &acc}, nil
}
func (fakeSampler) NetworkType(context.Context) (string, error) {
	return location.NetworkWifi, nil
}

type fakeEnvironment struct{}

func (fakeEnvironment) Fetch(context.Context, float64, float64) (environment.Snapshot, error) {
	return environment.Snapshot{
		Condition: "Clear", TemperatureC: 18, UVIndex: 3,
		Sunrise: "6:02 AM", Sunset: "8:45 PM",
	}, nil
}

type fakeReporter struct{}

func (fakeReporter) Report(context.Context, report.Observation) (bool, error) {
	return true, nil
}

type fakeVisualiser struct {
	feedback []bool
}

func (f *fakeVisualiser) DailyVisualisation(_ context.Context, _, _, _, _ string) (report.Visualisation, error) {
	return report.Visualisation{Image: "aGVsbG8="}, nil
}

func (f *fakeVisualiser) WeeklyGraph(_ context.Context, _, _, _, _ string) (report.Visualisation, error) {
	return report.Visualisation{Image: "aGVsbG8=", Days: []string{"Mon"}, Seconds: []float64{60}}, nil
}

func (f *fakeVisualiser) SubmitFeedback(_ context.Context, _ string, correct bool, _ *float64, _ string) error {
	f.feedback = append(f.feedback, correct)
	return nil
}

// settledController builds a controller that has completed one cycle.
func settledController(t *testing.T) *lifecycle.Controller {
	t.Helper()

	ctrl := lifecycle.New(lifecycle.Config{
		Identity:    identity.NewProvider(identity.NewMemoryStore(), testLogger()),
		Sampler:     fakeSampler{},
		Environment: fakeEnvironment{},
		Reporter:    fakeReporter{},
		Logger:      testLogger(),
	})
	if err := ctrl.Start(context.Background()); err != nil {
		t.Fatalf("start controller: %v", err)
	}
	ctrl.Stop()
	return ctrl
}

func idleController() *lifecycle.Controller {
	return lifecycle.New(lifecycle.Config{
		Identity:    identity.NewProvider(identity.NewMemoryStore(), testLogger()),
		Sampler:     fakeSampler{},
		Environment: fakeEnvironment{},
		Reporter:    fakeReporter{},
		Logger:      testLogger(),
	})
}

func newApp(ctrl *lifecycle.Controller, vis Visualiser) *fiber.App {
	app := fiber.New()
	RegisterRoutes(app, Deps{
		Controller: ctrl,
		Visualiser: vis,
		Logger:     testLogger(),
	})
	return app
}

func TestStatusExposesSettledState(t *testing.T) {
	app := newApp(settledController(t), &fakeVisualiser{})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/status", nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var body struct {
		State struct {
			IsOutside *bool  `json:"is_outside"`
			Sunrise   string `json:"sunrise"`
			Loading   bool   `json:"loading"`
		} `json:"state"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.State.IsOutside == nil || !*body.State.IsOutside {
		t.Error("expected a settled outside verdict")
	}
	if body.State.Sunrise != "06:02" {
		t.Errorf("sunrise = %q, want converted value", body.State.Sunrise)
	}
	if body.State.Loading {
		t.Error("expected loading=false")
	}
}

func TestFeedbackValidation(t *testing.T) {
	app := newApp(settledController(t), &fakeVisualiser{})

	// Missing correct_result must be rejected.
	req := httptest.NewRequest(http.MethodPost, "/api/v1/feedback", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestFeedbackForwardsExplicitFalse(t *testing.T) {
	vis := &fakeVisualiser{}
	app := newApp(settledController(t), vis)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/feedback", strings.NewReader(`{"correct_result": false}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if len(vis.feedback) != 1 || vis.feedback[0] != false {
		t.Fatalf("expected one false feedback, got %v", vis.feedback)
	}
}

func TestFeedbackWithoutIdentity(t *testing.T) {
	app := newApp(idleController(), &fakeVisualiser{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/feedback", strings.NewReader(`{"correct_result": true}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", resp.StatusCode)
	}
}

func TestVisualisationBeforeFirstCycle(t *testing.T) {
	app := newApp(idleController(), &fakeVisualiser{})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/visualisation/daily", nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", resp.StatusCode)
	}
}

func TestWeeklyVisualisation(t *testing.T) {
	app := newApp(settledController(t), &fakeVisualiser{})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/visualisation/weekly", nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var body struct {
		Image   string    `json:"image"`
		Days    []string  `json:"days"`
		Seconds []float64 `json:"seconds"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Image == "" || len(body.Days) != 1 || len(body.Seconds) != 1 {
		t.Fatalf("unexpected body: %+v", body)
	}
}

func TestRefreshReturnsAccepted(t *testing.T) {
	app := newApp(settledController(t), &fakeVisualiser{})

	resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/api/v1/refresh", nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}
}
