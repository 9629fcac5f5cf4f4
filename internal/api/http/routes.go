// Package httpapi exposes the agent's state over a small local HTTP
// surface: current status, manual refresh, visualisations, and feedback.
package httpapi

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/kelvins/geocoder"
	"github.com/sirupsen/logrus"

	"github.com/solas-app/solas-agent/internal/lifecycle"
	"github.com/solas-app/solas-agent/internal/report"
	"github.com/solas-app/solas-agent/internal/timeutil"
)

var validate = validator.New()

// Visualiser is the slice of the reporting client the HTTP surface needs.
type Visualiser interface {
	DailyVisualisation(ctx context.Context, userID, sunrise, sunset, deviceTime string) (report.Visualisation, error)
	WeeklyGraph(ctx context.Context, userID, sunrise, sunset, deviceTime string) (report.Visualisation, error)
	SubmitFeedback(ctx context.Context, userID string, correct bool, accuracy *float64, deviceTime string) error
}

// Deps bundles the collaborators the routes need.
type Deps struct {
	Controller     *lifecycle.Controller
	Visualiser     Visualiser
	GeocoderAPIKey string
	Logger         *logrus.Logger
	Now            func() time.Time
}

type handlers struct {
	Deps

	// last reverse-geocoded locality, so status polling does not turn
	// into a geocoding request per hit.
	geoMu       sync.Mutex
	geoLat      float64
	geoLon      float64
	geoLocality string
}

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, deps Deps) {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Logger == nil {
		deps.Logger = logrus.New()
	}
	if deps.GeocoderAPIKey != "" {
		geocoder.ApiKey = deps.GeocoderAPIKey
	}

	h := &handlers{Deps: deps}

	v1 := app.Group("/api/v1")
	v1.Get("/status", h.status)
	v1.Post("/refresh", h.refresh)
	v1.Post("/feedback", h.feedback)
	v1.Get("/visualisation/daily", h.daily)
	v1.Get("/visualisation/weekly", h.weekly)
}

func (h *handlers) status(c *fiber.Ctx) error {
	st := h.Controller.State()

	resp := fiber.Map{"state": st}
	if locality := h.locality(st); locality != "" {
		resp["locality"] = locality
	}
	return c.JSON(resp)
}

// locality reverse-geocodes the last fix when a geocoder key is configured.
// Best effort only; failures are logged and the field is omitted.
func (h *handlers) locality(st lifecycle.State) string {
	if h.GeocoderAPIKey == "" || st.Latitude == nil || st.Longitude == nil {
		return ""
	}

	h.geoMu.Lock()
	defer h.geoMu.Unlock()

	if h.geoLocality != "" && h.geoLat == *st.Latitude && h.geoLon == *st.Longitude {
		return h.geoLocality
	}

	addresses, err := geocoder.GeocodingReverse(geocoder.Location{
		Latitude:  *st.Latitude,
		Longitude: *st.Longitude,
	})
	if err != nil || len(addresses) == 0 {
		h.Logger.WithError(err).Debug("reverse geocoding failed")
		return ""
	}

	locality := addresses[0].City
	if locality == "" {
		locality = addresses[0].FormattedAddress
	}

	h.geoLat, h.geoLon, h.geoLocality = *st.Latitude, *st.Longitude, locality
	return locality
}

func (h *handlers) refresh(c *fiber.Ctx) error {
	if h.Controller.Busy() {
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
			"accepted":   false,
			"refreshing": true,
		})
	}

	go h.Controller.Refresh(context.Background())

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"accepted":   true,
		"refreshing": true,
	})
}

// feedbackRequest is the body for POST /feedback. CorrectResult is a
// pointer so that an explicit `false` survives required-validation.
type feedbackRequest struct {
	CorrectResult *bool `json:"correct_result" validate:"required"`
}

func (h *handlers) feedback(c *fiber.Ctx) error {
	var req feedbackRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "request body must be JSON")
	}
	if err := validate.Struct(req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	st := h.Controller.State()
	if st.UserID == "" {
		return fiber.NewError(fiber.StatusServiceUnavailable, "device identity not resolved yet")
	}

	err := h.Visualiser.SubmitFeedback(c.Context(), st.UserID, *req.CorrectResult,
		st.GPSAccuracy, timeutil.FormatDeviceTime(h.Now()))
	if err != nil {
		return upstreamError(err)
	}

	return c.JSON(fiber.Map{"submitted": true})
}

func (h *handlers) daily(c *fiber.Ctx) error {
	vis, err := h.visualisation(c, h.Visualiser.DailyVisualisation)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"image": vis.Image})
}

func (h *handlers) weekly(c *fiber.Ctx) error {
	vis, err := h.visualisation(c, h.Visualiser.WeeklyGraph)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"image":   vis.Image,
		"days":    vis.Days,
		"seconds": vis.Seconds,
	})
}

type visualisationFn func(ctx context.Context, userID, sunrise, sunset, deviceTime string) (report.Visualisation, error)

func (h *handlers) visualisation(c *fiber.Ctx, fetch visualisationFn) (report.Visualisation, error) {
	st := h.Controller.State()
	if st.UserID == "" {
		return report.Visualisation{}, fiber.NewError(fiber.StatusServiceUnavailable, "device identity not resolved yet")
	}
	if st.Sunrise == "" || st.Sunset == "" {
		return report.Visualisation{}, fiber.NewError(fiber.StatusServiceUnavailable, "no settled cycle yet")
	}

	vis, err := fetch(c.Context(), st.UserID, st.Sunrise, st.Sunset, timeutil.FormatDeviceTime(h.Now()))
	if err != nil {
		return report.Visualisation{}, upstreamError(err)
	}
	return vis, nil
}

func upstreamError(err error) error {
	if errors.Is(err, report.ErrMalformedResponse) {
		return fiber.NewError(fiber.StatusBadGateway, "reporting server returned an unexpected response")
	}
	if errors.Is(err, report.ErrNetwork) {
		return fiber.NewError(fiber.StatusBadGateway, "reporting server unreachable")
	}
	return fiber.NewError(fiber.StatusInternalServerError, err.Error())
}
