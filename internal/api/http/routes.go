package httpapi

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"log"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"

	"github.com/airsense/airsense/internal/advisory"
	advproviders "github.com/airsense/airsense/internal/advisory/providers"
	"github.com/airsense/airsense/internal/broadcast"
	"github.com/airsense/airsense/internal/profile"
	"github.com/airsense/airsense/internal/reading"
	"github.com/airsense/airsense/internal/store"
)

var validate = validator.New()

// EmergencyThreshold is the predicted IAQ at or above which the
// emergency check trips.
const EmergencyThreshold = 300

// recentWindow is how many trailing readings feed the advisory context.
const recentWindow = 16

// Deps bundles the collaborators the HTTP handlers need.
type Deps struct {
	Ingest      *reading.Service
	Readings    *store.ReadingStore
	Profiles    *store.ProfileStore
	Broadcaster *broadcast.Broadcaster
	Advisor     *advisory.Orchestrator

	// IAQOffset is the named display calibration applied to outbound
	// predicted IAQ values. Exports dump stored values untouched.
	IAQOffset float64
}

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, deps Deps) {
	v1 := app.Group("/api/v1")

	v1.Post("/readings", deps.handleIngest)
	v1.Get("/readings/latest", deps.handleLatest)
	v1.Get("/readings/history", deps.handleHistory)
	v1.Get("/readings/stream", deps.handleStream)
	v1.Get("/readings/export", deps.handleExport)

	v1.Post("/chat", deps.handleChat)
	v1.Post("/advice", deps.handleAdvice)
	v1.Get("/advice", deps.handleAdvice)

	v1.Get("/profile", deps.handleProfileGet)
	v1.Put("/profile", deps.handleProfilePut)
	v1.Delete("/profile", deps.handleProfileDelete)

	v1.Get("/emergency", deps.handleEmergency)
}

func (d Deps) handleIngest(c *fiber.Ctx) error {
	var payload reading.IngestPayload
	if err := c.BodyParser(&payload); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "malformed reading payload: "+err.Error())
	}
	if err := validate.Struct(payload); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	r, err := d.Ingest.Ingest(c.Context(), payload)
	if err != nil {
		var verr *reading.ValidationError
		if errors.As(err, &verr) {
			return fiber.NewError(fiber.StatusBadRequest, verr.Error())
		}
		return fiber.NewError(fiber.StatusInternalServerError, "failed to store reading")
	}

	return c.Status(fiber.StatusCreated).JSON(r.Calibrated(d.IAQOffset))
}

func (d Deps) handleLatest(c *fiber.Ctx) error {
	r, err := d.Readings.Latest(c.Context())
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "no readings stored yet")
		}
		return fiber.NewError(fiber.StatusInternalServerError, "failed to read latest reading")
	}
	return c.JSON(r.Calibrated(d.IAQOffset))
}

func (d Deps) handleHistory(c *fiber.Ctx) error {
	limit := store.DefaultHistoryLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "limit must be an integer")
		}
		limit = store.ClampLimit(n)
	}

	rows, err := d.Readings.Range(c.Context(), limit)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to read history")
	}

	out := make([]reading.Reading, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.Calibrated(d.IAQOffset))
	}
	return c.JSON(out)
}

// handleStream is the long-lived SSE endpoint: an initial keepalive on
// connect, then one `reading` event per stored reading.
func (d Deps) handleStream(c *fiber.Ctx) error {
	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")

	sess := d.Broadcaster.Subscribe()

	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		defer d.Broadcaster.Unsubscribe(sess.ID)

		for event := range sess.Events() {
			if _, err := w.Write(event); err != nil {
				return
			}
			if err := w.Flush(); err != nil {
				return
			}
		}
	}))
	return nil
}

var exportHeader = []string{"id", "ts", "pm25", "voc", "c2h5oh", "co", "predicted_iaq", "current_iaq"}

// handleExport streams the full chronological log as CSV. Once headers
// are committed a storage failure can only terminate the stream; no
// success is claimed for a truncated dump.
func (d Deps) handleExport(c *fiber.Ctx) error {
	c.Set(fiber.HeaderContentType, "text/csv")
	c.Set(fiber.HeaderContentDisposition, `attachment; filename="readings.csv"`)

	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		cw := csv.NewWriter(w)
		if err := cw.Write(exportHeader); err != nil {
			return
		}

		err := d.Readings.ForEach(context.Background(), func(r *reading.Reading) error {
			return cw.Write(exportRow(r))
		})
		if err != nil {
			log.Printf("export aborted mid-stream: %v", err)
			return
		}
		cw.Flush()
	}))
	return nil
}

func exportRow(r *reading.Reading) []string {
	current := ""
	if r.CurrentIAQ != nil {
		current = strconv.FormatFloat(*r.CurrentIAQ, 'f', -1, 64)
	}
	return []string{
		strconv.FormatUint(uint64(r.ID), 10),
		strconv.FormatInt(r.TS, 10),
		strconv.FormatFloat(r.PM25, 'f', -1, 64),
		strconv.FormatFloat(r.VOC, 'f', -1, 64),
		strconv.FormatFloat(r.Ethanol, 'f', -1, 64),
		strconv.FormatFloat(r.CO, 'f', -1, 64),
		strconv.FormatFloat(r.PredictedIAQ, 'f', -1, 64),
		current,
	}
}

// chatRequest is the chat payload. Latest and recent data are optional;
// when omitted the handler reads them from the store.
type chatRequest struct {
	Question   string            `json:"question" validate:"required"`
	RecentData []reading.Reading `json:"recentData"`
	Latest     *reading.Reading  `json:"latest"`
}

type advisoryMeta struct {
	Source         string `json:"source"`
	Model          string `json:"model,omitempty"`
	ExternalUsed   bool   `json:"external_used"`
	Personalized   bool   `json:"personalized"`
	ProfileSummary string `json:"profile_summary,omitempty"`
	Blocked        bool   `json:"blocked,omitempty"`
}

func metaOf(res *advisory.Result) advisoryMeta {
	return advisoryMeta{
		Source:         res.Source,
		Model:          res.Model,
		ExternalUsed:   res.ExternalUsed,
		Personalized:   res.Personalized,
		ProfileSummary: res.ProfileSummary,
		Blocked:        res.Blocked,
	}
}

func (d Deps) handleChat(c *fiber.Ctx) error {
	var req chatRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "malformed chat payload: "+err.Error())
	}
	if err := validate.Struct(req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	latest, recent, err := d.resolveContext(c.Context(), req.Latest, req.RecentData)
	if err != nil {
		return err
	}

	res, err := d.Advisor.Chat(c.Context(), req.Question, latest, recent)
	if err != nil {
		var perr *advproviders.ProviderError
		if errors.As(err, &perr) {
			return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
				"ok":    false,
				"error": perr.Error(),
			})
		}
		return fiber.NewError(fiber.StatusInternalServerError, "failed to generate answer")
	}

	return c.JSON(fiber.Map{
		"ok":     true,
		"answer": res.Answer,
		"meta":   metaOf(res),
	})
}

// adviceRequest is the lifestyle advice payload; both fields optional.
type adviceRequest struct {
	Latest *reading.Reading  `json:"latest"`
	Recent []reading.Reading `json:"recent"`
}

func (d Deps) handleAdvice(c *fiber.Ctx) error {
	var req adviceRequest
	if c.Method() == fiber.MethodPost && len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "malformed advice payload: "+err.Error())
		}
	}

	latest, recent, err := d.resolveContext(c.Context(), req.Latest, req.Recent)
	if err != nil {
		return err
	}

	res, err := d.Advisor.Advice(c.Context(), latest, recent)
	if err != nil {
		var perr *advproviders.ProviderError
		if errors.As(err, &perr) {
			return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
				"ok":    false,
				"error": perr.Error(),
			})
		}
		return fiber.NewError(fiber.StatusInternalServerError, "failed to generate advice")
	}

	return c.JSON(fiber.Map{
		"ok": true,
		"advice": fiber.Map{
			"text":   res.Answer,
			"source": res.Source,
			"tips":   res.Tips,
		},
		"meta": metaOf(res),
	})
}

// resolveContext fills in latest/recent from the store when the caller
// did not supply them. A completely empty store is fine; the advisory
// pipeline handles a nil latest reading.
func (d Deps) resolveContext(ctx context.Context, latest *reading.Reading, recent []reading.Reading) (*reading.Reading, []reading.Reading, error) {
	if latest == nil {
		stored, err := d.Readings.Latest(ctx)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return nil, nil, fiber.NewError(fiber.StatusInternalServerError, "failed to read latest reading")
		}
		latest = stored
	}
	if recent == nil {
		stored, err := d.Readings.Range(ctx, recentWindow)
		if err != nil {
			return nil, nil, fiber.NewError(fiber.StatusInternalServerError, "failed to read recent readings")
		}
		recent = stored
	}
	return latest, recent, nil
}

// profileRequest is the profile save payload.
type profileRequest struct {
	OwnerName   string              `json:"owner_name"`
	Members     []profile.Member    `json:"members" validate:"dive"`
	Preferences profile.Preferences `json:"preferences"`
}

func (d Deps) handleProfileGet(c *fiber.Ctx) error {
	prof, err := d.Profiles.Latest(c.Context())
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return c.JSON(fiber.Map{"profile": nil})
		}
		return fiber.NewError(fiber.StatusInternalServerError, "failed to read profile")
	}
	return c.JSON(fiber.Map{"profile": prof})
}

func (d Deps) handleProfilePut(c *fiber.Ctx) error {
	var req profileRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "malformed profile payload: "+err.Error())
	}
	if err := validate.Struct(req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	prof := &profile.Profile{
		OwnerName:   req.OwnerName,
		Members:     req.Members,
		Preferences: req.Preferences,
	}
	if err := d.Profiles.Save(c.Context(), prof); err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to save profile")
	}
	return c.JSON(fiber.Map{"ok": true})
}

func (d Deps) handleProfileDelete(c *fiber.Ctx) error {
	if err := d.Profiles.Delete(c.Context()); err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to delete profile")
	}
	return c.JSON(fiber.Map{"ok": true})
}

func (d Deps) handleEmergency(c *fiber.Ctx) error {
	r, err := d.Readings.Latest(c.Context())
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return c.JSON(fiber.Map{
				"emergency": false,
				"message":   "no readings stored yet",
			})
		}
		return fiber.NewError(fiber.StatusInternalServerError, "failed to read latest reading")
	}

	if r.PredictedIAQ >= EmergencyThreshold {
		return c.JSON(fiber.Map{
			"emergency": true,
			"message":   "predicted air quality is at emergency levels; ventilate immediately",
		})
	}
	return c.JSON(fiber.Map{
		"emergency": false,
		"message":   "air quality is below the emergency threshold",
	})
}
