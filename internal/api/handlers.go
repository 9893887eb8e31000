package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	apperrors "induction-portal/internal/common/errors"
	"induction-portal/internal/intake"
	"induction-portal/internal/models"
	"induction-portal/internal/store"

	"github.com/gorilla/mux"
)

// maxBodyBytes caps request bodies; a full form is a few KB.
const maxBodyBytes = 1 << 20

func decode(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if err == io.EOF {
			return apperrors.NewValidationError("request body is empty")
		}
		return apperrors.NewValidationError("request body is not valid JSON: " + err.Error())
	}
	return nil
}

// detached keeps the request's values but not its cancellation, so a
// client that goes away mid-request does not abort a store write or a
// model call already under way.
func detached(r *http.Request) context.Context {
	return context.WithoutCancel(r.Context())
}

// ==========================
// Applicant routes
// ==========================

func (h *handler) submit(w http.ResponseWriter, r *http.Request) {
	var form intake.Form
	if err := decode(r, &form); err != nil {
		h.errors.Write(w, r, err)
		return
	}

	app, err := h.deps.Intake.Submit(detached(r), &form)
	if err != nil {
		h.errors.Write(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{
		"id":     app.ID,
		"status": string(app.Status),
	})
}

func (h *handler) validateSection(w http.ResponseWriter, r *http.Request) {
	raw := mux.Vars(r)["section"]
	section, ok := intake.ParseSection(raw)
	if !ok {
		h.errors.Write(w, r, apperrors.NewValidationError("unknown section "+raw, apperrors.FieldError{
			Field:   "section",
			Code:    apperrors.FieldInvalidFormat,
			Message: "Unknown form section",
		}))
		return
	}

	var form intake.Form
	if err := decode(r, &form); err != nil {
		h.errors.Write(w, r, err)
		return
	}

	if err := h.deps.Intake.CheckSection(r.Context(), section, &form); err != nil {
		h.errors.Write(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"section": section.String(),
		"valid":   true,
	})
}

// ==========================
// Reviewer routes
// ==========================

type listResponse struct {
	Applications []models.Application `json:"applications"`
	Count        int                  `json:"count"`
}

// list returns every application, sorted when unfiltered. Filtered lists
// come back oldest first.
func (h *handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	ctx := r.Context()

	var evaluated *bool
	if raw := q.Get("evaluated"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			h.errors.Write(w, r, apperrors.NewValidationError("evaluated must be true or false"))
			return
		}
		evaluated = &v
	}

	var (
		apps []models.Application
		err  error
	)
	switch status := strings.TrimSpace(q.Get("status")); {
	case status != "":
		if !models.Status(status).Valid() {
			h.errors.Write(w, r, apperrors.NewValidationError("unknown status "+status))
			return
		}
		apps, err = h.deps.Store.QueryWhere(ctx, "status", models.Status(status))
		if err == nil && evaluated != nil {
			apps = filterEvaluated(apps, *evaluated)
		}
	case evaluated != nil:
		apps, err = h.deps.Store.QueryWhere(ctx, "is_evaluated", *evaluated)
	default:
		apps, err = h.deps.Store.QueryAll(ctx, q.Get("orderBy"), store.ParseDirection(q.Get("direction")))
	}
	if err != nil {
		h.errors.Write(w, r, err)
		return
	}

	if apps == nil {
		apps = []models.Application{}
	}
	writeJSON(w, http.StatusOK, listResponse{Applications: apps, Count: len(apps)})
}

func filterEvaluated(apps []models.Application, evaluated bool) []models.Application {
	out := apps[:0]
	for _, a := range apps {
		if a.IsEvaluated == evaluated {
			out = append(out, a)
		}
	}
	return out
}

func (h *handler) get(w http.ResponseWriter, r *http.Request) {
	app, err := h.deps.Store.FindByID(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.errors.Write(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, app)
}

type transitionRequest struct {
	Status   models.Status `json:"status"`
	Reviewer string        `json:"reviewer"`
	Comment  *string       `json:"comment"`
}

func (h *handler) transition(w http.ResponseWriter, r *http.Request) {
	var req transitionRequest
	if err := decode(r, &req); err != nil {
		h.errors.Write(w, r, err)
		return
	}

	app, err := h.deps.Review.Transition(detached(r), mux.Vars(r)["id"], req.Status, req.Reviewer, req.Comment)
	if err != nil {
		h.errors.Write(w, r, err)
		return
	}
	h.logger.Info("status changed", map[string]interface{}{
		"applicationId": app.ID,
		"status":        string(app.Status),
		"login":         Reviewer(r.Context()),
	})
	writeJSON(w, http.StatusOK, app)
}

type selectRequest struct {
	Reviewer string `json:"reviewer"`
}

func (h *handler) selectApplication(w http.ResponseWriter, r *http.Request) {
	var req selectRequest
	// the body is optional here
	if r.ContentLength != 0 {
		if err := decode(r, &req); err != nil {
			h.errors.Write(w, r, err)
			return
		}
	}

	app, err := h.deps.Review.Select(detached(r), mux.Vars(r)["id"], req.Reviewer)
	if err != nil {
		h.errors.Write(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, app)
}

func (h *handler) evaluate(w http.ResponseWriter, r *http.Request) {
	res, err := h.deps.Evaluator.Evaluate(detached(r), mux.Vars(r)["id"])
	if err != nil {
		h.errors.Write(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *handler) batch(w http.ResponseWriter, r *http.Request) {
	summary, err := h.deps.Batch.EvaluateAllUnevaluated(detached(r))
	if err != nil {
		h.errors.Write(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}
