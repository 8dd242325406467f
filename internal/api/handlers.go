package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/yanizio/knit/internal/form"
	"github.com/yanizio/knit/internal/lead"
	"github.com/yanizio/knit/internal/metrics"
	"github.com/yanizio/knit/internal/requestinfo"
	"github.com/yanizio/knit/internal/submit"
	"github.com/yanizio/knit/internal/validation"
)

/*──────────────────────────── payloads ─────────────────────────────────────*/

type instanceResponse struct {
	ID    string           `json:"id"`
	Form  *form.Definition `json:"form,omitempty"`
	State form.Snapshot    `json:"state"`
}

type changeRequest struct {
	Value any `json:"value"`
}

type submitRequest struct {
	FormatForCRM bool `json:"formatForCRM"`
}

type submitResponse struct {
	Status  form.Status       `json:"status"`
	Errors  validation.Errors `json:"errors,omitempty"`
	Focus   string            `json:"focus,omitempty"`
	CRMData lead.Lead         `json:"crmData,omitempty"`
	State   *form.Snapshot    `json:"state,omitempty"`
}

/*──────────────────────────── ops ──────────────────────────────────────────*/

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"instances": h.cfg.Registry.Len(),
	})
}

/*──────────────────────────── forms ────────────────────────────────────────*/

func (h *Handler) listForms(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.cfg.Catalog.List())
}

func (h *Handler) createInstance(w http.ResponseWriter, r *http.Request) {
	def, err := h.cfg.Catalog.Get(chi.URLParam(r, "formID"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	var opts form.Options
	if h.cfg.Options != nil {
		opts = h.cfg.Options(def)
	}
	ctrl := form.New(def, opts)

	id, err := h.cfg.Registry.Add(ctrl)
	if err != nil {
		h.log.Errorw("instance create failed", "form", def.ID, "err", err)
		writeError(w, http.StatusInternalServerError, "could not create form instance")
		return
	}
	writeJSON(w, http.StatusCreated, instanceResponse{ID: id, Form: def, State: ctrl.Snapshot()})
}

/*──────────────────────────── instances ────────────────────────────────────*/

// instance resolves {id} or writes a 404.
func (h *Handler) instance(w http.ResponseWriter, r *http.Request) (string, *form.Controller, bool) {
	id := chi.URLParam(r, "id")
	ctrl, err := h.cfg.Registry.Get(id)
	if err != nil {
		writeError(w, http.StatusNotFound, "unknown form instance")
		return "", nil, false
	}
	return id, ctrl, true
}

func (h *Handler) getInstance(w http.ResponseWriter, r *http.Request) {
	id, ctrl, ok := h.instance(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, instanceResponse{ID: id, State: ctrl.Snapshot()})
}

func (h *Handler) changeField(w http.ResponseWriter, r *http.Request) {
	id, ctrl, ok := h.instance(w, r)
	if !ok {
		return
	}
	var body changeRequest
	if err := decodeBody(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := ctrl.HandleChange(r.Context(), chi.URLParam(r, "field"), body.Value); err != nil {
		if errors.Is(err, form.ErrUnknownField) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, instanceResponse{ID: id, State: ctrl.Snapshot()})
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request) {
	_, ctrl, ok := h.instance(w, r)
	if !ok {
		return
	}
	var body submitRequest
	if err := decodeBody(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	start := time.Now()
	res := ctrl.HandleSubmit(r.Context(), form.SubmitConfig{
		FormatForCRM: body.FormatForCRM,
		Env:          requestinfo.Environment(r),
		OnError: func(err error) {
			var se *submit.StatusError
			if errors.As(err, &se) {
				h.log.Warnw("submission rejected upstream", "form", ctrl.Definition().ID, "status", se.StatusCode)
			}
		},
	})
	metrics.SubmitDuration.
		WithLabelValues(ctrl.Definition().ID, string(res.Status)).
		Observe(time.Since(start).Seconds())

	// Spam looks like success to the sender.
	if res.Status == form.StatusSpam {
		writeJSON(w, http.StatusOK, submitResponse{Status: form.StatusSubmitted})
		return
	}

	snap := ctrl.Snapshot()
	out := submitResponse{Status: res.Status, Errors: res.Errors, Focus: res.Focus, State: &snap}

	switch res.Status {
	case form.StatusSubmitted:
		out.CRMData = res.Lead
		writeJSON(w, http.StatusOK, out)
	case form.StatusInvalid:
		writeJSON(w, http.StatusUnprocessableEntity, out)
	case form.StatusBusy:
		writeJSON(w, http.StatusConflict, out)
	default:
		writeJSON(w, http.StatusBadGateway, out)
	}
}

func (h *Handler) reset(w http.ResponseWriter, r *http.Request) {
	id, ctrl, ok := h.instance(w, r)
	if !ok {
		return
	}
	ctrl.Reset()
	writeJSON(w, http.StatusOK, instanceResponse{ID: id, State: ctrl.Snapshot()})
}

func (h *Handler) abandon(w http.ResponseWriter, r *http.Request) {
	_, ctrl, ok := h.instance(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"emitted": ctrl.TrackAbandonment(r.Context())})
}

func (h *Handler) unload(w http.ResponseWriter, r *http.Request) {
	_, ctrl, ok := h.instance(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"emitted": ctrl.Unload(r.Context())})
}

func (h *Handler) deleteInstance(w http.ResponseWriter, r *http.Request) {
	if err := h.cfg.Registry.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, http.StatusNotFound, "unknown form instance")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

/*──────────────────────────── session ──────────────────────────────────────*/

func (h *Handler) pageView(w http.ResponseWriter, r *http.Request) {
	n := lead.TrackPageView(requestinfo.Environment(r).Storage())
	writeJSON(w, http.StatusOK, map[string]int{"pageViews": n})
}
