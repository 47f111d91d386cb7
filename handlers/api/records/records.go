// Package records serves create, read, update and delete endpoints for one
// declared entity on top of a core.RecordStore.
package records

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"entity-store/core"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/sirupsen/logrus"
)

type (
	Resource struct {
		Store    core.RecordStore
		Schema   core.Schema
		Notifier core.Notifier
		// MaxUploadBytes caps a single uploaded file. Zero disables the cap.
		MaxUploadBytes int64
	}

	ErrorResponse struct {
		Message string `json:"message"`
		Error   string `json:"error,omitempty"`
	}
)

// Routes mounts the resource on r, which is expected to sit at
// /api/<Schema.Name>.
func (res *Resource) Routes(r chi.Router) {
	r.Get("/", res.HandleList())
	r.Post("/", res.HandleCreate())
	r.Route("/{id}", func(r chi.Router) {
		r.Use(res.requireID)
		r.Get("/", res.HandleGet())
		r.Put("/", res.HandleUpdate())
		r.Delete("/", res.HandleDelete())
		if res.Schema.HasAttachment() {
			r.Get("/"+res.Schema.AttachmentField, res.HandleAttachment())
		}
	})
}

func (res *Resource) HandleCreate() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		in, err := res.readInput(w, r)
		if err != nil {
			res.inputError(w, r, err)
			return
		}
		record, err := res.Schema.ParseCreate(in)
		if err != nil {
			res.inputError(w, r, err)
			return
		}

		created, err := res.Store.Insert(r.Context(), record)
		if err != nil {
			res.storeError(w, r, "", err, "Something went wrong while creating "+res.Schema.Singular)
			return
		}
		res.notify(r, core.RecordCreated, created)

		render.Status(r, http.StatusCreated)
		render.JSON(w, r, map[string]any{
			"message":           res.title() + " created successfully",
			res.Schema.Singular: res.present(created),
		})
	}
}

func (res *Resource) HandleList() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		found, err := res.Store.FindAll(r.Context())
		if err != nil {
			res.storeError(w, r, "", err, "Error retrieving "+res.Schema.Plural)
			return
		}
		presented := make([]map[string]any, 0, len(found))
		for _, record := range found {
			presented = append(presented, res.present(record))
		}

		render.Status(r, http.StatusOK)
		render.JSON(w, r, map[string]any{
			"message":         capitalize(res.Schema.Plural) + " retrieved successfully",
			res.Schema.Plural: presented,
		})
	}
}

func (res *Resource) HandleGet() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		record, err := res.Store.FindID(r.Context(), id)
		if err != nil {
			res.storeError(w, r, id, err, "Error retrieving "+res.Schema.Singular)
			return
		}
		render.Status(r, http.StatusOK)
		render.JSON(w, r, res.present(record))
	}
}

func (res *Resource) HandleUpdate() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		in, err := res.readInput(w, r)
		if err != nil {
			res.inputError(w, r, err)
			return
		}
		patch, err := res.Schema.ParseUpdate(in)
		if err != nil {
			res.inputError(w, r, err)
			return
		}

		updated, err := res.Store.Update(r.Context(), id, patch)
		if err != nil {
			res.storeError(w, r, id, err, "Something went wrong while updating "+res.Schema.Singular)
			return
		}
		res.notify(r, core.RecordUpdated, updated)

		render.Status(r, http.StatusOK)
		render.JSON(w, r, map[string]any{
			"message":           res.title() + " updated successfully",
			res.Schema.Singular: res.present(updated),
		})
	}
}

func (res *Resource) HandleDelete() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		deleted, err := res.Store.Delete(r.Context(), id)
		if err != nil {
			res.storeError(w, r, id, err, "Something went wrong while deleting "+res.Schema.Singular)
			return
		}
		res.notify(r, core.RecordDeleted, deleted)

		render.Status(r, http.StatusOK)
		render.JSON(w, r, map[string]any{
			"message":           fmt.Sprintf("%s with id %s deleted", res.title(), id),
			res.Schema.Singular: res.present(deleted),
		})
	}
}

// HandleAttachment serves the raw attachment bytes.
func (res *Resource) HandleAttachment() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		record, err := res.Store.FindID(r.Context(), id)
		if err != nil {
			res.storeError(w, r, id, err, "Error retrieving "+res.Schema.AttachmentField)
			return
		}
		if record.Attachment == nil {
			respondError(w, r, http.StatusNotFound,
				fmt.Sprintf("%s with id %s has no %s", res.title(), id, res.Schema.AttachmentField), nil)
			return
		}
		contentType := record.Attachment.ContentType
		w.Header().Set("Content-Type", contentType)
		w.Header().Set("Content-Length", strconv.Itoa(len(record.Attachment.Data)))
		w.Header().Set("X-Content-Type-Options", "nosniff")
		if !inlineType(contentType) {
			w.Header().Set("Content-Disposition", "attachment")
		}
		w.WriteHeader(http.StatusOK)
		w.Write(record.Attachment.Data)
	}
}

// inlineType reports whether an attachment may be rendered by the browser.
// Anything else is served as a download.
func inlineType(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return strings.HasPrefix(mediaType, "image/") && mediaType != "image/svg+xml"
}

// requireID answers 404 for identifiers no store could have issued.
func (res *Resource) requireID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := chi.URLParam(r, "id"); !core.ValidID(id) {
			res.notFound(w, r, id)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// present renders a record for responses. The attachment becomes a data URI
// so the field can be used directly as an image source.
func (res *Resource) present(record *core.Record) map[string]any {
	out := make(map[string]any, len(record.Fields)+4)
	for name, value := range record.Fields {
		out[name] = value
	}
	if res.Schema.HasAttachment() && record.Attachment != nil {
		out[res.Schema.AttachmentField] = core.DataURI(record.Attachment)
	}
	out["id"] = record.ID
	out["createdAt"] = record.CreatedAt
	out["updatedAt"] = record.UpdatedAt
	return out
}

func (res *Resource) notify(r *http.Request, eventType core.EventType, record *core.Record) {
	err := res.Notifier.Notify(r.Context(), core.Event{
		Type:       eventType,
		Collection: res.Schema.Collection,
		ID:         record.ID,
		Record:     record,
	})
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"collection": res.Schema.Collection,
			"record_id":  record.ID,
			"event":      eventType,
			"error":      err,
		}).Warn("Failed to publish record event")
	}
}

func (res *Resource) inputError(w http.ResponseWriter, r *http.Request, err error) {
	var validation *core.ValidationError
	switch {
	case errors.As(err, &validation):
		respondError(w, r, http.StatusBadRequest, "All required fields must be provided", err)
	case errors.Is(err, errUploadTooLarge):
		respondError(w, r, http.StatusRequestEntityTooLarge, "Uploaded file is too large", err)
	default:
		var body *bodyError
		if errors.As(err, &body) {
			respondError(w, r, http.StatusBadRequest, "Malformed request body", err)
			return
		}
		logrus.WithFields(logrus.Fields{"collection": res.Schema.Collection, "error": err}).Error("Failed to read request")
		respondError(w, r, http.StatusInternalServerError, "Failed to read request", err)
	}
}

func (res *Resource) storeError(w http.ResponseWriter, r *http.Request, id string, err error, message string) {
	if errors.Is(err, core.ErrNotFound) {
		res.notFound(w, r, id)
		return
	}
	logrus.WithFields(logrus.Fields{
		"collection": res.Schema.Collection,
		"record_id":  id,
		"error":      err,
	}).Error(message)
	if errors.Is(r.Context().Err(), context.DeadlineExceeded) {
		// The timeout middleware answers 504.
		return
	}
	respondError(w, r, http.StatusInternalServerError, message, err)
}

func (res *Resource) notFound(w http.ResponseWriter, r *http.Request, id string) {
	respondError(w, r, http.StatusNotFound, fmt.Sprintf("%s with id %s not found", res.title(), id), nil)
}

func (res *Resource) title() string {
	return capitalize(res.Schema.Singular)
}

func respondError(w http.ResponseWriter, r *http.Request, status int, message string, err error) {
	resp := ErrorResponse{Message: message}
	if err != nil {
		resp.Error = err.Error()
	}
	render.Status(r, status)
	render.JSON(w, r, resp)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
