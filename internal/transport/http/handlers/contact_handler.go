package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/mhodzic/parley/internal/service"
	"github.com/mhodzic/parley/internal/transport/http/middleware"
	"github.com/mhodzic/parley/pkg/validator"
)

type ContactHandler struct {
	contactService *service.ContactService
	log            *slog.Logger
}

func NewContactHandler(contactService *service.ContactService, log *slog.Logger) *ContactHandler {
	return &ContactHandler{contactService: contactService, log: log}
}

func (h *ContactHandler) Add(w http.ResponseWriter, r *http.Request) {
	ownerID := middleware.GetUserID(r.Context())

	var input struct {
		Phone string `json:"phone"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}
	if errs := validator.ValidatePhone(input.Phone); errs.HasErrors() {
		writeValidationErrors(w, errs)
		return
	}

	contact, err := h.contactService.Add(r.Context(), ownerID, input.Phone)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrUserNotFound):
			writeError(w, http.StatusNotFound, "NOT_FOUND", "No user found with that phone number")
		case errors.Is(err, service.ErrSelfContact):
			writeError(w, http.StatusBadRequest, "SELF_CONTACT", "Cannot add yourself as a contact")
		default:
			h.log.Error("add contact failed", "error", err)
			writeError(w, http.StatusInternalServerError, "INTERNAL", "Something went wrong")
		}
		return
	}

	writeJSON(w, http.StatusCreated, contact)
}

func (h *ContactHandler) List(w http.ResponseWriter, r *http.Request) {
	ownerID := middleware.GetUserID(r.Context())

	contacts, err := h.contactService.List(r.Context(), ownerID, r.URL.Query().Get("q"))
	if err != nil {
		h.log.Error("list contacts failed", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL", "Something went wrong")
		return
	}

	writeJSON(w, http.StatusOK, contacts)
}

// Rename updates the caller's chosen display name for a contact.
func (h *ContactHandler) Rename(w http.ResponseWriter, r *http.Request) {
	ownerID := middleware.GetUserID(r.Context())
	userID := chi.URLParam(r, "id")

	var input struct {
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}
	if strings.TrimSpace(input.FirstName) == "" {
		writeError(w, http.StatusBadRequest, "MISSING_NAME", "first_name is required")
		return
	}

	contact, err := h.contactService.Rename(r.Context(), ownerID, userID, input.FirstName, input.LastName)
	if err != nil {
		if errors.Is(err, service.ErrContactNotFound) {
			writeError(w, http.StatusNotFound, "NOT_FOUND", "Contact not found")
		} else {
			h.log.Error("rename contact failed", "error", err)
			writeError(w, http.StatusInternalServerError, "INTERNAL", "Something went wrong")
		}
		return
	}

	writeJSON(w, http.StatusOK, contact)
}

func (h *ContactHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ownerID := middleware.GetUserID(r.Context())
	userID := chi.URLParam(r, "id")

	if err := h.contactService.Remove(r.Context(), ownerID, userID); err != nil {
		h.log.Error("delete contact failed", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL", "Something went wrong")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
