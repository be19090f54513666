package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/mhodzic/parley/internal/domain"
	"github.com/mhodzic/parley/internal/service"
	"github.com/mhodzic/parley/internal/storage"
	"github.com/mhodzic/parley/internal/transport/http/middleware"
)

const maxMediaUpload = 25 << 20 // 25 MiB

type ConversationHandler struct {
	directory *service.DirectoryService
	messages  *service.MessageService
	blobs     storage.Client
	log       *slog.Logger
}

func NewConversationHandler(directory *service.DirectoryService, messages *service.MessageService, blobs storage.Client, log *slog.Logger) *ConversationHandler {
	return &ConversationHandler{
		directory: directory,
		messages:  messages,
		blobs:     blobs,
		log:       log,
	}
}

// Ensure resolves (and creates on first contact) the conversation between the
// caller and another user.
func (h *ConversationHandler) Ensure(w http.ResponseWriter, r *http.Request) {
	selfID := middleware.GetUserID(r.Context())

	var input struct {
		UserID string `json:"user_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}
	if input.UserID == "" {
		writeError(w, http.StatusBadRequest, "MISSING_USER_ID", "user_id is required")
		return
	}

	conv, err := h.directory.EnsureConversation(r.Context(), selfID, input.UserID)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidParticipants):
			writeError(w, http.StatusBadRequest, "INVALID_PARTICIPANTS", "Cannot start a conversation with yourself")
		case errors.Is(err, service.ErrUserNotFound):
			writeError(w, http.StatusNotFound, "NOT_FOUND", "User not found")
		default:
			h.log.Error("ensure conversation failed", "error", err)
			writeError(w, http.StatusInternalServerError, "INTERNAL", "Something went wrong")
		}
		return
	}

	writeJSON(w, http.StatusOK, conv)
}

func (h *ConversationHandler) List(w http.ResponseWriter, r *http.Request) {
	selfID := middleware.GetUserID(r.Context())

	items, err := h.directory.ListConversations(r.Context(), selfID)
	if err != nil {
		h.log.Error("list conversations failed", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL", "Something went wrong")
		return
	}

	writeJSON(w, http.StatusOK, items)
}

func (h *ConversationHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	selfID := middleware.GetUserID(r.Context())
	convID := chi.URLParam(r, "id")

	msgs, err := h.messages.ListMessages(r.Context(), convID, selfID)
	if err != nil {
		h.writeConversationError(w, err, "list messages")
		return
	}

	writeJSON(w, http.StatusOK, msgs)
}

// SendMessage appends a message. The payload shape must match the kind; an
// omitted kind defaults to text.
func (h *ConversationHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	selfID := middleware.GetUserID(r.Context())
	convID := chi.URLParam(r, "id")

	var input struct {
		Kind    domain.MessageKind `json:"kind"`
		Payload domain.Payload     `json:"payload"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}
	if input.Kind == "" {
		input.Kind = domain.KindText
	}
	if input.Kind == domain.KindText {
		input.Payload.Text = strings.TrimSpace(input.Payload.Text)
	}

	msg, err := h.messages.Append(r.Context(), convID, selfID, input.Kind, input.Payload)
	if err != nil {
		h.writeConversationError(w, err, "send message")
		return
	}

	writeJSON(w, http.StatusCreated, msg)
}

// SendMedia uploads a blob to the object store and appends the matching media
// message with its public URL.
func (h *ConversationHandler) SendMedia(w http.ResponseWriter, r *http.Request) {
	selfID := middleware.GetUserID(r.Context())
	convID := chi.URLParam(r, "id")

	if err := r.ParseMultipartForm(maxMediaUpload); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_UPLOAD", "Invalid multipart body")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "MISSING_FILE", "file field is required")
		return
	}
	defer file.Close()

	kind := domain.MessageKind(r.FormValue("kind"))
	if kind == "" {
		kind = domain.KindFile
	}
	switch kind {
	case domain.KindImage, domain.KindAudio, domain.KindVideo, domain.KindFile:
	default:
		writeError(w, http.StatusBadRequest, "INVALID_KIND", "kind must be image, audio, video or file")
		return
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	ext := filepath.Ext(header.Filename)
	path := fmt.Sprintf("chat_media/%s/%d%s", convID, time.Now().UnixMilli(), ext)

	stored, err := h.blobs.Upload(r.Context(), path, contentType, file)
	if err != nil {
		h.log.Error("media upload failed", "conversation", convID, "error", err)
		writeError(w, http.StatusBadGateway, "UPLOAD_FAILED", "Could not store the file")
		return
	}

	payload := domain.Payload{
		FileURL:  h.blobs.PublicURL(stored),
		FileName: header.Filename,
	}
	msg, err := h.messages.Append(r.Context(), convID, selfID, kind, payload)
	if err != nil {
		h.writeConversationError(w, err, "send media message")
		return
	}

	writeJSON(w, http.StatusCreated, msg)
}

// MarkRead zeroes the caller's unread counter for the conversation.
func (h *ConversationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	selfID := middleware.GetUserID(r.Context())
	convID := chi.URLParam(r, "id")

	if err := h.directory.MarkRead(r.Context(), convID, selfID); err != nil {
		h.writeConversationError(w, err, "mark read")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *ConversationHandler) writeConversationError(w http.ResponseWriter, err error, op string) {
	switch {
	case errors.Is(err, service.ErrConversationNotFound):
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Conversation not found")
	case errors.Is(err, domain.ErrNotParticipant):
		writeError(w, http.StatusForbidden, "FORBIDDEN", "You are not a participant of this conversation")
	case errors.Is(err, domain.ErrInvalidPayload):
		writeError(w, http.StatusBadRequest, "INVALID_PAYLOAD", "Message payload does not match its kind")
	default:
		h.log.Error(op+" failed", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL", "Something went wrong")
	}
}
