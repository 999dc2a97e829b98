package rest

import (
	"chat-relay/errors"
	"fmt"
	"io"
	"net/http"
)

// multipart boundaries and headers on top of the file itself
const multipartOverhead = 64 << 10

type UploadResponse struct {
	URL  string `json:"url"`
	Type string `json:"type"`
	MIME string `json:"mime"`
}

// Upload handles POST /files with a multipart "file" field.
// The returned url and type are meant to be sent back in a send envelope.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	if h.maxUploadSize > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize+multipartOverhead)
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.Fail(w, r, fmt.Errorf("%w: %v", errors.ErrFileTooLarge, err))
			return
		}
		h.Error(w, http.StatusBadRequest, "missing multipart field file")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		h.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	upload, err := h.chat.Upload(r.Context(), header.Filename, data)
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	h.JSON(w, http.StatusCreated, UploadResponse{URL: upload.URL, Type: string(upload.Type), MIME: upload.MIME})
}
