package httpserver

import (
	"errors"
	"net/http"

	picturedomain "sampleapp/backend/internal/domain/picture"
)

// multipart framing allowance on top of the picture size cap
const uploadOverhead = 1 << 20

func (s *Server) handleMyPicture(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	ctx := r.Context()

	switch r.Method {
	case http.MethodGet:
		pic, err := s.pictureService.Get(ctx, user.ID)
		if err != nil {
			s.writePictureError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"picture": pic})
	case http.MethodPut, http.MethodPost:
		r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes+uploadOverhead)
		file, header, err := r.FormFile("picture")
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				writeError(w, http.StatusRequestEntityTooLarge, picturedomain.ErrTooLarge.Error())
				return
			}
			writeError(w, http.StatusBadRequest, "multipart field \"picture\" required")
			return
		}
		defer file.Close()

		pic, err := s.pictureService.Upload(ctx, user.ID, header.Filename, file)
		if err != nil {
			s.writePictureError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"picture": pic})
	case http.MethodDelete:
		if err := s.pictureService.Delete(ctx, user.ID); err != nil {
			s.writePictureError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		writeMethodNotAllowed(w, http.MethodGet, http.MethodPut, http.MethodPost, http.MethodDelete)
	}
}

func (s *Server) writePictureError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, picturedomain.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, picturedomain.ErrUnsupportedFormat), errors.Is(err, picturedomain.ErrInvalidImage):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, picturedomain.ErrTooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, err.Error())
	default:
		s.logger.Error(r.Context(), "picture request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "picture request failed")
	}
}
