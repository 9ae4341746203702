package handlers

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"recap/internal/pkg/errors"
)

// StreamArtifact serves a stored object to holders of a valid signed URL.
// This route is what the signer's URLs point at, so it runs outside the
// organization middleware: the signature is the authorization.
func (h *Handler) StreamArtifact(w http.ResponseWriter, r *http.Request) error {
	objectKey := chi.URLParam(r, "*")
	if objectKey == "" {
		return errors.New(errors.CodeBadRequest, "missing object key")
	}

	q := r.URL.Query()
	if err := h.d.Signer.Verify(objectKey, q.Get("exp"), q.Get("sig"), time.Now().UTC()); err != nil {
		return errors.WrapWithCode(err, errors.CodeForbidden, "api.artifacts", "invalid download url")
	}

	rc, contentType, size, err := h.d.Storage.GetObject(r.Context(), objectKey)
	if err != nil {
		return errors.WrapWithCode(err, errors.CodeNotFound, "api.artifacts", "artifact not available")
	}
	defer rc.Close()

	if contentType != "" {
		w.Header().Set("Content-Type", contentType)
	}
	if size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
	}
	w.Header().Set("Cache-Control", "private, max-age=0")

	if _, err := io.Copy(w, rc); err != nil {
		// Headers are gone; log and move on.
		h.d.Log.FromContext(r.Context()).Warn("artifact stream interrupted",
			"object_key", objectKey, "error", err.Error())
	}
	return nil
}
