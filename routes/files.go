package routes

import (
	"errors"
	"io/fs"
	"net/http"
	"strings"

	"imagerelay/logger"
	writerbackends "imagerelay/writerBackends"
)

// FilesHandler serves objects written by the directServe backend to holders
// of a valid signed URL.
func FilesHandler(store *writerbackends.DirectServeStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		key := strings.TrimPrefix(r.URL.Path, "/files/")
		f, err := store.Open(key, r.URL.Query().Get("token"))
		switch {
		case err == nil:
		case errors.Is(err, writerbackends.ErrInvalidKey):
			http.Error(w, "Invalid key", http.StatusBadRequest)
			return
		case errors.Is(err, fs.ErrNotExist):
			http.NotFound(w, r)
			return
		default:
			logger.Debugf("Rejected file request for %s: %v", key, err)
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
		defer f.Close()

		info, err := f.Stat()
		if err != nil {
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "image/jpeg")
		w.Header().Set("Cache-Control", "private, max-age=3600")
		http.ServeContent(w, r, key, info.ModTime(), f)
	}
}
