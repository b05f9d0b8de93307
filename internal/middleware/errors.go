package middleware

import (
	"net/http"

	"github.com/goccy/go-json"
)

// maxBodySize bounds a request body after inflation.
const maxBodySize = 4 << 20

type errorBody struct {
	Error string `json:"error"`
}

// reject writes the {"error": ...} body the handlers also use.
func reject(w http.ResponseWriter, status int, msg string) {
	body, err := json.Marshal(errorBody{Error: msg})
	if err != nil {
		http.Error(w, msg, status)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
