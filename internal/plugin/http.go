package plugin

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
)

// Handler serves GET /tools and POST /tools/{name}/invoke. The invoke body
// is the parameter map; the response carries the emitted messages.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/tools", s.handleListTools).Methods(http.MethodGet)
	r.HandleFunc("/tools/{name}/invoke", s.handleInvoke).Methods(http.MethodPost)
	return r
}

func (s *Server) handleListTools(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.describe())
}

func (s *Server) handleInvoke(w http.ResponseWriter, r *http.Request) {
	var params map[string]any
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(&params); err != nil {
		writeJSON(w, http.StatusBadRequest, RespError{Message: "invalid JSON body: " + err.Error()})
		return
	}
	msgs, err := s.invoke(r.Context(), InvokeParams{Tool: mux.Vars(r)["name"], Parameters: params})
	if errors.Is(err, ErrUnknownTool) {
		writeJSON(w, http.StatusNotFound, RespError{Message: err.Error()})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, RespError{Message: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, InvokeResult{Messages: msgs})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
