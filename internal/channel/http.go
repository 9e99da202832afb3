package channel

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Handler returns an HTTP handler exposing the messenger:
//
//	POST /channels/{channel}/{method}   body: JSON arguments (optional)
//	GET  /healthz
//
// Replies use the Response wire form. A not-implemented reply is sent with
// status 501; success and error replies with 200.
func (m *Messenger) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})

	r.Post("/channels/{channel}/{method}", m.serveCall)

	return r
}

func (m *Messenger) serveCall(w http.ResponseWriter, req *http.Request) {
	env := Envelope{
		Channel: chi.URLParam(req, "channel"),
		Method:  chi.URLParam(req, "method"),
	}

	body, err := io.ReadAll(io.LimitReader(req.Body, MaxMessageSize+1))
	if err != nil {
		writeResponse(w, http.StatusBadRequest, badEnvelope(nil, fmt.Sprintf("read body: %v", err)))
		return
	}
	if len(body) > MaxMessageSize {
		writeResponse(w, http.StatusRequestEntityTooLarge, badEnvelope(nil, errMessageTooLarge.Error()))
		return
	}
	if len(body) > 0 {
		if !json.Valid(body) {
			writeResponse(w, http.StatusBadRequest, badEnvelope(nil, "arguments must be valid JSON"))
			return
		}
		env.Arguments = body
	}

	reply := m.Send(req.Context(), env.Channel, MethodCall{Method: env.Method, Arguments: env.Arguments})

	status := http.StatusOK
	if reply.Status == StatusNotImplemented {
		status = http.StatusNotImplemented
	}
	writeResponse(w, status, newResponse(env, reply))
}

func writeResponse(w http.ResponseWriter, status int, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}
