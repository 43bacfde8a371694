package server

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/jpalmerr/missioncontrol/internal/dispatch"
)

// consoleRequest is the body of a console or directive command.
type consoleRequest struct {
	Input   string `json:"input"`
	Content string `json:"content"`
}

// consoleResponse reports whether a console line was a command.
type consoleResponse struct {
	Handled    bool   `json:"handled"`
	Collection string `json:"collection,omitempty"`
	ID         string `json:"id,omitempty"`
}

func (s *Server) handleForceScrape(w http.ResponseWriter, r *http.Request) {
	ack := s.backend.Dispatcher.ForceScrape(r.Context())
	s.writeAck(w, http.StatusOK, ack.Collection, ack.DocumentID, ack.Err)
}

// handleConsole runs one console line. Lines that are not commands are
// accepted and reported as unhandled.
func (s *Server) handleConsole(w http.ResponseWriter, r *http.Request) {
	var req consoleRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ack, handled, err := s.backend.Dispatcher.RunConsole(r.Context(), req.Input, s.now())
	if errors.Is(err, dispatch.ErrEmptyCommand) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !handled {
		s.writeJSON(w, http.StatusOK, consoleResponse{})
		return
	}
	if ack.Err != nil {
		writeError(w, ackStatus(ack.Err), ack.Err.Error())
		return
	}
	s.writeJSON(w, http.StatusCreated, consoleResponse{Handled: true, Collection: ack.Collection, ID: ack.DocumentID})
}

// handleDirective pushes a focus directive. Blank content uses the stock
// message.
func (s *Server) handleDirective(w http.ResponseWriter, r *http.Request) {
	var req consoleRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ack := s.backend.Dispatcher.PushDirective(r.Context(), req.Content, s.now())
	s.writeAck(w, http.StatusCreated, ack.Collection, ack.DocumentID, ack.Err)
}

// handleToggleProtocol flips one protocol switch relative to the board's
// current view of it.
func (s *Server) handleToggleProtocol(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]
	ack := s.backend.Dispatcher.ToggleProtocol(r.Context(), s.backend.Board.Protocol(), key)
	s.writeAck(w, http.StatusOK, ack.Collection, ack.DocumentID, ack.Err)
}
