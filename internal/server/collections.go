package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/jpalmerr/missioncontrol/internal/dispatch"
	"github.com/jpalmerr/missioncontrol/internal/docstore"
	"github.com/jpalmerr/missioncontrol/internal/subscription"
	"github.com/jpalmerr/missioncontrol/internal/view"
)

// collectionResponse is one view of a collection as JSON.
type collectionResponse struct {
	Collection   string              `json:"collection"`
	State        string              `json:"state"`
	Availability view.Availability   `json:"availability"`
	Documents    []docstore.Document `json:"documents"`
	Error        string              `json:"error,omitempty"`
}

func newCollectionResponse(v subscription.View) collectionResponse {
	resp := collectionResponse{
		Collection:   v.Collection,
		State:        v.State.String(),
		Availability: view.AvailabilityOf(v),
		Documents:    v.Documents,
	}
	if resp.Documents == nil {
		resp.Documents = []docstore.Document{}
	}
	if v.Err != nil {
		resp.Error = v.Err.Error()
	}
	return resp
}

// collectionName reads and validates the {name} path variable.
func collectionName(w http.ResponseWriter, r *http.Request) (string, bool) {
	name := mux.Vars(r)["name"]
	if err := docstore.ValidateCollection(name); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return "", false
	}
	return name, true
}

// handleCollection is a one-shot read: subscribe, wait for the first
// snapshot or error, unsubscribe.
func (s *Server) handleCollection(w http.ResponseWriter, r *http.Request) {
	name, ok := collectionName(w, r)
	if !ok {
		return
	}

	st := s.backend.Manager.NewStore()
	defer st.Close()

	h, err := st.Subscribe(name, nil)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.readTimeout)
	defer cancel()

	v, err := subscription.Await(ctx, h)
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		s.writeJSON(w, http.StatusGatewayTimeout, collectionResponse{
			Collection:   name,
			State:        subscription.Loading.String(),
			Availability: view.AvailabilityLoading,
			Documents:    []docstore.Document{},
			Error:        "timed out waiting for first snapshot",
		})
		return
	case err != nil:
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	w.Header().Set("Cache-Control", "no-cache")
	status := http.StatusOK
	if v.Unavailable() {
		status = http.StatusServiceUnavailable
	}
	s.writeJSON(w, status, newCollectionResponse(v))
}

// handleCollectionSSE streams every view of one collection.
func (s *Server) handleCollectionSSE(w http.ResponseWriter, r *http.Request) {
	name, ok := collectionName(w, r)
	if !ok {
		return
	}
	stream, ok := newSSEStream(w, s.logger)
	if !ok {
		return
	}

	st := s.backend.Manager.NewStore()
	defer st.Close()

	latest := newLatestView()
	h, err := st.Subscribe(name, latest.set)
	if err != nil {
		return
	}

	// the loading view goes out first so clients can render a placeholder
	if v, err := h.View(); err == nil {
		if err := stream.send(newCollectionResponse(v)); err != nil {
			return
		}
	}

	for {
		select {
		case <-latest.signal:
			v, ok := latest.take()
			if !ok {
				continue
			}
			if err := stream.send(newCollectionResponse(v)); err != nil {
				return
			}

		case <-r.Context().Done():
			// request context is derived from server context via BaseContext,
			// so this fires on both client disconnect AND server shutdown
			return
		}
	}
}

// handleWidgetsSSE streams board summaries.
func (s *Server) handleWidgetsSSE(w http.ResponseWriter, r *http.Request) {
	stream, ok := newSSEStream(w, s.logger)
	if !ok {
		return
	}

	ch := s.backend.Board.Subscribe()
	defer s.backend.Board.Unsubscribe(ch)

	if err := stream.send(s.backend.Board.Summary()); err != nil {
		return
	}

	for {
		select {
		case summary, ok := <-ch:
			if !ok {
				return
			}
			if err := stream.send(summary); err != nil {
				return
			}

		case <-r.Context().Done():
			return
		}
	}
}

// writeResponse acknowledges a write.
type writeResponse struct {
	Collection string `json:"collection"`
	ID         string `json:"id"`
}

// handleWriteDocument applies a merge or replace write.
func (s *Server) handleWriteDocument(w http.ResponseWriter, r *http.Request) {
	name, ok := collectionName(w, r)
	if !ok {
		return
	}
	id := mux.Vars(r)["id"]

	var req docstore.WriteRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	d := s.backend.Dispatcher
	var ack dispatch.Ack
	if req.Merge {
		ack = d.Dispatch(r.Context(), name, id, req.Fields)
	} else {
		ack = d.Set(r.Context(), name, id, req.Fields)
	}
	s.writeAck(w, http.StatusOK, ack.Collection, ack.DocumentID, ack.Err)
}

// handleCreateDocument adds a document with a generated id.
func (s *Server) handleCreateDocument(w http.ResponseWriter, r *http.Request) {
	name, ok := collectionName(w, r)
	if !ok {
		return
	}

	var req docstore.WriteRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ack := s.backend.Dispatcher.Create(r.Context(), name, req.Fields)
	s.writeAck(w, http.StatusCreated, ack.Collection, ack.DocumentID, ack.Err)
}

func (s *Server) writeAck(w http.ResponseWriter, okStatus int, collection, id string, err error) {
	if err != nil {
		writeError(w, ackStatus(err), err.Error())
		return
	}
	s.writeJSON(w, okStatus, writeResponse{Collection: collection, ID: id})
}
