package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jpalmerr/missioncontrol/internal/docstore"
	"github.com/jpalmerr/missioncontrol/internal/subscription"
)

// wsCloseGrace bounds the close handshake write.
const wsCloseGrace = time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
}

// handleListenerSocket serves the remote listener protocol: one binary CBOR
// frame per snapshot, then a single error frame if the listener fails.
// The socket closes after an error frame; clients decide whether to listen
// again.
func (s *Server) handleListenerSocket(w http.ResponseWriter, r *http.Request) {
	name, ok := collectionName(w, r)
	if !ok {
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied with an HTTP error
		s.logger.Warn("listener upgrade failed", "collection", name, "error", err)
		return
	}
	defer conn.Close()

	st := s.backend.Manager.NewStore()
	defer st.Close()

	latest := newLatestView()
	if _, err := st.Subscribe(name, latest.set); err != nil {
		_ = s.writeFrame(conn, docstore.Frame{Type: docstore.FrameError, Error: err.Error()})
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// the client never sends data frames; reading surfaces its close
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	s.logger.Debug("remote listener attached", "collection", name, "remote", r.RemoteAddr)
	defer s.logger.Debug("remote listener detached", "collection", name, "remote", r.RemoteAddr)

	for {
		select {
		case <-latest.signal:
			v, ok := latest.take()
			if !ok || v.State == subscription.Loading {
				continue
			}
			if v.State == subscription.Errored {
				msg := "listener failed"
				if v.Err != nil {
					msg = v.Err.Error()
				}
				_ = s.writeFrame(conn, docstore.Frame{Type: docstore.FrameError, Error: msg})
				closeSocket(conn)
				return
			}
			if err := s.writeFrame(conn, docstore.Frame{Type: docstore.FrameSnapshot, Documents: v.Documents}); err != nil {
				s.logger.Warn("listener write failed", "collection", name, "error", err)
				return
			}

		case <-ctx.Done():
			closeSocket(conn)
			return
		}
	}
}

func (s *Server) writeFrame(conn *websocket.Conn, f docstore.Frame) error {
	data, err := docstore.EncodeFrame(f)
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}
	if err := conn.SetWriteDeadline(time.Now().Add(sseWriteTimeout)); err != nil {
		return err
	}
	return conn.WriteMessage(websocket.BinaryMessage, data)
}

func closeSocket(conn *websocket.Conn) {
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(wsCloseGrace))
}
