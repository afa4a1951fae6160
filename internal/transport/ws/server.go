package ws

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"gridlayer.ai/internal/protocol"
)

// Server streams LAYER_DATA envelopes to every connected client. It is the
// feed side used by replay tooling; Broadcast never blocks on a slow peer.
type Server struct {
	log     *log.Logger
	welcome protocol.WelcomeMsg

	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[chan []byte]string
	dropped uint64
}

func NewServer(welcome protocol.WelcomeMsg, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	welcome.Type = protocol.TypeWelcome
	welcome.ProtocolVersion = protocol.Version
	return &Server{
		log:     logger,
		welcome: welcome,
		clients: map[chan []byte]string{},
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		name := s.handshake(conn)
		if name == "" {
			return
		}
		out := make(chan []byte, 256)
		s.mu.Lock()
		s.clients[out] = name
		s.mu.Unlock()
		defer func() {
			s.mu.Lock()
			delete(s.clients, out)
			s.mu.Unlock()
		}()

		done := make(chan struct{})
		// Reader goroutine: clients send nothing after HELLO, but reading
		// is how we notice a close.
		go func() {
			defer close(done)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		for {
			select {
			case <-done:
				return
			case b := <-out:
				_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
				if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
					return
				}
			}
		}
	}
}

// Clients returns the number of connected clients.
func (s *Server) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// Broadcast queues msg for every client and returns how many accepted it.
func (s *Server) Broadcast(msg protocol.LayerDataMsg) (int, error) {
	msg.Type = protocol.TypeLayerData
	msg.ProtocolVersion = protocol.Version
	b, err := json.Marshal(msg)
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for out, name := range s.clients {
		select {
		case out <- b:
			n++
		default:
			s.dropped++
			s.log.Printf("level=warn kind=client_backpressure client=%s seq=%d", name, msg.Seq)
		}
	}
	return n, nil
}

func (s *Server) handshake(conn *websocket.Conn) string {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return ""
	}
	_ = conn.SetReadDeadline(time.Time{})

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected HELLO"), time.Now().Add(time.Second))
		return ""
	}
	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		return ""
	}
	if hello.ProtocolVersion != protocol.Version {
		_ = writeJSON(conn, protocol.ErrorMsg{
			Type:            protocol.TypeError,
			ProtocolVersion: protocol.Version,
			Code:            protocol.ErrProtoVersion,
			Message:         "bad protocol_version",
		})
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "bad protocol_version"), time.Now().Add(time.Second))
		return ""
	}
	if hello.ClientName == "" {
		hello.ClientName = "client"
	}
	if err := writeJSON(conn, s.welcome); err != nil {
		return ""
	}
	return hello.ClientName
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	}
	return nil
}
