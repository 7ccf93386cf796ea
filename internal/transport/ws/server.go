package ws

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Heigvd/mimms-sub001/internal/protocol"
)

// EventSink accepts global events for the shared log. The websocket layer
// never touches session state directly; it only appends to the log and
// relays STATE notifications published by the session loop.
type EventSink interface {
	SubmitEvent(ctx context.Context, ev protocol.GlobalEvent) (uint64, error)
}

type Server struct {
	sink EventSink
	log  *log.Logger

	scenarioDigest string
	timeSliceS     int64

	upgrader websocket.Upgrader

	mu      sync.Mutex
	last    protocol.StateMsg
	clients map[chan []byte]struct{}
}

func NewServer(sink EventSink, scenarioDigest string, timeSliceS int64, logger *log.Logger) *Server {
	s := &Server{
		sink:           sink,
		log:            logger,
		scenarioDigest: scenarioDigest,
		timeSliceS:     timeSliceS,
		clients:        make(map[chan []byte]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
	return s
}

// Broadcast fans a STATE notification out to every connected client. Slow
// clients drop notifications rather than stall the session loop; the next
// notification carries the latest coordinates anyway.
func (s *Server) Broadcast(st protocol.StateMsg) {
	st.Type = protocol.TypeState
	b, err := json.Marshal(st)
	if err != nil {
		return
	}
	s.mu.Lock()
	s.last = st
	for out := range s.clients {
		select {
		case out <- b:
		default:
		}
	}
	s.mu.Unlock()
}

func (s *Server) register(out chan []byte) protocol.StateMsg {
	s.mu.Lock()
	s.clients[out] = struct{}{}
	last := s.last
	s.mu.Unlock()
	return last
}

func (s *Server) unregister(out chan []byte) {
	s.mu.Lock()
	delete(s.clients, out)
	s.mu.Unlock()
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		hello, out := s.handshake(conn)
		if out == nil {
			return
		}
		defer s.unregister(out)

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		// Writer goroutine.
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case b, ok := <-out:
					if !ok {
						return
					}
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		// Reader loop.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				cancel()
				return
			}
			base, err := protocol.DecodeBase(msg)
			if err != nil {
				continue
			}
			if base.Type != protocol.TypeSubmit {
				continue
			}
			var sub protocol.SubmitMsg
			if err := json.Unmarshal(msg, &sub); err != nil {
				continue
			}
			if sub.ProtocolVersion != protocol.Version {
				continue
			}
			s.handleSubmit(ctx, hello, sub.Event, out)
		}
	}
}

func (s *Server) handleSubmit(ctx context.Context, hello protocol.HelloMsg, ev protocol.GlobalEvent, out chan []byte) {
	if ev.Forced && !hello.Trainer {
		sendAck(out, protocol.AckMsg{Accepted: false, Code: protocol.ErrNoPermission, Message: "forced events require a trainer connection"})
		return
	}
	if ev.Actor == 0 {
		ev.Actor = hello.ActorID
	}
	if err := protocol.ValidateEvent(ev); err != nil {
		sendAck(out, protocol.AckMsg{Accepted: false, Code: protocol.ErrProtoBadRequest, Message: err.Error()})
		return
	}
	ev.ID = 0 // the store assigns ids
	id, err := s.sink.SubmitEvent(ctx, ev)
	if err != nil {
		s.log.Printf("[ws] submit failed: actor=%d kind=%s err=%v", ev.Actor, ev.Kind, err)
		sendAck(out, protocol.AckMsg{Accepted: false, Code: protocol.ErrInternal, Message: "event log unavailable"})
		return
	}
	sendAck(out, protocol.AckMsg{EventID: id, Accepted: true})
}

func sendAck(out chan []byte, ack protocol.AckMsg) {
	ack.Type = protocol.TypeAck
	b, err := json.Marshal(ack)
	if err != nil {
		return
	}
	select {
	case out <- b:
	default:
	}
}

func (s *Server) handshake(conn *websocket.Conn) (protocol.HelloMsg, chan []byte) {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return protocol.HelloMsg{}, nil
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected HELLO"), time.Now().Add(time.Second))
		return protocol.HelloMsg{}, nil
	}

	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		return protocol.HelloMsg{}, nil
	}
	if hello.ProtocolVersion != protocol.Version {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "bad protocol_version"), time.Now().Add(time.Second))
		return protocol.HelloMsg{}, nil
	}

	out := make(chan []byte, 16)
	last := s.register(out)

	welcome := protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		ActorID:         hello.ActorID,
		ScenarioDigest:  s.scenarioDigest,
		TimeSliceS:      s.timeSliceS,
		Seq:             last.Seq,
		Time:            last.Time,
	}
	if err := writeJSON(conn, welcome); err != nil {
		s.unregister(out)
		return protocol.HelloMsg{}, nil
	}
	return hello, out
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}
