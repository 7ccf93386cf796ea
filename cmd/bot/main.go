// Command bot is a headless exercise participant. It connects to a running
// session, keeps its actor ready for every time-forward barrier and logs the
// STATE notifications it receives. Useful for soaking a session and for
// filling empty seats during trainer-led runs.
package main

import (
	"encoding/json"
	"flag"
	"log"
	"os"
	"os/signal"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Heigvd/mimms-sub001/internal/protocol"
)

func main() {
	var (
		url     = flag.String("url", "ws://localhost:8080/v1/ws", "session websocket url")
		actorID = flag.Uint64("actor", 1, "actor id to play")
		trainer = flag.Bool("trainer", false, "connect with trainer permissions")
		slice   = flag.Int64("slice", 60, "seconds per time-forward request")
		every   = flag.Duration("every", 5*time.Second, "interval between time-forward requests")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[bot] ", log.LstdFlags|log.Lmicroseconds)
	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		ActorID:         *actorID,
		Trainer:         *trainer,
	}
	if err := conn.WriteJSON(hello); err != nil {
		logger.Fatalf("send HELLO: %v", err)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)

	// Events must carry the current simulated time or the replay engine
	// discards them as stale. Track it from WELCOME and STATE.
	var simTime atomic.Int64

	// Reader: log WELCOME, ACK and STATE traffic.
	go func() {
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				logger.Printf("read: %v", err)
				return
			}
			base, err := protocol.DecodeBase(msg)
			if err != nil {
				continue
			}
			switch base.Type {
			case protocol.TypeWelcome:
				var w protocol.WelcomeMsg
				if json.Unmarshal(msg, &w) == nil {
					simTime.Store(w.Time)
					logger.Printf("welcome: seq=%d time=%d scenario=%.12s", w.Seq, w.Time, w.ScenarioDigest)
				}
			case protocol.TypeState:
				var st protocol.StateMsg
				if json.Unmarshal(msg, &st) == nil {
					simTime.Store(st.Time)
					logger.Printf("state: seq=%d time=%d", st.Seq, st.Time)
				}
			case protocol.TypeAck:
				var ack protocol.AckMsg
				if json.Unmarshal(msg, &ack) == nil && !ack.Accepted {
					logger.Printf("rejected: %s %s", ack.Code, ack.Message)
				}
			}
		}
	}()

	ticker := time.NewTicker(*every)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		payload, err := json.Marshal(protocol.TimeForwardPayload{
			Seconds: *slice,
			Actors:  []uint64{*actorID},
		})
		if err != nil {
			logger.Fatalf("payload: %v", err)
		}
		sub := protocol.SubmitMsg{
			Type:            protocol.TypeSubmit,
			ProtocolVersion: protocol.Version,
			Event: protocol.GlobalEvent{
				Time:    simTime.Load(),
				Actor:   *actorID,
				Kind:    protocol.EventTimeForward,
				Payload: payload,
			},
		}
		if err := conn.WriteJSON(sub); err != nil {
			logger.Fatalf("send SUBMIT: %v", err)
		}
	}
}
