package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/Heigvd/mimms-sub001/internal/i18n"
	"github.com/Heigvd/mimms-sub001/internal/persistence/eventdb"
	persistlog "github.com/Heigvd/mimms-sub001/internal/persistence/log"
	"github.com/Heigvd/mimms-sub001/internal/protocol"
	"github.com/Heigvd/mimms-sub001/internal/sim/engine"
	"github.com/Heigvd/mimms-sub001/internal/sim/scenario"
	"github.com/Heigvd/mimms-sub001/internal/sim/tuning"
	"github.com/Heigvd/mimms-sub001/internal/transport/ws"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		sessionID  = flag.String("session", "session_1", "exercise session id")
		configDir  = flag.String("configs", "./configs", "config directory")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		lang       = flag.String("lang", "en", "message catalog language")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	scen, err := scenario.Load(*configDir)
	if err != nil {
		logger.Fatalf("load scenario: %v", err)
	}

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Printf("tuning not found (%s); using defaults", tp)
			tune = tuning.Defaults()
		} else {
			logger.Fatalf("load tuning: %v", err)
		}
	}

	tr, err := i18n.Load(filepath.Join(*configDir, "messages"), *lang)
	if err != nil {
		logger.Printf("message catalog (%s): %v; falling back to keys", *lang, err)
		tr = i18n.Empty()
	}

	sessionDir := filepath.Join(*dataDir, "sessions", *sessionID)
	_ = os.MkdirAll(sessionDir, 0o755)

	store, err := eventdb.Open(filepath.Join(sessionDir, "events.db"))
	if err != nil {
		logger.Fatalf("open event store: %v", err)
	}
	defer store.Close()

	radioLog := persistlog.NewRadioLogger(sessionDir)
	snapLog := persistlog.NewSnapshotLogger(sessionDir)
	defer radioLog.Close()
	defer snapLog.Close()

	ctx, cancel := signalContext()
	defer cancel()

	sess, err := engine.NewSession(ctx, engine.SessionConfig{
		Store:      store,
		Translator: tr,
		Logger:     logger,
		Scenario:   scen,
		Tuning:     tune,
		RadioSink:  radioLog,
	})
	if err != nil {
		logger.Fatalf("session: %v", err)
	}

	// Catch up on events persisted by a previous run before serving.
	if n, err := sess.ProcessPendingEvents(ctx); err != nil {
		logger.Fatalf("replay event log: %v", err)
	} else if n > 0 {
		snap := sess.CurrentSnapshot()
		logger.Printf("resumed session=%s events=%d seq=%d time=%d", *sessionID, n, snap.Seq, snap.Time)
	}

	wsSrv := ws.NewServer(store, scen.Digest, tune.TimeSliceSeconds, logger)
	wsSrv.Broadcast(stateMsg(sess))

	// Trainer rewind requests are handed to the session goroutine; nothing
	// outside it ever mutates session state.
	rewindCh := make(chan uint64, 1)

	// Session loop: the single goroutine that owns the session. It polls the
	// shared log, applies new events in submission order and publishes STATE
	// notifications for every new snapshot.
	go func() {
		poll := time.Duration(tune.PollIntervalMs) * time.Millisecond
		ticker := time.NewTicker(poll)
		defer ticker.Stop()
		lastSeq := sess.CurrentSnapshot().Seq
		for {
			select {
			case <-ctx.Done():
				return
			case seq := <-rewindCh:
				if err := sess.RewindTo(ctx, seq); err != nil {
					logger.Printf("rewind to seq %d: %v", seq, err)
					continue
				}
				snap := sess.CurrentSnapshot()
				lastSeq = snap.Seq
				logger.Printf("rewound to seq=%d time=%d", snap.Seq, snap.Time)
				wsSrv.Broadcast(stateMsg(sess))
			case <-ticker.C:
				if _, err := sess.ProcessPendingEvents(ctx); err != nil {
					logger.Printf("process events: %v", err)
					continue
				}
				snap := sess.CurrentSnapshot()
				if snap.Seq == lastSeq {
					continue
				}
				for seq := lastSeq + 1; seq <= snap.Seq; seq++ {
					st := sess.SnapshotAt(seq)
					if st == nil {
						continue
					}
					if err := snapLog.WriteEntry(persistlog.SnapshotEntry{
						Seq:         st.Seq,
						Time:        st.Time,
						LastEventID: st.LastEventID,
						Digest:      st.Digest(),
					}); err != nil {
						logger.Printf("snapshot log: %v", err)
					}
				}
				lastSeq = snap.Seq
				wsSrv.Broadcast(protocol.StateMsg{Seq: snap.Seq, Time: snap.Time, Digest: snap.Digest()})
			}
		}
	}()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")

		snap := sess.CurrentSnapshot()

		// Minimal Prometheus exposition format.
		fmt.Fprintf(rw, "# HELP mimms_session_seq Current snapshot sequence number.\n")
		fmt.Fprintf(rw, "# TYPE mimms_session_seq gauge\n")
		fmt.Fprintf(rw, "mimms_session_seq{session=%q} %d\n", *sessionID, snap.Seq)

		fmt.Fprintf(rw, "# HELP mimms_session_time Simulated seconds since exercise start.\n")
		fmt.Fprintf(rw, "# TYPE mimms_session_time gauge\n")
		fmt.Fprintf(rw, "mimms_session_time{session=%q} %d\n", *sessionID, snap.Time)

		fmt.Fprintf(rw, "# HELP mimms_session_last_event_id Id of the last applied global event.\n")
		fmt.Fprintf(rw, "# TYPE mimms_session_last_event_id gauge\n")
		fmt.Fprintf(rw, "mimms_session_last_event_id{session=%q} %d\n", *sessionID, snap.LastEventID)

		fmt.Fprintf(rw, "# HELP mimms_session_actors Current actor count.\n")
		fmt.Fprintf(rw, "# TYPE mimms_session_actors gauge\n")
		fmt.Fprintf(rw, "mimms_session_actors{session=%q} %d\n", *sessionID, len(snap.Actors))

		fmt.Fprintf(rw, "# HELP mimms_session_patients Current patient count.\n")
		fmt.Fprintf(rw, "# TYPE mimms_session_patients gauge\n")
		fmt.Fprintf(rw, "mimms_session_patients{session=%q} %d\n", *sessionID, len(snap.Patients))
	})

	enableAdminHTTP := envBool("MIMMS_ENABLE_ADMIN_HTTP", defaultEnableAdminHTTP())
	enablePprofHTTP := envBool("MIMMS_ENABLE_PPROF_HTTP", false)
	if enableAdminHTTP {
		// Local-only trainer endpoints (served from the session goroutine's
		// published snapshots; reads are safe because snapshots are immutable).
		mux.HandleFunc("/admin/v1/state", func(rw http.ResponseWriter, r *http.Request) {
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			snap := sess.CurrentSnapshot()
			rw.Header().Set("Content-Type", "application/json")
			resp := struct {
				SessionID   string `json:"session_id"`
				Seq         uint64 `json:"seq"`
				Time        int64  `json:"time"`
				LastEventID uint64 `json:"last_event_id"`
				Digest      string `json:"digest"`
			}{*sessionID, snap.Seq, snap.Time, snap.LastEventID, snap.Digest()}
			_ = json.NewEncoder(rw).Encode(resp)
		})
		mux.HandleFunc("/admin/v1/rewind", func(rw http.ResponseWriter, r *http.Request) {
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			if r.Method != http.MethodPost {
				http.Error(rw, "POST required", http.StatusMethodNotAllowed)
				return
			}
			seq, err := strconv.ParseUint(r.URL.Query().Get("seq"), 10, 64)
			if err != nil {
				http.Error(rw, "bad seq", http.StatusBadRequest)
				return
			}
			select {
			case rewindCh <- seq:
				rw.WriteHeader(http.StatusAccepted)
				_, _ = rw.Write([]byte("rewind scheduled"))
			default:
				http.Error(rw, "rewind already pending", http.StatusConflict)
			}
		})
	} else {
		logger.Printf("admin endpoints disabled (MIMMS_ENABLE_ADMIN_HTTP=false)")
	}
	if enablePprofHTTP {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	} else {
		logger.Printf("pprof endpoints disabled (MIMMS_ENABLE_PPROF_HTTP=false)")
	}
	mux.HandleFunc("/v1/ws", wsSrv.Handler())

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s scenario=%s slice=%ds", *addr, scen.Digest[:12], tune.TimeSliceSeconds)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}
}

func stateMsg(sess *engine.Session) protocol.StateMsg {
	snap := sess.CurrentSnapshot()
	return protocol.StateMsg{Seq: snap.Seq, Time: snap.Time, Digest: snap.Digest()}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func defaultEnableAdminHTTP() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("DEPLOY_ENV"))) {
	case "staging", "production":
		return false
	default:
		return true
	}
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
