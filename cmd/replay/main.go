package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/zstd"

	"github.com/Heigvd/mimms-sub001/internal/persistence/eventdb"
	persistlog "github.com/Heigvd/mimms-sub001/internal/persistence/log"
	"github.com/Heigvd/mimms-sub001/internal/sim/engine"
	"github.com/Heigvd/mimms-sub001/internal/sim/scenario"
	"github.com/Heigvd/mimms-sub001/internal/sim/tuning"
)

func main() {
	var (
		dbPath     = flag.String("db", "", "path to events.db")
		configDir  = flag.String("configs", "./configs", "config directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		verifyDir  = flag.String("verify", "", "snapshots dir containing snapshots-*.jsonl.zst (optional)")
		fromSeq    = flag.Uint64("from_seq", 0, "start verifying from seq (inclusive, optional)")
		toSeq      = flag.Uint64("to_seq", 0, "stop at seq (inclusive, optional)")
		printAll   = flag.Bool("print", false, "print every rebuilt snapshot digest")
	)
	flag.Parse()

	if *dbPath == "" {
		fmt.Fprintln(os.Stderr, "missing -db")
		os.Exit(2)
	}

	scen, err := scenario.Load(*configDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load scenario:", err)
		os.Exit(1)
	}

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		if os.IsNotExist(err) {
			tune = tuning.Defaults()
		} else {
			fmt.Fprintln(os.Stderr, "load tuning:", err)
			os.Exit(1)
		}
	}

	store, err := eventdb.Open(*dbPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open event store:", err)
		os.Exit(1)
	}
	defer store.Close()

	ctx := context.Background()
	logger := log.New(os.Stderr, "[replay] ", log.LstdFlags)

	sess, err := engine.NewSession(ctx, engine.SessionConfig{
		Store:    store,
		Logger:   logger,
		Scenario: scen,
		Tuning:   tune,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "session:", err)
		os.Exit(1)
	}

	applied, err := sess.ProcessPendingEvents(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, "replay event log:", err)
		os.Exit(1)
	}

	snap := sess.CurrentSnapshot()
	fmt.Printf("rebuilt session scenario=%s events=%d seq=%d time=%d digest=%s\n",
		scen.Digest[:12], applied, snap.Seq, snap.Time, snap.Digest())

	if *printAll {
		for seq := uint64(0); seq <= snap.Seq; seq++ {
			s := sess.SnapshotAt(seq)
			if s == nil {
				continue
			}
			fmt.Printf("seq=%d time=%d last_event=%d digest=%s\n", s.Seq, s.Time, s.LastEventID, s.Digest())
		}
	}

	if *verifyDir == "" {
		return
	}

	files, err := listSnapshotFiles(*verifyDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "list snapshots:", err)
		os.Exit(1)
	}
	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "no snapshot files found in", *verifyDir)
		os.Exit(1)
	}

	var checked uint64
	for _, path := range files {
		if err := verifyFile(sess, path, *fromSeq, *toSeq, &checked); err != nil {
			fmt.Fprintln(os.Stderr, "verify:", err)
			os.Exit(1)
		}
	}
	fmt.Printf("verify ok: checked=%d snapshots\n", checked)
}

func listSnapshotFiles(dir string) ([]string, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(ents))
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, "snapshots-") && strings.HasSuffix(name, ".jsonl.zst") {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	out := make([]string, 0, len(names))
	for _, name := range names {
		out = append(out, filepath.Join(dir, name))
	}
	return out, nil
}

func verifyFile(sess *engine.Session, path string, fromSeq, toSeq uint64, checked *uint64) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return err
	}
	defer dec.Close()

	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 64*1024), 8*1024*1024)

	for sc.Scan() {
		line := sc.Bytes()
		var entry persistlog.SnapshotEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			return fmt.Errorf("%s: unmarshal: %w", filepath.Base(path), err)
		}
		if entry.Seq < fromSeq {
			continue
		}
		if toSeq != 0 && entry.Seq > toSeq {
			return nil
		}

		snap := sess.SnapshotAt(entry.Seq)
		if snap == nil {
			return fmt.Errorf("no rebuilt snapshot for seq %d (file=%s)", entry.Seq, filepath.Base(path))
		}
		if snap.Time != entry.Time {
			return fmt.Errorf("time mismatch at seq %d: got=%d want=%d", entry.Seq, snap.Time, entry.Time)
		}
		if snap.LastEventID != entry.LastEventID {
			return fmt.Errorf("event id mismatch at seq %d: got=%d want=%d", entry.Seq, snap.LastEventID, entry.LastEventID)
		}
		*checked++
		if got := snap.Digest(); got != entry.Digest {
			return fmt.Errorf("digest mismatch at seq %d: got=%s want=%s", entry.Seq, got, entry.Digest)
		}
	}
	return sc.Err()
}
