package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/klauspost/compress/zstd"

	"github.com/Heigvd/mimms-sub001/internal/persistence/eventdb"
	persistlog "github.com/Heigvd/mimms-sub001/internal/persistence/log"
)

func sessionDir(dataDir, session string) string {
	return filepath.Join(dataDir, "sessions", session)
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

// list prints the session ids present under the data directory.
func listCmd(args []string) {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	_ = fs.Parse(args)

	entries, err := os.ReadDir(filepath.Join(*dataDir, "sessions"))
	if err != nil {
		fail("read: %v", err)
	}
	for _, e := range entries {
		if e.IsDir() {
			fmt.Println(e.Name())
		}
	}
}

// events dumps the durable event log in submission order.
func eventsCmd(args []string) {
	fs := flag.NewFlagSet("events", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	session := fs.String("session", "default", "session id")
	fromID := fs.Uint64("from_id", 0, "first event id to print")
	toID := fs.Uint64("to_id", 0, "last event id to print (0 = end of log)")
	_ = fs.Parse(args)

	store, err := eventdb.Open(filepath.Join(sessionDir(*dataDir, *session), "events.db"))
	if err != nil {
		fail("open: %v", err)
	}
	defer store.Close()

	evs, err := store.FetchAllEvents(context.Background())
	if err != nil {
		fail("fetch: %v", err)
	}
	for _, ev := range evs {
		if ev.ID < *fromID {
			continue
		}
		if *toID != 0 && ev.ID > *toID {
			break
		}
		forced := ""
		if ev.Forced {
			forced = " forced"
		}
		fmt.Printf("%6d t=%-6d actor=%-3d %s%s %s\n", ev.ID, ev.Time, ev.Actor, ev.Kind, forced, ev.Payload)
	}
}

// trail decodes the compressed snapshot digest trail.
func trailCmd(args []string) {
	fs := flag.NewFlagSet("trail", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	session := fs.String("session", "default", "session id")
	fromSeq := fs.Uint64("from_seq", 0, "first sequence number to print")
	_ = fs.Parse(args)

	dir := filepath.Join(sessionDir(*dataDir, *session), "snapshots")
	files, err := filepath.Glob(filepath.Join(dir, "snapshots-*.jsonl.zst"))
	if err != nil {
		fail("glob: %v", err)
	}
	if len(files) == 0 {
		fail("no snapshot trail under %s", dir)
	}
	sort.Strings(files)

	for _, path := range files {
		if err := printTrailFile(path, *fromSeq); err != nil {
			fail("%s: %v", path, err)
		}
	}
}

func printTrailFile(path string, fromSeq uint64) error {
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
		var e persistlog.SnapshotEntry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			return err
		}
		if e.Seq < fromSeq {
			continue
		}
		fmt.Printf("%6d t=%-6d ev=%-6d %s\n", e.Seq, e.Time, e.LastEventID, e.Digest)
	}
	return sc.Err()
}

// ignored prints the event ids excluded from replay by a trainer rewind.
func ignoredCmd(args []string) {
	fs := flag.NewFlagSet("ignored", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	session := fs.String("session", "default", "session id")
	_ = fs.Parse(args)

	store, err := eventdb.Open(filepath.Join(sessionDir(*dataDir, *session), "events.db"))
	if err != nil {
		fail("open: %v", err)
	}
	defer store.Close()

	raw, err := store.ReadConfigBlob(context.Background(), "ignored_events")
	if err != nil {
		fail("read: %v", err)
	}
	if raw == nil {
		fmt.Println("no ignored events")
		return
	}
	var ids []uint64
	if err := json.Unmarshal(raw, &ids); err != nil {
		fail("decode: %v", err)
	}
	for _, id := range ids {
		fmt.Println(id)
	}
}
