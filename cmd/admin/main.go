// Command admin inspects session data on disk: the durable event log, the
// compressed snapshot digest trail and the rewind ignore set. It reads the
// same files the server writes; run it against a stopped session or accept
// a slightly stale view.
package main

import (
	"fmt"
	"os"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "events":
			eventsCmd(os.Args[2:])
			return
		case "trail":
			trailCmd(os.Args[2:])
			return
		case "ignored":
			ignoredCmd(os.Args[2:])
			return
		case "list":
			listCmd(os.Args[2:])
			return
		}
	}
	fmt.Fprintln(os.Stderr, "usage: admin <list|events|trail|ignored> [flags]")
	os.Exit(2)
}
