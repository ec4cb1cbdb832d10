// queuedump prints the persisted message queue and token metadata from a
// realtime store directory. Offline debugging tool.
// Usage: go run ./cmd/queuedump --store ./realtime-state
package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/immortalpath/realtime/internal/store"
)

func main() {
	storePath := flag.String("store", "./realtime-state", "path to the store directory")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	st, err := store.OpenBadger(*storePath, logger)
	if err != nil {
		logger.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	dump(st, "auth/token", "token")
	dump(st, "queue/state", "queue")
}

func dump(st store.Store, key, label string) {
	blob, err := st.Get(key)
	if errors.Is(err, store.ErrNotFound) {
		fmt.Printf("%s: <empty>\n", label)
		return
	}
	if err != nil {
		fmt.Printf("%s: read error: %v\n", label, err)
		return
	}

	var pretty json.RawMessage = blob
	out, err := json.MarshalIndent(pretty, "", "  ")
	if err != nil {
		fmt.Printf("%s: %s\n", label, blob)
		return
	}
	fmt.Printf("%s:\n%s\n", label, out)
}
