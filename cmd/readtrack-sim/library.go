package main

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/readtrack/readtrack-device/internal/clock"
	"github.com/readtrack/readtrack-device/internal/kv"
	"github.com/readtrack/readtrack-device/internal/library"
)

var libraryFlags struct {
	dataPath string
}

var libraryCmd = &cobra.Command{
	Use:   "library",
	Short: "Print the persisted book library",
	Long: `Library opens the device database and prints every book record:
slot, name, tag UID, and lifetime statistics. Run it against a data
directory left behind by the daemon or a --data simulation run.`,
	RunE: showLibrary,
}

func init() {
	libraryCmd.Flags().StringVar(&libraryFlags.dataPath, "data", "", "database directory")
	libraryCmd.MarkFlagRequired("data")

	rootCmd.AddCommand(libraryCmd)
}

func showLibrary(_ *cobra.Command, _ []string) error {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	store, err := kv.Open(libraryFlags.dataPath, log)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer store.Close()

	lib, err := library.NewStore(store, log, clock.New(), library.DefaultCapacity)
	if err != nil {
		return fmt.Errorf("loading library: %w", err)
	}

	fmt.Printf("%d/%d slots used, %s total reading\n\n",
		lib.ActiveCount(), lib.Capacity(),
		(time.Duration(lib.TotalReadingSeconds()) * time.Second).String())

	records := lib.Records()
	if len(records) == 0 {
		fmt.Println("no books recorded")
		return nil
	}

	fmt.Printf("%-4s %-16s %-12s %10s %9s %7s %10s  %s\n",
		"SLOT", "NAME", "TAG", "TOTAL", "SESSIONS", "CYCLES", "AVG", "LAST READ")
	for _, rec := range records {
		last := "never"
		if !rec.LastReadAt.IsZero() {
			last = rec.LastReadAt.Format(time.RFC3339)
		}
		fmt.Printf("%-4d %-16s %-12s %10s %9d %7d %10s  %s\n",
			rec.Slot,
			rec.Name,
			rec.TagUID,
			(time.Duration(rec.TotalSeconds) * time.Second).String(),
			rec.SessionCount,
			rec.FocusCycles,
			(time.Duration(rec.AvgSessionSeconds) * time.Second).String(),
			last)
	}
	return nil
}
