// shmstatus-writer seeds the shared status table and then applies a batch
// update, printing the table statistics when done. Run it next to
// shmstatus-reader to watch updates propagate between processes.
package main

import (
	"fmt"
	"log"
	"os"

	flag "github.com/spf13/pflag"

	"github.com/zykowal/shmstatus"
	"github.com/zykowal/shmstatus/internal/cliconfig"
)

func main() {
	configPath := flag.StringP("config", "c", ".shmstatus.json", "config file (HuJSON)")
	count := flag.IntP("count", "n", 100, "entries to seed")
	start := flag.Int32("start", 1, "first key")
	prefix := flag.StringP("prefix", "p", "status", "value prefix")
	flag.Parse()

	explicit := flag.CommandLine.Changed("config")
	cfg, err := cliconfig.Load(*configPath, explicit)
	if err != nil {
		log.Fatal(err)
	}

	table, err := shmstatus.Open(cfg.Options())
	if err != nil {
		log.Fatalf("failed to attach: %v", err)
	}
	defer table.Close()

	if table.Creator() {
		fmt.Println("created and formatted the segment")
	}

	added, dups := 0, 0
	for i := 0; i < *count; i++ {
		key := *start + int32(i)
		err := table.Add(key, fmt.Sprintf("%s-%d", *prefix, key))
		switch {
		case err == nil:
			added++
		case shmstatus.ReturnCode(err) == shmstatus.CodeDuplicate:
			dups++
		default:
			fmt.Fprintf(os.Stderr, "add %d: %v\n", key, err)
		}
	}
	fmt.Printf("added %d entries (%d already present)\n", added, dups)

	// Overwrite every other seeded key in one write-lock acquisition.
	updates := make(map[int32]string, *count/2)
	for i := 0; i < *count; i += 2 {
		key := *start + int32(i)
		updates[key] = fmt.Sprintf("%s-%d-updated", *prefix, key)
	}
	fmt.Printf("batch updated %d entries\n", table.BatchUpdate(updates))

	fmt.Print(table.Stats())
}
