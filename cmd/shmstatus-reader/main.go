// shmstatus-reader attaches to the shared status table and reads from it:
// either the keys given as arguments, or a full snapshot when none are.
package main

import (
	"fmt"
	"log"
	"sort"
	"strconv"

	flag "github.com/spf13/pflag"

	"github.com/zykowal/shmstatus"
	"github.com/zykowal/shmstatus/internal/cliconfig"
)

func main() {
	configPath := flag.StringP("config", "c", ".shmstatus.json", "config file (HuJSON)")
	stats := flag.Bool("stats", false, "print table statistics")
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

	if args := flag.Args(); len(args) > 0 {
		for _, arg := range args {
			key, err := strconv.ParseInt(arg, 10, 32)
			if err != nil {
				log.Fatalf("bad key %q: %v", arg, err)
			}
			k := int32(key)
			if !table.Contains(k) {
				fmt.Printf("%d: <absent>\n", k)
				continue
			}
			fmt.Printf("%d: %q\n", k, table.Get(k))
		}
	} else {
		snapshot := make(map[int32]string)
		n := table.BatchGet(snapshot)
		keys := make([]int32, 0, n)
		for k := range snapshot {
			keys = append(keys, k)
		}
		sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
		for _, k := range keys {
			fmt.Printf("%d: %q\n", k, snapshot[k])
		}
		fmt.Printf("%d live entries\n", n)
	}

	if *stats {
		fmt.Print(table.Stats())
	}
}
