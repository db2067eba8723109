// shmstatus is an interactive shell for the shared status table.
//
// Usage:
//
//	shmstatus [flags]
//
// Flags:
//
//	-c, --config    Config file in HuJSON format (default .shmstatus.json)
//	-s, --segment   Segment name override
//	-b, --backend   Lock backend: rwlock or mutex
//
// Commands (in REPL):
//
//	add <key> <value>        Insert a new entry
//	update <key> <value>     Overwrite an existing entry
//	upsert <key> <value>     Insert or overwrite
//	get <key>                Print the value
//	del <key>                Remove an entry
//	has <key>                Check presence
//	count                    Number of live entries
//	load                     Load factor
//	stats                    Table statistics
//	list                     Print a snapshot of all entries
//	dump <file>              Export a JSON snapshot (written atomically)
//	restore <file>           Upsert entries from a JSON snapshot
//	clear                    Empty the table
//	help                     Show this help
//	exit / quit / q          Exit
package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/natefinch/atomic"
	"github.com/peterh/liner"
	flag "github.com/spf13/pflag"
	"github.com/sugawarayuuta/sonnet"

	"github.com/zykowal/shmstatus"
	"github.com/zykowal/shmstatus/internal/cliconfig"
)

var commands = []string{
	"add", "update", "upsert", "get", "del", "has", "count", "load",
	"stats", "list", "dump", "restore", "clear", "help", "exit", "quit",
}

func main() {
	configPath := flag.StringP("config", "c", ".shmstatus.json", "config file (HuJSON)")
	segment := flag.StringP("segment", "s", "", "segment name override")
	backend := flag.StringP("backend", "b", "", "lock backend: rwlock or mutex")
	flag.Parse()

	explicit := flag.CommandLine.Changed("config")
	cfg, err := cliconfig.Load(*configPath, explicit)
	if err != nil {
		log.Fatal(err)
	}
	if *segment != "" {
		cfg.Segment = *segment
	}
	if *backend != "" {
		cfg.Backend = *backend
	}

	table, err := shmstatus.Open(cfg.Options())
	if err != nil {
		log.Fatalf("failed to attach: %v", err)
	}
	defer table.Close()

	if table.Creator() {
		fmt.Println("created and formatted the segment")
	} else {
		fmt.Println("attached to existing segment")
	}

	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)
	line.SetCompleter(func(prefix string) (out []string) {
		for _, cmd := range commands {
			if strings.HasPrefix(cmd, strings.ToLower(prefix)) {
				out = append(out, cmd)
			}
		}
		return out
	})

	for {
		input, err := line.Prompt("shmstatus> ")
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				fmt.Println()
				return
			}
			log.Fatal(err)
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		line.AppendHistory(input)

		fields := strings.SplitN(input, " ", 3)
		cmd := strings.ToLower(fields[0])
		if cmd == "exit" || cmd == "quit" || cmd == "q" {
			return
		}
		if err := dispatch(table, cmd, fields[1:]); err != nil {
			fmt.Printf("error: %v (code %d)\n", err, shmstatus.ReturnCode(err))
		}
	}
}

func dispatch(table *shmstatus.Table, cmd string, args []string) error {
	switch cmd {
	case "add", "update", "upsert":
		if len(args) < 2 {
			return fmt.Errorf("usage: %s <key> <value>", cmd)
		}
		key, err := parseKey(args[0])
		if err != nil {
			return err
		}
		switch cmd {
		case "add":
			err = table.Add(key, args[1])
		case "update":
			err = table.Update(key, args[1])
		case "upsert":
			err = table.Upsert(key, args[1])
		}
		if err != nil {
			return err
		}
		fmt.Println("ok")

	case "get":
		key, err := oneKey(args)
		if err != nil {
			return err
		}
		if !table.Contains(key) {
			fmt.Println("<absent>")
			return nil
		}
		fmt.Printf("%q\n", table.Get(key))

	case "del":
		key, err := oneKey(args)
		if err != nil {
			return err
		}
		if err := table.Remove(key); err != nil {
			return err
		}
		fmt.Println("ok")

	case "has":
		key, err := oneKey(args)
		if err != nil {
			return err
		}
		fmt.Println(table.Contains(key))

	case "count":
		fmt.Println(table.Count())

	case "load":
		fmt.Printf("%g\n", table.LoadFactor())

	case "stats":
		fmt.Print(table.Stats())

	case "list":
		snapshot := make(map[int32]string)
		table.BatchGet(snapshot)
		keys := make([]int32, 0, len(snapshot))
		for k := range snapshot {
			keys = append(keys, k)
		}
		sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
		for _, k := range keys {
			fmt.Printf("%d: %q\n", k, snapshot[k])
		}
		fmt.Printf("%d live entries\n", len(snapshot))

	case "dump":
		if len(args) < 1 {
			return fmt.Errorf("usage: dump <file>")
		}
		return dumpSnapshot(table, args[0])

	case "restore":
		if len(args) < 1 {
			return fmt.Errorf("usage: restore <file>")
		}
		return restoreSnapshot(table, args[0])

	case "clear":
		if err := table.Clear(); err != nil {
			return err
		}
		fmt.Println("ok")

	case "help":
		fmt.Println("commands: " + strings.Join(commands, " "))

	default:
		return fmt.Errorf("unknown command %q (try help)", cmd)
	}
	return nil
}

// dumpSnapshot exports the live entries as JSON. The write is atomic so a
// concurrent reader of the file never observes a partial snapshot.
func dumpSnapshot(table *shmstatus.Table, path string) error {
	snapshot := make(map[int32]string)
	n := table.BatchGet(snapshot)

	data, err := sonnet.Marshal(snapshot)
	if err != nil {
		return err
	}
	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return err
	}
	fmt.Printf("dumped %d entries to %s\n", n, path)
	return nil
}

// restoreSnapshot upserts every entry of a JSON snapshot into the table.
// This is a demo convenience over the public surface, not a recovery path.
func restoreSnapshot(table *shmstatus.Table, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	snapshot := make(map[int32]string)
	if err := sonnet.Unmarshal(data, &snapshot); err != nil {
		return err
	}

	restored := 0
	for key, value := range snapshot {
		if err := table.Upsert(key, value); err != nil {
			fmt.Printf("upsert %d: %v\n", key, err)
			continue
		}
		restored++
	}
	fmt.Printf("restored %d entries from %s\n", restored, path)
	return nil
}

func parseKey(s string) (int32, error) {
	v, err := strconv.ParseInt(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("bad key %q: %w", s, err)
	}
	return int32(v), nil
}

func oneKey(args []string) (int32, error) {
	if len(args) < 1 {
		return 0, fmt.Errorf("missing key argument")
	}
	return parseKey(args[0])
}
