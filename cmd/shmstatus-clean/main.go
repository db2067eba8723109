// shmstatus-clean unlinks the shared status segments. Removing an absent
// segment succeeds: cleanup is an idempotent operator action.
//
// Processes still attached keep their mapping until they exit; new Opens
// after a clean format a fresh segment.
package main

import (
	"fmt"
	"os"

	flag "github.com/spf13/pflag"

	"github.com/zykowal/shmstatus"
)

func main() {
	segment := flag.StringP("segment", "s", "", "unlink only this segment name")
	flag.Parse()

	names := []string{shmstatus.RWLockSegmentName, shmstatus.MutexSegmentName}
	if *segment != "" {
		names = []string{*segment}
	}

	failed := false
	for _, name := range names {
		if err := shmstatus.Cleanup(name); err != nil {
			fmt.Fprintf(os.Stderr, "cleanup %s: %v\n", name, err)
			failed = true
			continue
		}
		fmt.Printf("cleaned %s\n", name)
	}
	if failed {
		os.Exit(1)
	}
}
