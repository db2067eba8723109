// shmstatus-bench drives the shared status table with concurrent reader and
// writer goroutines and reports per-operation latency quantiles. Point two
// instances at the same segment to measure cross-process contention; run
// with --backend mutex to compare against the serialized backend.
package main

import (
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	flag "github.com/spf13/pflag"
	"github.com/zeebo/mon"
	"github.com/zeebo/pcg"

	"github.com/zykowal/shmstatus"
)

func main() {
	segment := flag.StringP("segment", "s", "", "segment name override")
	backend := flag.StringP("backend", "b", "rwlock", "lock backend: rwlock or mutex")
	readers := flag.IntP("readers", "r", 4, "reader goroutines")
	writers := flag.IntP("writers", "w", 1, "writer goroutines")
	duration := flag.DurationP("duration", "d", 5*time.Second, "run time")
	keys := flag.IntP("keys", "k", 1000, "working-set key count")
	flag.Parse()

	opts := shmstatus.Options{Name: *segment}
	switch *backend {
	case "rwlock":
	case "mutex":
		opts.Backend = shmstatus.MutexBackend
	default:
		log.Fatalf("unknown backend %q", *backend)
	}

	table, err := shmstatus.Open(opts)
	if err != nil {
		log.Fatalf("failed to attach: %v", err)
	}
	defer table.Close()

	// Seed the working set so readers always have something to find.
	for i := 0; i < *keys; i++ {
		if err := table.Upsert(int32(i), fmt.Sprintf("bench-%d", i)); err != nil {
			log.Fatalf("seed %d: %v", i, err)
		}
	}

	var stop atomic.Bool
	var wg sync.WaitGroup

	worker := func(name string, op func(key int32)) {
		defer wg.Done()
		for !stop.Load() {
			key := int32(pcg.Uint32n(uint32(*keys)))
			timer := mon.StartNamed(name)
			op(key)
			timer.Stop(nil)
		}
	}

	for i := 0; i < *readers; i++ {
		wg.Add(1)
		go worker("get", func(key int32) { table.Get(key) })
	}
	for i := 0; i < *writers; i++ {
		wg.Add(1)
		go worker("upsert", func(key int32) {
			table.Upsert(key, "bench-updated")
		})
	}

	time.Sleep(*duration)
	stop.Store(true)
	wg.Wait()

	fmt.Printf("backend=%s readers=%d writers=%d duration=%s keys=%d\n",
		*backend, *readers, *writers, *duration, *keys)
	report("get")
	report("upsert")
	fmt.Print(table.Stats())
}

// report prints throughput and latency quantiles for one instrumented op.
func report(name string) {
	state := mon.LookupState(name)
	if state == nil || state.Total() == 0 {
		return
	}
	total := state.Total()
	avg := time.Duration(state.Sum() / float64(total))
	fmt.Printf("%-8s %10d ops  avg=%-10s p50=%-10s p90=%-10s p99=%s\n",
		name, total, avg,
		time.Duration(state.Quantile(0.50)),
		time.Duration(state.Quantile(0.90)),
		time.Duration(state.Quantile(0.99)))
}
