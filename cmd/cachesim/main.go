// Package main provides the entry point for cachesim, a cycle-stepped
// simulator of a pipelined core's cache subsystem.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/sarchlab/cachesim/memsys"
	"github.com/sarchlab/cachesim/timing/cache"
	"github.com/sarchlab/cachesim/trace"
)

var (
	configPath = flag.String("config", "", "Path to subsystem configuration JSON file")
	fast       = flag.Bool("fast", false, "Use the functional reference model (no timing)")
	statsJSON  = flag.Bool("stats-json", false, "Emit statistics as JSON")
	maxCycles  = flag.Uint64("max-cycles", 10_000_000, "Abort if the simulation exceeds this many cycles")
	verbose    = flag.Bool("v", false, "Verbose output")
)

// runStats is what the CLI reports at the end of a run.
type runStats struct {
	Cycles uint64           `json:"cycles,omitempty"`
	Faults uint64           `json:"address_faults"`
	ICache cache.Statistics `json:"icache"`
	DCache cache.Statistics `json:"dcache"`
}

func main() {
	flag.Parse()

	if flag.NArg() < 1 {
		fmt.Fprintf(os.Stderr, "Usage: cachesim [options] <trace-file>\n")
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		flag.PrintDefaults()
		os.Exit(1)
	}

	config := cache.DefaultSubsystemConfig()
	if *configPath != "" {
		var err error
		config, err = cache.LoadSubsystemConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}
	}

	accesses, err := trace.ParseFile(flag.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading trace: %v\n", err)
		os.Exit(1)
	}

	if *verbose {
		fmt.Printf("Loaded: %s (%d accesses)\n", flag.Arg(0), len(accesses))
	}

	var stats runStats
	if *fast {
		stats, err = runFunctional(config, accesses)
	} else {
		stats, err = runTiming(config, accesses)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	report(stats)
}

// runTiming drives the trace through the cycle-stepped subsystem,
// observing readiness before presenting each request.
func runTiming(config cache.SubsystemConfig, accesses []trace.Access) (runStats, error) {
	sub, err := cache.NewSubsystem(config)
	if err != nil {
		return runStats{}, err
	}

	var faults uint64
	for i, a := range accesses {
		fault, err := runAccess(sub, a, *maxCycles)
		if err != nil {
			return runStats{}, fmt.Errorf("access %d: %w", i, err)
		}
		if fault {
			faults++
			if *verbose {
				fmt.Printf("address fault at 0x%08x\n", a.Address)
			}
		}
	}

	if err := settle(sub, *maxCycles); err != nil {
		return runStats{}, err
	}
	if err := sub.Flush(); err != nil {
		return runStats{}, err
	}

	return runStats{
		Cycles: sub.Cycle(),
		Faults: faults,
		ICache: sub.ICache.Stats(),
		DCache: sub.DCache.Stats(),
	}, nil
}

// runAccess presents one access until the subsystem answers it.
func runAccess(sub *cache.Subsystem, a trace.Access, maxCycles uint64) (fault bool, err error) {
	switch a.Kind {
	case trace.KindFetch:
		req := cache.FetchRequest{Address: a.Address}
		for {
			if sub.Cycle() > maxCycles {
				return false, fmt.Errorf("fetch 0x%08x: exceeded %d cycles", a.Address, maxCycles)
			}
			var rsp cache.FetchResponse
			if sub.ICache.Ready() {
				rsp, _ = sub.Step(&req, nil)
			} else {
				rsp, _ = sub.Step(nil, nil)
			}
			if rsp.Valid {
				return false, nil
			}
		}

	case trace.KindLoad, trace.KindStore:
		req := cache.Request{
			Address: a.Address,
			IsStore: a.Kind == trace.KindStore,
			Size:    a.Size,
			Data:    a.Value,
		}
		presented := false
		for {
			if sub.Cycle() > maxCycles {
				return false, fmt.Errorf("access 0x%08x: exceeded %d cycles", a.Address, maxCycles)
			}
			var rsp cache.Response
			if !presented && sub.DCache.Ready() {
				_, rsp = sub.Step(nil, &req)
				presented = true
			} else {
				_, rsp = sub.Step(nil, nil)
			}
			if rsp.Fault {
				return true, nil
			}
			if rsp.Valid {
				return false, nil
			}
			// An accepted store hit leaves the controller idle and
			// produces no response of its own.
			if presented && req.IsStore && sub.DCache.Idle() {
				return false, nil
			}
		}
	}

	return false, fmt.Errorf("unknown access kind %d", a.Kind)
}

// settle steps the subsystem until the store buffer has drained.
func settle(sub *cache.Subsystem, maxCycles uint64) error {
	for sub.DCache.StoreBufferLen() > 0 {
		if sub.Cycle() > maxCycles {
			return fmt.Errorf("store buffer failed to drain within %d cycles", maxCycles)
		}
		sub.Step(nil, nil)
	}
	return nil
}

// runFunctional drives the trace through the latency-free reference model.
func runFunctional(config cache.SubsystemConfig, accesses []trace.Access) (runStats, error) {
	hierarchy, err := memsys.New(config.Memory)
	if err != nil {
		return runStats{}, err
	}

	icache := cache.NewRefCache(config.ICache, hierarchy)
	dcache := cache.NewRefCache(config.DCache, hierarchy)

	var faults uint64
	for _, a := range accesses {
		var result cache.RefAccessResult
		switch a.Kind {
		case trace.KindFetch:
			result = icache.Read(a.Address&^3, cache.SizeWord)
		case trace.KindLoad:
			result = dcache.Read(a.Address, a.Size)
		case trace.KindStore:
			result = dcache.Write(a.Address, a.Size, a.Value)
		}
		if result.Fault {
			faults++
		}
	}
	dcache.Flush()

	return runStats{
		Faults: faults,
		ICache: icache.Stats(),
		DCache: dcache.Stats(),
	}, nil
}

func report(stats runStats) {
	if *statsJSON {
		data, err := json.MarshalIndent(stats, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error serializing stats: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(string(data))
		return
	}

	if stats.Cycles > 0 {
		fmt.Printf("Cycles: %d\n", stats.Cycles)
	}
	fmt.Printf("Address faults: %d\n", stats.Faults)
	printCacheStats("ICache", stats.ICache)
	printCacheStats("DCache", stats.DCache)
}

func printCacheStats(name string, s cache.Statistics) {
	fmt.Printf("%s: %d reads, %d writes, %d hits, %d misses, %d evictions, %d writebacks\n",
		name, s.Reads, s.Writes, s.Hits, s.Misses, s.Evictions, s.Writebacks)
	if s.StoreBufferPushes > 0 || s.StoreBufferDrains > 0 {
		fmt.Printf("%s: %d store-buffer pushes, %d store-buffer drains\n",
			name, s.StoreBufferPushes, s.StoreBufferDrains)
	}
}
