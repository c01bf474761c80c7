package benchmarks

import (
	"fmt"
	"os"
	"path"
	"runtime"
	"runtime/pprof"
)

// startProfiling starts the CPU profile when requested. The returned function
// stops it and writes the memory profile.
func startProfiling(dir, cpuprofile, memprofile string) (func() error, error) {
	stopCPU := func() {}
	if cpuprofile != "" {
		f, err := os.Create(path.Join(dir, cpuprofile))
		if err != nil {
			return nil, fmt.Errorf("could not create CPU profile: %w", err)
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			f.Close()
			return nil, fmt.Errorf("could not start CPU profile: %w", err)
		}
		stopCPU = func() {
			pprof.StopCPUProfile()
			f.Close()
		}
	}

	return func() error {
		stopCPU()
		if memprofile == "" {
			return nil
		}
		f, err := os.Create(path.Join(dir, memprofile))
		if err != nil {
			return fmt.Errorf("could not create memory profile: %w", err)
		}
		defer f.Close()
		runtime.GC() // get up-to-date statistics
		if err := pprof.WriteHeapProfile(f); err != nil {
			return fmt.Errorf("could not write memory profile: %w", err)
		}
		return nil
	}, nil
}
