package main

import (
	"flag"
	"log"
	"os"
	"path/filepath"
	"runtime/pprof"

	"github.com/corvidchess/corvid/internal/engine"
	"github.com/corvidchess/corvid/internal/uci"
)

// defaultNet is the standard filename searched for in the auto-load
// locations below.
const defaultNet = "corvid.nnue"

var (
	cpuprofile = flag.String("cpuprofile", "", "write cpu profile to file")
	hashMB     = flag.Int("hash", 64, "transposition table size in MB")
	nnuePath   = flag.String("evalfile", "", "path to an NNUE weights file")
)

func main() {
	flag.Parse()

	profilePath := *cpuprofile
	if profilePath == "" {
		profilePath = os.Getenv("CPUPROFILE")
	}
	if profilePath != "" {
		f, err := os.Create(profilePath)
		if err != nil {
			log.Fatal("could not create CPU profile: ", err)
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			log.Fatal("could not start CPU profile: ", err)
		}
		defer pprof.StopCPUProfile()
		log.Printf("CPU profiling enabled, writing to %s", profilePath)
	}

	eng := engine.NewEngine(*hashMB)

	if path := *nnuePath; path != "" {
		if err := eng.LoadNNUE(path); err != nil {
			log.Fatalf("could not load NNUE weights from %s: %v", path, err)
		}
	} else if err := autoLoadNNUE(eng); err != nil {
		log.Printf("NNUE not loaded: %v (using classical evaluation)", err)
	}

	protocol := uci.New(eng)
	protocol.Run()
}

// autoLoadNNUE tries standard locations for a weights file before falling
// back to classical evaluation.
func autoLoadNNUE(eng *engine.Engine) error {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}

	searchPaths := []string{
		filepath.Join(home, ".corvid", "nnue", defaultNet),
		filepath.Join(".", "nnue", defaultNet),
		filepath.Join(".", defaultNet),
	}

	for _, path := range searchPaths {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := eng.LoadNNUE(path); err != nil {
			log.Printf("failed to load NNUE from %s: %v", path, err)
			continue
		}
		log.Printf("NNUE loaded from %s", path)
		return nil
	}

	return os.ErrNotExist
}
