// Command kestrel-uci runs the engine behind the UCI protocol on stdin and
// stdout.
package main

import (
	"flag"
	"os"
	"runtime"
	"runtime/pprof"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/hailam/kestrel/internal/engine"
	"github.com/hailam/kestrel/internal/eval"
	"github.com/hailam/kestrel/internal/storage"
	"github.com/hailam/kestrel/internal/uci"
)

// Network file names looked for when -nnue is not given.
var defaultNets = []string{"kestrel.nnue.zst", "kestrel.nnue"}

var (
	hashMB     = flag.Int("hash", 64, "transposition table size in MB")
	threads    = flag.Int("threads", 1, "number of search threads")
	nnuePath   = flag.String("nnue", "", "NNUE network file (.nnue or .nnue.zst)")
	dbPath     = flag.String("db", "", "database directory for options and learning (default: <data dir>/db)")
	noDB       = flag.Bool("nodb", false, "run without a database")
	paramsPath = flag.String("params", "", "JSON file with search parameters")
	weightPath = flag.String("weights", "", "JSON file with classical evaluation weights")
	debug      = flag.Bool("debug", false, "enable debug logging")
	cpuprofile = flag.String("cpuprofile", "", "write cpu profile to file")
	memprofile = flag.String("memprofile", "", "write memory profile to file on exit")
)

func main() {
	flag.Parse()
	os.Exit(run())
}

// run returns the process exit code; deferred cleanups such as stopping
// the CPU profile happen before main exits.
func run() int {
	// stdout belongs to the protocol.
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}).
		With().Timestamp().Logger()
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if *debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	profilePath := *cpuprofile
	if profilePath == "" {
		profilePath = os.Getenv("CPUPROFILE")
	}
	if profilePath != "" {
		f, err := os.Create(profilePath)
		if err != nil {
			log.Error().Err(err).Msg("could not create CPU profile")
			return 1
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			log.Error().Err(err).Msg("could not start CPU profile")
			return 1
		}
		defer pprof.StopCPUProfile()
		log.Info().Str("path", profilePath).Msg("CPU profiling enabled")
	}

	paths, err := storage.DefaultPaths()
	if err == nil {
		err = paths.Ensure()
	}
	if err != nil {
		log.Warn().Err(err).Msg("no data directory, files are looked up as given")
		paths = storage.Paths{}
	}

	cfg := engine.DefaultConfig()
	cfg.HashMB = *hashMB
	cfg.Threads = *threads
	eng := engine.NewEngine(cfg)

	if *paramsPath != "" {
		p, err := engine.LoadParams(*paramsPath)
		if err != nil {
			log.Error().Err(err).Msg("loading search parameters")
			return 1
		}
		eng.SetParams(p)
	}
	if *weightPath != "" {
		w, err := eval.LoadWeights(*weightPath)
		if err != nil {
			log.Error().Err(err).Msg("loading evaluation weights")
			return 1
		}
		eng.SetWeights(w)
	}

	switch {
	case *nnuePath != "":
		if err := eng.LoadNNUE(paths.ResolveNetwork(*nnuePath)); err != nil {
			log.Error().Err(err).Msg("loading network")
			return 1
		}
	default:
		if path, ok := paths.FindNetwork(defaultNets...); ok {
			if err := eng.LoadNNUE(path); err != nil {
				log.Warn().Err(err).Msg("NNUE not loaded, using classical evaluation")
			}
		} else {
			log.Info().Msg("no network found, using classical evaluation")
		}
	}

	protocol := uci.New(eng, os.Stdout)
	protocol.SetPaths(paths)

	if !*noDB {
		dir := *dbPath
		if dir == "" && paths.Root != "" {
			dir = paths.DB()
		}
		store, err := storage.Open(dir)
		if err != nil {
			log.Warn().Err(err).Msg("running without database")
		} else {
			defer store.Close()
			if err := protocol.SetStorage(store); err != nil {
				log.Warn().Err(err).Msg("restoring options")
			}
		}
	}

	code := 0
	if err := protocol.Run(os.Stdin); err != nil {
		log.Error().Err(err).Msg("reading commands")
		code = 1
	}

	if *memprofile != "" {
		f, err := os.Create(*memprofile)
		if err != nil {
			log.Error().Err(err).Msg("could not create memory profile")
			return 1
		}
		defer f.Close()
		runtime.GC()
		if err := pprof.WriteHeapProfile(f); err != nil {
			log.Error().Err(err).Msg("could not write memory profile")
			return 1
		}
	}
	return code
}
