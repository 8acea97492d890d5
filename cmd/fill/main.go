// Command fill compiles every registered filler into client-independent test
// fixtures using an external state transition tool.
package main

import (
	"context"
	"flag"
	"math/big"
	"os"
	"regexp"
	"runtime"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
	log15 "gopkg.in/inconshreveable/log15.v2"
	"gopkg.in/yaml.v3"

	"github.com/ethereum/fixturefill/config"
	"github.com/ethereum/fixturefill/filler"
	_ "github.com/ethereum/fixturefill/fillers/eip4844"
	"github.com/ethereum/fixturefill/fixtures"
	"github.com/ethereum/fixturefill/t8n"
)

var (
	configFile = flag.String("config", "", "YAML run configuration file, overridden by explicit flags")

	t8nFlag     = flag.String("t8n", "evm", "Path to the transition tool binary")
	outputFlag  = flag.String("output", "fixtures", "Target folder for the filled fixture files")
	forkFlag    = flag.String("fork", "", "Comma separated fork names to fill (default: all)")
	fillerFlag  = flag.String("filler", ".", "Regexp selecting the fillers to run")
	workersFlag = flag.Int("parallelism", runtime.NumCPU(), "Number of fillers filled concurrently")
	chainIDFlag = flag.Int64("chainid", 0, "Chain id handed to the transition tool (default: framework test chain)")

	traceFlag  = flag.Bool("trace", false, "Collect transition tool execution traces for diagnostics")
	engineFlag = flag.Bool("engine-payloads", true, "Emit engine API payloads alongside each block")

	loglevelFlag = flag.Int("loglevel", 3, "Log level to use for displaying system events")
)

// runConfig is the YAML mirror of the command line flags.
type runConfig struct {
	T8n            string `yaml:"t8n"`
	Output         string `yaml:"output"`
	Fork           string `yaml:"fork"`
	Filler         string `yaml:"filler"`
	Parallelism    int    `yaml:"parallelism"`
	ChainID        int64  `yaml:"chainid"`
	Trace          bool   `yaml:"trace"`
	EnginePayloads *bool  `yaml:"enginePayloads"`
	LogLevel       int    `yaml:"loglevel"`
}

// loadConfig merges the optional YAML file under the flag values. A flag set
// explicitly on the command line always wins over the file.
func loadConfig() error {
	if *configFile == "" {
		return nil
	}
	data, err := os.ReadFile(*configFile)
	if err != nil {
		return err
	}
	var cfg runConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return err
	}
	set := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })
	if cfg.T8n != "" && !set["t8n"] {
		*t8nFlag = cfg.T8n
	}
	if cfg.Output != "" && !set["output"] {
		*outputFlag = cfg.Output
	}
	if cfg.Fork != "" && !set["fork"] {
		*forkFlag = cfg.Fork
	}
	if cfg.Filler != "" && !set["filler"] {
		*fillerFlag = cfg.Filler
	}
	if cfg.Parallelism > 0 && !set["parallelism"] {
		*workersFlag = cfg.Parallelism
	}
	if cfg.ChainID != 0 && !set["chainid"] {
		*chainIDFlag = cfg.ChainID
	}
	if cfg.Trace && !set["trace"] {
		*traceFlag = true
	}
	if cfg.EnginePayloads != nil && !set["engine-payloads"] {
		*engineFlag = *cfg.EnginePayloads
	}
	if cfg.LogLevel > 0 && !set["loglevel"] {
		*loglevelFlag = cfg.LogLevel
	}
	return nil
}

// selectForks resolves the fork filter to a concrete fork list.
func selectForks(names string) ([]config.Fork, error) {
	if names == "" {
		return config.AllForks(), nil
	}
	var forks []config.Fork
	for _, name := range strings.Split(names, ",") {
		fork, err := config.ByName(strings.TrimSpace(name))
		if err != nil {
			return nil, err
		}
		forks = append(forks, fork)
	}
	return forks, nil
}

func main() {
	flag.Parse()
	if err := loadConfig(); err != nil {
		log15.Crit("failed to load run configuration", "file", *configFile, "error", err)
		os.Exit(1)
	}
	log15.Root().SetHandler(log15.LvlFilterHandler(log15.Lvl(*loglevelFlag), log15.StreamHandler(os.Stderr, log15.TerminalFormat())))

	forks, err := selectForks(*forkFlag)
	if err != nil {
		log15.Crit("failed to parse fork filter", "error", err)
		os.Exit(1)
	}
	pattern, err := regexp.Compile(*fillerFlag)
	if err != nil {
		log15.Crit("failed to parse filler regexp", "error", err)
		os.Exit(1)
	}
	opts := filler.FillOptions{EnginePayloads: *engineFlag}
	if *chainIDFlag != 0 {
		opts.ChainID = big.NewInt(*chainIDFlag)
	}

	var (
		collection = fixtures.NewCollection()
		mu         sync.Mutex
	)
	g, ctx := errgroup.WithContext(context.Background())
	g.SetLimit(*workersFlag)
	for _, reg := range filler.Registrations() {
		if !pattern.MatchString(reg.Name) {
			continue
		}
		reg := reg
		g.Go(func() error {
			// Each worker gets its own tool driver: trace collection is
			// per-instance state.
			tool := t8n.NewEvm(*t8nFlag, *traceFlag)
			filled, err := filler.FillRegistration(ctx, tool, reg, forks, opts)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			return collection.Add(reg.Name, filled)
		})
	}
	if err := g.Wait(); err != nil {
		log15.Crit("fill run failed", "error", err)
		os.Exit(1)
	}
	if err := collection.Write(*outputFlag); err != nil {
		log15.Crit("failed to write fixtures", "error", err)
		os.Exit(1)
	}
	log15.Info("fill run complete", "fillers", len(collection.Fillers()), "output", *outputFlag)
}
