package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/taoyao-code/telemetry-collector/internal/analysis"
	"github.com/taoyao-code/telemetry-collector/internal/app"
	cfgpkg "github.com/taoyao-code/telemetry-collector/internal/config"
	"github.com/taoyao-code/telemetry-collector/internal/coremodel"
	"github.com/taoyao-code/telemetry-collector/internal/ingest"
	"github.com/taoyao-code/telemetry-collector/internal/logging"
	"github.com/taoyao-code/telemetry-collector/internal/replay"
	"github.com/taoyao-code/telemetry-collector/internal/sequence"
	"github.com/taoyao-code/telemetry-collector/internal/storage"
	"github.com/taoyao-code/telemetry-collector/internal/storage/csvsink"
)

const usage = `usage: analyze <command> [flags]

commands:
  trial   offline summary of one trial (-csv FILE or -trial ID with -config)
  plan    run a YAML scenario plan and aggregate repeated trials
  replay  replay a pcap capture through the classifier into the configured sink
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var err error
	switch os.Args[1] {
	case "trial":
		err = runTrial(ctx, os.Args[2:])
	case "plan":
		err = runPlan(ctx, os.Args[2:])
	case "replay":
		err = runReplay(ctx, os.Args[2:])
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "analyze:", err)
		os.Exit(1)
	}
}

// commonFlags 子命令共用参数
type commonFlags struct {
	config string
	level  string
	out    string
}

func (c *commonFlags) bind(fs *flag.FlagSet) {
	fs.StringVar(&c.config, "config", "", "collector config (for db/redis backed trials)")
	fs.StringVar(&c.level, "log-level", "warn", "log level (logs go to stderr)")
	fs.StringVar(&c.out, "o", "", "write JSON result to file instead of stdout")
}

func (c *commonFlags) logger() *zap.Logger {
	return logging.NewWriterLogger(cfgpkg.LoggingConfig{Level: c.level, Format: "console"}, os.Stderr)
}

func (c *commonFlags) emit(v any) error {
	var w io.Writer = os.Stdout
	if c.out != "" {
		f, err := os.Create(c.out)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// storeLoader 按配置打开存储用于读取；用完需关闭
func storeLoader(ctx context.Context, path string, log *zap.Logger) (storage.Loader, func(), error) {
	cfg, err := cfgpkg.Load(path)
	if err != nil {
		return nil, nil, err
	}
	h, err := app.OpenSink(ctx, cfg, log)
	if err != nil {
		return nil, nil, err
	}
	return h.Loader, func() { _ = h.Close() }, nil
}

func runTrial(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("trial", flag.ExitOnError)
	var common commonFlags
	common.bind(fs)
	csvPath := fs.String("csv", "", "CSV record file")
	trialID := fs.String("trial", "", "trial id in the configured store")
	_ = fs.Parse(args)

	log := common.logger()
	defer func() { _ = log.Sync() }()

	var (
		recs []coremodel.Record
		err  error
		id   = *trialID
	)
	switch {
	case *csvPath != "":
		recs, err = readCSV(*csvPath, log)
		if id == "" {
			id = *csvPath
		}
	case *trialID != "":
		loader, closeFn, lerr := storeLoader(ctx, common.config, log)
		if lerr != nil {
			return lerr
		}
		defer closeFn()
		recs, err = loader.Load(ctx, *trialID)
	default:
		return errors.New("trial: -csv or -trial is required")
	}
	if err != nil {
		return err
	}
	return common.emit(analysis.Analyze(id, recs))
}

func runPlan(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("plan", flag.ExitOnError)
	var common commonFlags
	common.bind(fs)
	planPath := fs.String("plan", "plan.yaml", "scenario plan")
	_ = fs.Parse(args)

	log := common.logger()
	defer func() { _ = log.Sync() }()

	plan, err := analysis.LoadPlan(*planPath)
	if err != nil {
		return err
	}

	var (
		store   storage.Loader
		closeFn = func() {}
	)
	defer func() { closeFn() }()
	load := func(ctx context.Context, src analysis.TrialSource) ([]coremodel.Record, error) {
		if src.CSV != "" {
			return readCSV(src.CSV, log)
		}
		if store == nil {
			l, c, err := storeLoader(ctx, common.config, log)
			if err != nil {
				return nil, err
			}
			store, closeFn = l, c
		}
		return store.Load(ctx, src.ID)
	}

	rep, err := analysis.Run(ctx, plan, load)
	if err != nil {
		return err
	}
	for _, c := range rep.Comparisons {
		log.Info("comparison",
			zap.String("treatment", c.Treatment),
			zap.String("baseline", c.Baseline),
			zap.Float64("delta", c.Delta),
			zap.Bool("pass", c.Pass))
	}
	return common.emit(rep)
}

func runReplay(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("replay", flag.ExitOnError)
	var common commonFlags
	common.bind(fs)
	pcapPath := fs.String("pcap", "", "capture file (pcap or pcapng)")
	port := fs.Int("port", 5005, "collector UDP port to extract (0 = any)")
	outCSV := fs.String("csv", "", "write classified records to this CSV instead of the configured sink")
	window := fs.Int("window", sequence.DefaultWindow, "classifier window per device")
	_ = fs.Parse(args)
	if *pcapPath == "" {
		return errors.New("replay: -pcap is required")
	}

	log := common.logger()
	defer func() { _ = log.Sync() }()

	var (
		sink    storage.Sink
		loader  storage.Loader
		trialID string
	)
	if *outCSV != "" {
		s, err := csvsink.Open(*outCSV, false)
		if err != nil {
			return err
		}
		defer s.Close()
		sink, loader, trialID = s, s, *outCSV
	} else {
		cfg, err := cfgpkg.Load(common.config)
		if err != nil {
			return err
		}
		h, err := app.OpenSink(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer h.Close()
		sink, loader, trialID = h.Sink, h.Loader, h.TrialID
	}

	proc := ingest.NewProcessor(ingest.Options{
		Registry: sequence.NewRegistry(sequence.DefaultShards, *window),
		Sink:     sink,
		Logger:   log,
		TrialID:  trialID,
	})
	start := time.Now()
	res, err := replay.ReplayFile(ctx, *pcapPath, *port, func(ctx context.Context, payload []byte, ts time.Time) {
		_, _ = proc.Handle(ctx, payload, ts)
	})
	if err != nil {
		return err
	}
	log.Info("replay complete", zap.Int("matched", res.Matched), zap.Duration("elapsed", time.Since(start)))

	recs, err := loader.Load(ctx, trialID)
	if err != nil {
		return err
	}
	return common.emit(struct {
		Replay  replay.Result         `json:"replay"`
		Ingest  ingest.Stats          `json:"ingest"`
		Summary analysis.TrialSummary `json:"summary"`
	}{res, proc.Stats(), analysis.Analyze(trialID, recs)})
}

// readCSV 读取记录文件；坏行跳过并告警
func readCSV(path string, log *zap.Logger) ([]coremodel.Record, error) {
	res, err := csvsink.DecodeFile(path)
	if err != nil {
		return nil, err
	}
	if n := len(res.Skipped); n > 0 {
		log.Warn("skipped unparsable csv rows",
			zap.String("path", path),
			zap.Int("skipped", n),
			zap.Int("kept", len(res.Records)),
			zap.Error(res.Skipped[0]))
	}
	return res.Records, nil
}
