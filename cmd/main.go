package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"reflect"
	"sync"
	"syscall"
	"time"

	"github.com/aukilabs/brotna/config"
	"github.com/aukilabs/brotna/featureflag"
	brotnahttp "github.com/aukilabs/brotna/http"
	"github.com/aukilabs/brotna/journal"
	"github.com/aukilabs/brotna/mesh"
	"github.com/aukilabs/brotna/models"
	"github.com/aukilabs/brotna/smoketest"
	"github.com/aukilabs/brotna/workerpool"
	"github.com/aukilabs/go-tooling/pkg/cli"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/segmentio/encoding/json"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	// The Brotna version number. Set at build.
	version = "v0.1.0"

	infoGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name:        "brotna_info",
		Help:        "Brotna information.",
		ConstLabels: prometheus.Labels{"version": version},
	})
)

// This will effectively disable obfuscation of the config struct. Without it, the keys would get obfuscated causing the cli package to generate garbled command-line options.
// https://github.com/burrowers/garble/issues/403
var _ = reflect.TypeOf(appConfig{})

type appConfig struct {
	AdminAddr          string        `cli:""        env:"BROTNA_ADMIN_ADDR"            help:"Admin listening address."`
	TuningFile         string        `cli:""        env:"BROTNA_TUNING_FILE"           help:"YAML file with the structural tuning."`
	LogLevel           string        `cli:""        env:"BROTNA_LOG_LEVEL"             help:"Log level (debug|info|warning|error)."`
	LogIndent          bool          `cli:""        env:"BROTNA_LOG_INDENT"            help:"Indent logs."`
	LogFile            string        `cli:",hidden" env:"BROTNA_LOG_FILE"              help:"File where logs are also written, rotated by size."`
	LogMaxSizeMB       int           `cli:",hidden" env:"BROTNA_LOG_MAX_SIZE_MB"       help:"The size in megabytes at which the log file is rotated."`
	LogMaxBackups      int           `cli:",hidden" env:"BROTNA_LOG_MAX_BACKUPS"       help:"The number of rotated log files to keep."`
	FrameDuration      time.Duration `cli:",hidden" env:"BROTNA_FRAME_DURATION"        help:"The duration of a destruction frame."`
	Workers            int           `cli:",hidden" env:"BROTNA_WORKERS"               help:"The number of boolean workers. 0 uses GOMAXPROCS."`
	JournalDir         string        `cli:",hidden" env:"BROTNA_JOURNAL_DIR"           help:"Directory of the destruction event journal. Empty disables it."`
	JournalBufferSize  int           `cli:",hidden" env:"BROTNA_JOURNAL_BUFFER_SIZE"   help:"The number of journal events buffered before being dropped."`
	ImpactRate         float64       `cli:",hidden" env:"BROTNA_IMPACT_RATE"           help:"Impacts per second fired at the demo wall. Overrides the tuning file when set."`
	StartupSmokeTest   bool          `cli:",hidden" env:"BROTNA_STARTUP_SMOKE_TEST"    help:"Run a smoke test before serving."`
	FeatureFlags       []string      `cli:",hidden" env:"BROTNA_FEATURE_FLAGS"         help:"Comma separated feature flags"`
	Version            bool          `cli:""        env:"-"                            help:"Show version."`
	Help               bool          `cli:""        env:"-"                            help:"Show help."`
}

func main() {
	conf := appConfig{
		AdminAddr:         ":18190",
		LogLevel:          logs.InfoLevel.String(),
		LogMaxSizeMB:      100,
		LogMaxBackups:     3,
		FrameDuration:     time.Millisecond * 15,
		JournalBufferSize: 1024,
	}

	// set the information gauge to 1, useful for SUM query
	infoGauge.Set(1)

	ctx, cancel := cli.ContextWithSignals(context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer cancel()

	cli.Register().
		Help("Starts Brotna destruction server.").
		Options(&conf)
	cli.Load()

	if conf.Version {
		fmt.Println(version)
		os.Exit(0)
	}

	logs.SetLevel(logs.ParseLevel(conf.LogLevel))
	logs.Encoder = json.Marshal
	if conf.LogIndent {
		logs.Encoder = func(v any) ([]byte, error) {
			return json.MarshalIndent(v, "", "  ")
		}
	}
	errors.Encoder = json.Marshal

	if conf.LogFile != "" {
		logFile := &lumberjack.Logger{
			Filename:   conf.LogFile,
			MaxSize:    conf.LogMaxSizeMB,
			MaxBackups: conf.LogMaxBackups,
		}
		defer logFile.Close()

		sink := io.MultiWriter(os.Stderr, logFile)
		logs.SetLogger(func(e logs.Entry) {
			fmt.Fprintln(sink, e)
		})
	}

	tuning, err := config.Load(conf.TuningFile)
	if err != nil {
		logs.Fatal(err)
	}
	if conf.ImpactRate > 0 {
		tuning.Impacts.Rate = conf.ImpactRate
	}
	flags := featureflag.New(conf.FeatureFlags)
	if unknown := flags.Unknown(); len(unknown) != 0 {
		logs.Warn(errors.New("unknown feature flags").WithTag("flags", unknown))
	}
	applyFeatureFlags(flags, &tuning.Destructible)

	pool := workerpool.New(conf.Workers)
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), workerpool.DefaultGracePeriod)
		defer cancel()

		if err := pool.Close(closeCtx); err != nil {
			logs.Warn(err)
		}
	}()

	var j *journal.Journal
	var wg sync.WaitGroup
	if conf.JournalDir != "" {
		writer := journal.NewHourlyWriter(conf.JournalDir, "destruction")
		defer writer.Close()

		j = journal.New(writer, conf.JournalBufferSize)
		wg.Add(1)
		go func() {
			defer wg.Done()
			j.Handle(ctx)
		}()
	}

	if conf.StartupSmokeTest {
		res, err := smoketest.Run(ctx, smoketest.Options{Workers: pool})
		if err != nil {
			logs.Fatal(errors.New("startup smoke test failed").Wrap(err))
		}
		logs.WithTag("carved", res.Carved).
			WithTag("destroyed_cells", res.DestroyedCells).
			WithTag("debris", res.Debris).
			WithTag("duration_ms", res.DurationMS).
			Info("startup smoke test passed")
	}

	var destructibles models.DestructibleStore
	defer destructibles.Close()

	var debris models.DebrisStore

	wall, err := models.NewDestructible(
		tuning.Wall.Name,
		mesh.Box(tuning.Wall.Min, tuning.Wall.Max),
		tuning.Destructible,
		models.WithChunks(mesh.BoxGrid(tuning.Wall.Min, tuning.Wall.Max, tuning.Destructible.Slices)),
		models.WithWorkRequester(pool),
		models.WithDebrisSpawner(&debris),
		models.WithJournal(j),
	)
	if err != nil {
		logs.Fatal(err)
	}
	destructibles.Add(wall)

	if impactsEnabled(flags, tuning.Impacts) {
		gen := newImpactGenerator(wall, tuning.Wall, tuning.Impacts)
		wg.Add(1)
		go func() {
			defer wg.Done()
			gen.Run(ctx)
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		runFrames(ctx, &destructibles, conf.FrameDuration)
	}()

	admin := brotnahttp.NewAdminHandler(brotnahttp.Admin{
		Version: version,
		Ready: func() bool {
			return len(destructibles.List()) != 0
		},
		Stats:     brotnahttp.HandleJSON(destructibles.Stats),
		Debris:    brotnahttp.HandleJSON(debris.List),
		SmokeTest: smoketest.HandleSmokeTest(ctx, smoketest.Options{Workers: pool}),
	})

	logs.WithTag("version", version).
		WithTag("log_level", conf.LogLevel).
		WithTag("admin_addr", conf.AdminAddr).
		WithTag("workers", pool.Max()).
		WithTag("impact_rate", tuning.Impacts.Rate).
		Info("starting brotna server")

	brotnahttp.ListenAndServe(ctx,
		&http.Server{Addr: conf.AdminAddr, Handler: admin},
	)

	cancel()
	wg.Wait()
}

// runFrames ticks every destructible once per frame until ctx is done.
func runFrames(ctx context.Context, destructibles *models.DestructibleStore, frameDuration time.Duration) {
	ticker := time.NewTicker(frameDuration)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			destructibles.Tick()
		}
	}
}

// impactsEnabled reports whether the impact generator runs. It is on
// whenever a rate is configured, unless the impacts flag disables it.
func impactsEnabled(flags featureflag.FeatureFlag, conf config.Impacts) bool {
	var enabled bool
	flags.IfNotSet(featureflag.FlagDisableImpacts, func() {
		enabled = conf.Rate > 0
	})
	return enabled
}

func applyFeatureFlags(flags featureflag.FeatureFlag, s *models.DestructibleSettings) {
	flags.IfSet(featureflag.FlagDisableSimplify, func() {
		s.Scheduler.DisableSimplify = true
	})
	flags.IfSet(featureflag.FlagDisableAdaptiveUnion, func() {
		s.Scheduler.DisableAdaptiveUnion = true
	})
	flags.IfSet(featureflag.FlagDisableDebris, func() {
		s.DisableDebris = true
	})
	flags.IfSet(featureflag.FlagDisableValidation, func() {
		s.DisableValidation = true
	})
	flags.IfSet(featureflag.FlagDisableChunkGraph, func() {
		s.DisableChunkGraph = true
	})
}
