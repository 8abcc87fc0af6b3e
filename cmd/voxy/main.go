package main

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/airenas/voxy/internal/pkg/admission"
	"github.com/airenas/voxy/internal/pkg/audio"
	"github.com/airenas/voxy/internal/pkg/consul"
	"github.com/airenas/voxy/internal/pkg/filestore"
	"github.com/airenas/voxy/internal/pkg/gateway"
	"github.com/airenas/voxy/internal/pkg/postgres"
	"github.com/airenas/voxy/internal/pkg/queue"
	"github.com/airenas/voxy/internal/pkg/results"
	"github.com/airenas/voxy/internal/pkg/sqlite"
	"github.com/airenas/voxy/internal/pkg/submitservice"
	"github.com/airenas/voxy/internal/pkg/transcriber"
	"github.com/airenas/voxy/internal/pkg/utils"
	"github.com/airenas/voxy/internal/pkg/worker"
	capi "github.com/hashicorp/consul/api"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/tracelog"
	"github.com/labstack/gommon/color"
)

// store is the common surface of the sqlite and postgres backends
type store interface {
	queue.DB
	results.DB
}

func main() {
	goapp.StartWithDefault()
	cfg := goapp.Config

	printBanner()

	ctx, cancelFunc := context.WithCancel(context.Background())
	defer cancelFunc()

	var db store
	switch dbType := cfg.GetString("db.type"); dbType {
	case "", "sqlite":
		sdb, err := sqlite.NewDB(cfg.GetString("db.path"))
		if err != nil {
			goapp.Log.Fatal().Err(err).Msg("can't init sqlite db")
		}
		defer sdb.Close()
		db = sdb
	case "postgres":
		dbConfig, err := pgxpool.ParseConfig(cfg.GetString("db.url"))
		if err != nil {
			goapp.Log.Fatal().Err(err).Msg("can't init db pool")
		}
		dbConfig.ConnConfig.Tracer = &tracelog.TraceLog{Logger: utils.NewPgxLoggerAdapter(),
			LogLevel: tracelog.LogLevelDebug}
		goapp.Log.Info().Int32("max_conn", dbConfig.MaxConns).Int32("min_conn", dbConfig.MinConns).Msg("db info")
		dbPool, err := pgxpool.NewWithConfig(ctx, dbConfig)
		if err != nil {
			goapp.Log.Fatal().Err(err).Msg("can't init db pool")
		}
		defer dbPool.Close()
		pdb, err := postgres.NewDB(ctx, dbPool)
		if err != nil {
			goapp.Log.Fatal().Err(err).Msg("can't init db")
		}
		db = pdb
	default:
		goapp.Log.Fatal().Msgf("unknown db.type '%s'", dbType)
	}

	jobs, err := queue.New(ctx, db)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init queue")
	}
	cache, err := results.NewCache(db)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init result cache")
	}

	owners, err := parseOwners(cfg.GetString("admission.owners"))
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't parse admission.owners")
	}
	maxDuration := time.Second * 60
	if s := cfg.GetInt("admission.maxDurationSecs"); s > 0 {
		maxDuration = time.Duration(s) * time.Second
	}
	admitter, err := admission.NewService(jobs, cache, maxDuration, owners)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init admission service")
	}

	msgr, err := gateway.NewClient(cfg.GetString("gateway.url"))
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init gateway client")
	}
	normalizer, err := audio.NewFFMpeg(cfg.GetString("ffmpeg.path"))
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init audio normalizer")
	}

	wData := &worker.ServiceData{Queue: jobs, Messenger: msgr, Normalizer: normalizer, Results: cache}
	wData.FailDelay = cfg.GetDuration("worker.failDelay")

	if consulAddr := cfg.GetString("consul.address"); consulAddr != "" {
		prv, err := consul.NewProvider(&capi.Config{Address: consulAddr}, cfg.GetString("transcriber.service"))
		if err != nil {
			goapp.Log.Fatal().Err(err).Msg("can't init consul provider")
		}
		checkEvery := defaultV(cfg.GetDuration("consul.checkEvery"), time.Second*15)
		if _, err := prv.StartRegistryLoop(ctx, checkEvery); err != nil {
			goapp.Log.Fatal().Err(err).Msg("can't start consul registry loop")
		}
		wData.Transcriber = prv
	} else {
		trc, err := transcriber.NewClient(cfg.GetString("transcriber.url"))
		if err != nil {
			goapp.Log.Fatal().Err(err).Msg("can't init transcriber")
		}
		wData.Transcriber, err = transcriber.NewStaticProvider(trc, defaultV(cfg.GetString("transcriber.service"), "whisper"))
		if err != nil {
			goapp.Log.Fatal().Err(err).Msg("can't init transcriber provider")
		}
	}

	if cfg.GetString("filer.url") != "" {
		wData.Filer, err = filestore.NewFiler(ctx, cfg)
		if err != nil {
			goapp.Log.Fatal().Err(err).Msg("can't init filer")
		}
	}

	wsh := submitservice.NewWSConnKeeper()
	wData.Notifier, err = submitservice.NewNotifier(wsh)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init ws notifier")
	}

	doneCh, err := worker.StartWorkerService(ctx, wData)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't start worker service")
	}

	retention := defaultV(cfg.GetDuration("cache.retention"), time.Hour*24*7)
	sweepEvery := defaultV(cfg.GetDuration("cache.sweepEvery"), time.Hour*3)
	sweepCh, err := cache.StartSweepLoop(ctx, sweepEvery, retention)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't start sweep loop")
	}

	go utils.RunPerfEndpoint()

	data := &submitservice.Data{Port: cfg.GetInt("port"), Admitter: admitter, Results: cache,
		Queue: jobs, WSHandler: wsh}
	if err := submitservice.StartWebServer(data); err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't start web server")
	}
	cancelFunc()
	for _, ch := range []<-chan struct{}{doneCh, sweepCh} {
		select {
		case <-ch:
		case <-time.After(time.Second * 15):
			goapp.Log.Warn().Msg("Timeout gracefull shutdown")
		}
	}
	goapp.Log.Info().Msg("All code returned. Now exit. Bye")
}

func defaultV[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}

func parseOwners(s string) ([]int64, error) {
	var res []int64
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		id, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return nil, err
		}
		res = append(res, id)
	}
	return res, nil
}

var (
	version = "DEV"
)

func printBanner() {
	banner := `
 _   ______  _  ____  __
| | / / __ \| |/_/\ \/ /
| |/ / /_/ />  <   \  /
|___/\____/_/|_|   /_/   v: %s

%s
________________________________________________________

`
	cl := color.New()
	cl.Printf(banner, cl.Red(version), cl.Green("https://github.com/airenas/voxy"))
}
