package main

import (
	"context"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/airenas/voxy/internal/pkg/clean"
	"github.com/airenas/voxy/internal/pkg/postgres"
	"github.com/airenas/voxy/internal/pkg/results"
	"github.com/airenas/voxy/internal/pkg/sqlite"
	"github.com/airenas/voxy/internal/pkg/utils"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/tracelog"
	"github.com/labstack/gommon/color"
)

// store is the common surface of the sqlite and postgres backends
type store interface {
	results.DB
	clean.Cleaner
}

func main() {
	goapp.StartWithDefault()
	cfg := goapp.Config

	data := &clean.Data{}
	data.Port = cfg.GetInt("port")

	ctx := context.Background()

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

	data.Cleaner = db

	cache, err := results.NewCache(db)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init result cache")
	}

	printBanner()

	retention := cfg.GetDuration("cache.retention")
	if retention <= 0 {
		retention = time.Hour * 24 * 7
	}
	sweepEvery := cfg.GetDuration("cache.sweepEvery")
	if sweepEvery <= 0 {
		sweepEvery = time.Hour * 3
	}
	goapp.Log.Info().Dur("retention", retention).Dur("runEvery", sweepEvery).Msg("sweep cfg")

	ctxTimer, cancelFunc := context.WithCancel(ctx)
	doneCh, err := cache.StartSweepLoop(ctxTimer, sweepEvery, retention)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't start sweep timer")
	}
	err = clean.StartWebServer(data)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't start web server")
	}
	cancelFunc()
	select {
	case <-doneCh:
		goapp.Log.Info().Msg("All code returned. Now exit. Bye")
	case <-time.After(time.Second * 15):
		goapp.Log.Warn().Msg("Timeout gracefull shutdown")
	}
}

var (
	version = "DEV"
)

func printBanner() {
	banner := `
 _   ______  _  ____  __
| | / / __ \| |/_/\ \/ /
| |/ / /_/ />  <   \  /
|___/\____/_/|_|   /_/

        __
  _____/ /__  ____ _____           _  __
 / ___/ / _ \/ __ ` + "`" + `/ __ \   ______| |/_/_____
/ /__/ /  __/ /_/ / / / /  /_____/>  </_____/
\___/_/\___/\__,_/_/ /_/        /_/|_|   v: %s

%s
________________________________________________________

`
	cl := color.New()
	cl.Printf(banner, cl.Red(version), cl.Green("https://github.com/airenas/voxy"))
}
