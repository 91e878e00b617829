package main

import (
	"context"
	"fmt"
	logger "log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/OpenTransitTools/wawbus/business/analytics"
	"github.com/OpenTransitTools/wawbus/business/data/ztm"
	"github.com/OpenTransitTools/wawbus/business/dataset"
	"github.com/OpenTransitTools/wawbus/business/ztmapi"
	"github.com/OpenTransitTools/wawbus/foundation/database"
	"github.com/OpenTransitTools/wawbus/foundation/metrics"
	"github.com/ardanlabs/conf"
	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"
)

var build = "develop"

const prefix = "WAWBUS"

// config is parsed from flags and WAWBUS_ prefixed environment variables
type config struct {
	conf.Version
	Args conf.Args
	API  struct {
		Key        string `conf:"noprint"`
		RetryCount int    `conf:"default:3"`
		BaseURL    string `conf:"default:https://api.um.warszawa.pl/api/action/"`
	}
	Collect struct {
		Count       int           `conf:"default:25"`
		Sleep       time.Duration `conf:"default:10s"`
		VehicleType string        `conf:"default:bus"`
		Workers     int           `conf:"default:5"`
	}
	Data struct {
		Output    string
		Input     string
		Stops     string
		Timetable string
		FrozenDir string `conf:"default:data"`
	}
	Analytics struct {
		Tolerance    int     `conf:"default:900"`
		ParkedRadius float64 `conf:"default:0"`
		MaxSpeed     float64 `conf:"default:95"`
		Plausible    bool    `conf:"default:false"`
	}
	DB struct {
		User       string `conf:"default:postgres"`
		Password   string `conf:"default:postgres,noprint"`
		Host       string
		Name       string `conf:"default:postgres"`
		DisableTLS bool   `conf:"default:true"`
	}
	NATS struct {
		URL     string
		Subject string `conf:"default:wawbus-positions"`
	}
	Web struct {
		Port int `conf:"default:8080"`
	}
}

func main() {
	log := logger.New(os.Stdout, "WAWBUS : ", logger.LstdFlags|logger.Lmicroseconds|logger.Lshortfile)
	if err := run(log); err != nil {
		log.Printf("main: error: %v", err)
		os.Exit(1)
	}
}

func run(log *logger.Logger) error {
	// a missing .env file is fine, the environment may already be set
	_ = godotenv.Load()

	var cfg config
	cfg.Version.SVN = build
	cfg.Version.Desc = "Collect and analyze Warsaw public transport vehicle positions"
	if err := conf.Parse(os.Args[1:], prefix, &cfg); err != nil {
		switch err {
		case conf.ErrHelpWanted:
			return printUsage(&cfg)
		case conf.ErrVersionWanted:
			version, err := conf.VersionString(prefix, &cfg)
			if err != nil {
				return fmt.Errorf("generating config version: %w", err)
			}
			fmt.Println(version)
			return nil
		}
		return fmt.Errorf("parsing config: %w", err)
	}

	command := cfg.Args.Num(0)
	if err := validateConfig(command, &cfg); err != nil {
		return err
	}
	if command == "" {
		return printUsage(&cfg)
	}

	// =========================================================================
	// App Starting

	log.Printf("main : Started : Application initializing : version %s", build)
	defer log.Println("main: Completed")

	out, err := conf.String(&cfg)
	if err != nil {
		return fmt.Errorf("generating config for output: %w", err)
	}
	log.Printf("main: Config :\n%v\n", out)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &application{
		log:     log,
		cfg:     &cfg,
		metrics: metrics.NewCollector(),
		frozen: &dataset.FrozenStore{
			Log: log,
			Dir: cfg.Data.FrozenDir,
		},
	}

	// =========================================================================
	// Start Database

	dbConfig := database.Config{
		User:       cfg.DB.User,
		Password:   cfg.DB.Password,
		Host:       cfg.DB.Host,
		Name:       cfg.DB.Name,
		DisableTLS: cfg.DB.DisableTLS,
	}
	if dbConfig.Enabled() {
		log.Println("main: Initializing database support")
		app.db, err = database.Open(dbConfig)
		if err != nil {
			return fmt.Errorf("connecting to db: %w", err)
		}
		if err = database.StatusCheck(ctx, app.db); err != nil {
			_ = app.db.Close()
			return err
		}
		defer func() {
			log.Printf("main: Database Stopping : %s", cfg.DB.Host)
			if err := app.db.Close(); err != nil {
				log.Printf("main: error closing database: %v", err)
			}
		}()
	}

	// =========================================================================
	// Start NATS

	if cfg.NATS.URL != "" {
		log.Printf("main: Connecting to NATS : %s", cfg.NATS.URL)
		app.natsConn, err = nats.Connect(cfg.NATS.URL,
			nats.Name("wawbus"),
			nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
				log.Printf("nats disconnected: %v", err)
			}),
			nats.ReconnectHandler(func(_ *nats.Conn) {
				log.Printf("nats reconnected")
			}))
		if err != nil {
			return fmt.Errorf("connecting to nats: %w", err)
		}
		defer app.natsConn.Close()
	}

	switch command {
	case "collect":
		return app.collect(ctx)
	case "stops":
		return app.stops(ctx)
	case "timetables":
		return app.timetables(ctx)
	case "speed":
		return app.speed(ctx)
	case "late":
		return app.late(ctx)
	case "serve":
		return app.serve(ctx)
	}
	return fmt.Errorf("unknown command %q", command)
}

// validateConfig reports configuration errors of command before any work begins
func validateConfig(command string, cfg *config) error {
	needsKey := command == "collect" || command == "stops" || command == "timetables"
	needsOutput := needsKey || command == "speed" || command == "late"
	if needsKey && cfg.API.Key == "" {
		return ztmapi.ErrMissingAPIKey
	}
	if needsOutput {
		if cfg.Data.Output == "" {
			return fmt.Errorf("command %s requires an output file", command)
		}
		if _, err := dataset.FormatFromPath(cfg.Data.Output); err != nil {
			return err
		}
	}
	if (command == "speed" || command == "late" || command == "serve") && cfg.Data.Input == "" {
		return fmt.Errorf("command %s requires an input positions dataset", command)
	}
	if strings.HasPrefix(cfg.Data.Input, recordedRunPrefix) && cfg.DB.Host == "" {
		return errNoDatabase
	}
	if command == "collect" {
		if _, err := ztm.ParseVehicleType(cfg.Collect.VehicleType); err != nil {
			return err
		}
	}
	if command == "late" && cfg.Analytics.Tolerance < 0 {
		return analytics.ErrNegativeTolerance
	}
	return nil
}

func printUsage(cfg *config) error {
	fmt.Println("collect: poll vehicle positions and write them to the output file")
	fmt.Println("stops: download stop locations")
	fmt.Println("timetables: download the timetable of every line at every stop")
	fmt.Println("speed: derive vehicle speeds from an input positions dataset")
	fmt.Println("late: match an input positions dataset against the timetable")
	fmt.Println("serve: serve an input positions dataset over http")
	usage, err := conf.Usage(prefix, cfg)
	if err != nil {
		return fmt.Errorf("generating config usage: %w", err)
	}
	fmt.Println(usage)
	return nil
}
