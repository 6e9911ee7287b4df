package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/CodedInternet/goswerve/comms"
	"github.com/CodedInternet/goswerve/onboard"
	"github.com/CodedInternet/goswerve/onboard/canbus"
	"github.com/CodedInternet/goswerve/onboard/hardware"
	"github.com/CodedInternet/goswerve/onboard/telemetry"
	"github.com/asdine/storm/v3"
	"github.com/caarlos0/env/v6"
	"github.com/edaniels/golog"
	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/jessevdk/go-flags"
	"github.com/pkg/errors"
)

type EnvConfig struct {
	JWT_ISSUER string `env:"JWT_ISSUER" envDefault:"DEV"`
	JWT_SECRET string `env:"JWT_SECRET"`
	DEBUG      bool   `env:"DEBUG" envDefault:"false"`
	CONFIG     string `env:"CONFIG"`
	DBFILE     string `env:"DB" envDefault:"./tmp/dev.db"`
	LISTEN     string `env:"LISTEN" envDefault:"0.0.0.0:8080"`
	HTMLDIR    string `env:"HTMLDIR"`
	DB         *storm.DB
}

var (
	ENV *EnvConfig
)

func init() {
	ENV = new(EnvConfig)
	if err := env.Parse(ENV); err != nil {
		panic(err)
	}
	if ENV.JWT_SECRET != "" {
		JWT_HMAC_SECRET = []byte(ENV.JWT_SECRET)
	}
}

type Options struct {
	Config      string             `short:"c" long:"config" description:"Robot config file, defaults to $CONFIG or the built in robot"`
	Run         RunCommand         `command:"run" description:"Run the control loop and operator server"`
	CheckConfig CheckConfigCommand `command:"check-config" description:"Load and validate the robot config"`
}

var opts Options
var parser = flags.NewParser(&opts, flags.Default)

func main() {
	parser.LongDescription = "goswerve - swerve chassis and claw controller"

	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}
}

func loadConfig() (onboard.RobotConfig, error) {
	path := opts.Config
	if path == "" {
		path = ENV.CONFIG
	}
	if path == "" {
		cfg := onboard.DefaultConfig()
		return cfg, cfg.Validate()
	}
	return onboard.LoadConfig(path)
}

type CheckConfigCommand struct{}

func (c *CheckConfigCommand) Execute(args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	fmt.Printf("config ok: %s bus, %d modules, loop %s\n", cfg.Bus.Kind, len(cfg.Drive.Modules), cfg.LoopPeriod)
	return nil
}

type RunCommand struct {
	Sim    bool   `long:"sim" description:"Drive a simulated robot instead of the bus in the config"`
	Listen string `short:"l" long:"listen" description:"Address to serve on, defaults to $LISTEN"`
	Shell  bool   `long:"shell" description:"Start the development shell on stdin"`
}

func (c *RunCommand) Execute(args []string) error {
	logger := golog.NewDevelopmentLogger("goswerve")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if c.Sim {
		cfg.Bus.Kind = onboard.BusSim
	}

	db, err := openDb(ENV.DBFILE)
	if err != nil {
		return err
	}
	ENV.DB = db
	defer db.Close()

	journal, err := telemetry.NewJournal(db, logger.Named("journal"))
	if err != nil {
		return err
	}
	defer journal.Close()

	bus, sim, err := openBus(cfg, logger.Named("bus"))
	if err != nil {
		return err
	}
	defer bus.Close()

	conductor := comms.NewConductor(nil, cfg.TelemetryInterval, logger.Named("comms"))
	robot, err := onboard.NewRobot(cfg, bus, telemetry.Multi{journal, conductor}, logger.Named("robot"))
	if err != nil {
		return err
	}
	conductor.Device = robot

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		onboard.RunLoop(ctx, cfg.LoopPeriod, func(dt time.Duration) {
			robot.Periodic(dt)
			if sim != nil {
				sim.Step(dt)
			}
		})
	}()

	if c.Shell {
		shell := newShell(robot, journal, db)
		go shell.Run()
	}

	listen := c.Listen
	if listen == "" {
		listen = ENV.LISTEN
	}
	srv := &http.Server{Addr: listen, Handler: newRouter(&api{robot: robot, journal: journal}, conductor, !ENV.DEBUG)}
	go func() {
		logger.Infow("listening", "addr", listen, "bus", cfg.Bus.Kind)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Errorw("http server stopped", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	<-loopDone
	// publish the zeroed targets; closing the bus puts the motors in neutral
	robot.Stop()
	robot.Periodic(cfg.LoopPeriod)

	shutdownCtx, done := context.WithTimeout(context.Background(), 2*time.Second)
	defer done()
	return srv.Shutdown(shutdownCtx)
}

type actuatorBus interface {
	hardware.ActuatorBus
	Close() error
}

func openBus(cfg onboard.RobotConfig, logger golog.Logger) (actuatorBus, *onboard.SimulatedBus, error) {
	var raw canbus.CANBusInterface
	var err error

	switch cfg.Bus.Kind {
	case onboard.BusSim:
		sim := onboard.NewSimulatedBus(cfg)
		return sim, sim, nil
	case onboard.BusSocketCAN:
		raw, err = canbus.NewCANBus(cfg.Bus.Interface)
	case onboard.BusSLCAN:
		raw, err = canbus.NewSLCANBus(cfg.Bus.Port, cfg.Bus.Baud, cfg.Bus.Bitrate)
	default:
		err = errors.Errorf("unknown bus kind %q", cfg.Bus.Kind)
	}
	if err != nil {
		return nil, nil, errors.Wrap(err, "open bus")
	}

	bus, err := hardware.NewCANActuatorBus(raw, cfg.HardwareBus(), logger)
	if err != nil {
		raw.Close()
		return nil, nil, err
	}
	return bus, nil, nil
}

func openDb(dbFile string) (db *storm.DB, err error) {
	dir := filepath.Dir(dbFile)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
	}

	db, err = storm.Open(dbFile)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", dbFile)
	}

	// call inits for each type
	for _, v := range []interface{}{&Operator{}, &telemetry.Fault{}} {
		if err := db.Init(v); err != nil {
			db.Close()
			return nil, err
		}
	}

	return db, nil
}

func newRouter(a *api, conductor *comms.Conductor, authenticate bool) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.RedirectSlashes)
	r.Use(middleware.Recoverer) // make sure this is last

	protect := func(r chi.Router) {
		if authenticate {
			r.Use(ValidateJWT)
		}
	}

	r.Route("/api", func(r chi.Router) {
		r.Post("/login", Login)

		r.Group(func(r chi.Router) {
			protect(r)
			r.Get("/refresh_token", JWTRefresh)
			a.Routes(r)
		})
	})

	r.Route("/ws", func(r chi.Router) {
		protect(r)
		r.Get("/telemetry", TelemetryHandler(conductor))
	})

	if ENV.HTMLDIR != "" {
		FileServer(r, "/", http.Dir(ENV.HTMLDIR))
	}
	return r
}

// FileServer conveniently sets up a http.FileServer handler to serve
// static files from a http.FileSystem.
func FileServer(r chi.Router, path string, root http.FileSystem) {
	if strings.ContainsAny(path, "{}*") {
		panic("FileServer does not permit URL parameters.")
	}

	fs := http.StripPrefix(path, http.FileServer(root))

	if path != "/" && path[len(path)-1] != '/' {
		r.Get(path, http.RedirectHandler(path+"/", 301).ServeHTTP)
		path += "/"
	}
	path += "*"

	r.Get(path, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fs.ServeHTTP(w, r)
	}))
}
