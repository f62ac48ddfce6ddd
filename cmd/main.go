package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"timecourse_control/internal/config"
	"timecourse_control/internal/handlers"
	"timecourse_control/internal/logger"
	"timecourse_control/internal/repository"
	"timecourse_control/internal/repository/db"
	"timecourse_control/internal/server"
	"timecourse_control/internal/service"
)

const shutdownTimeout = 10 * time.Second

// command describes a CLI subcommand.
type command struct {
	name  string
	short string
	usage string
	long  string
	run   func(args []string) error
}

var commands = []command{
	{
		name:  "serve",
		short: "Run the HTTP API",
		usage: "tcc serve [--config FILE] [--port PORT] [--db.path FILE] [--log.level LEVEL]",
		long: `Serve the control problem API.

Configuration is read from configs/config.yml (or --config), then TCC_*
environment variables, then flags. auth.signing_key must be set.
`,
		run: runServe,
	},
	{
		name:  "compile",
		short: "Compile a control problem manifest into PEtab tables",
		usage: "tcc compile <manifest> --out DIR [--conditions F] [--parameters F] [--measurements F] [--base-timecourse S]",
		long: `Assemble the control problem named by the manifest on top of an optional
base problem and write conditions.tsv, parameters.tsv, measurements.tsv,
timecourses.tsv and model_changes.yaml to DIR. observables.tsv is written
when the problem has observables.

--fix id=value fixes a base parameter before assembly. --switches also
writes the switch-indicator form (switch_conditions.tsv,
switch_timecourses.tsv) and adds its assignment rules to model_changes.yaml.
`,
		run: runCompile,
	},
	{
		name:  "truncate",
		short: "Window a combined estimation and control problem",
		usage: "tcc truncate --variant estimation|control --t0 T --t1 T --parameters F --measurements F --control-parameters F --control-measurements F --out DIR",
		long: `Combine the original estimation problem with the control problem and keep
only what the chosen variant needs inside [t0, t1].

The estimation variant keeps original measurements in the window and fixes
control parameters to their nominal values. The control variant keeps
control measurements in the window and fixes the original parameters.
--inclusive picks which window ends are closed: left, right, both, neither.
`,
		run: runTruncate,
	},
}

func printUsage(w io.Writer) {
	fmt.Fprintf(w, "tcc: timecourse control problem compiler\n\n")
	fmt.Fprintf(w, "Usage:\n  tcc <command> [arguments]\n\n")
	fmt.Fprintf(w, "Commands:\n")
	for _, cmd := range commands {
		fmt.Fprintf(w, "  %-10s %s\n", cmd.name, cmd.short)
	}
	fmt.Fprintf(w, "\nRun 'tcc help <command>' for details on a specific command.\n")
}

func printCommandHelp(w io.Writer, name string) {
	for _, cmd := range commands {
		if cmd.name == name {
			fmt.Fprintf(w, "Usage: %s\n\n%s", cmd.usage, cmd.long)
			return
		}
	}
	fmt.Fprintf(w, "tcc: unknown command %q\n\nRun 'tcc help' for usage.\n", name)
}

func dispatch(args []string) error {
	if len(args) == 0 || args[0] == "--help" || args[0] == "-h" {
		printUsage(os.Stdout)
		return nil
	}
	if args[0] == "help" {
		if len(args) >= 2 {
			printCommandHelp(os.Stdout, args[1])
		} else {
			printUsage(os.Stdout)
		}
		return nil
	}
	for _, cmd := range commands {
		if cmd.name == args[0] {
			return cmd.run(args[1:])
		}
	}
	return fmt.Errorf("unknown command %q\n\nRun 'tcc help' for usage.", args[0])
}

func main() {
	if err := dispatch(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "tcc: %v\n", err)
		os.Exit(1)
	}
}

// ---------------------------------------------------------------------------
// serve
// ---------------------------------------------------------------------------

func runServe(args []string) error {
	flags := config.Flags("serve")
	if err := flags.Parse(args); err != nil {
		return err
	}
	cfg, err := config.Load(flags)
	if err != nil {
		return err
	}
	if cfg.Auth.SigningKey == "" {
		return fmt.Errorf("%w: set auth.signing_key or TCC_AUTH_SIGNING_KEY", service.ErrNoSigningKey)
	}

	log := logger.Get(cfg.Log.Level)

	conn, err := db.InitDB(cfg.DB.Path)
	if err != nil {
		return fmt.Errorf("init sqlite: %w", err)
	}
	defer func() {
		if cerr := conn.Close(); cerr != nil {
			log.Errorw("failed to close sqlite", "err", cerr)
		}
	}()

	// wire dependencies
	repos := repository.NewRepository(conn)
	services := service.NewService(repos, service.Options{
		Auth: service.AuthOptions{SigningKey: cfg.Auth.SigningKey, TokenTTL: cfg.Auth.TokenTTL},
		Log:  log,
	})
	apiHandler := handlers.NewHandler(services, log, handlers.Options{DefaultInclusive: cfg.Horizon.Inclusive})

	srv := &server.Server{}
	errc := runHTTPServer(srv, cfg.Port, apiHandler, log)
	return waitForShutdown(errc, srv, log)
}

// runHTTPServer runs the HTTP server in a separate goroutine. The returned
// channel receives the server's exit error.
func runHTTPServer(srv *server.Server, port string, handler *handlers.Handler, log *logger.Logger) <-chan error {
	errc := make(chan error, 1)
	go func() {
		log.Infow("http server starting", "port", port)
		errc <- srv.Run(port, handler.InitRoutes())
	}()
	return errc
}

// waitForShutdown blocks until a termination signal or a server failure and
// then shuts the server down gracefully.
func waitForShutdown(errc <-chan error, srv *server.Server, log *logger.Logger) error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err := <-errc:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-quit:
	}

	log.Infow("shutting down server...")

	// allow in-flight requests to complete
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	return nil
}
