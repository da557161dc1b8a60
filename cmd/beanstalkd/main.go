// Command beanstalkd runs the in-memory work queue server.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/VertebrateResequencing/beanstalkd/internal/config"
	"github.com/VertebrateResequencing/beanstalkd/internal/logger"
	"github.com/VertebrateResequencing/beanstalkd/internal/panics"
	"github.com/VertebrateResequencing/beanstalkd/jobqueue"
)

const usage = `usage: beanstalkd [-p port] [-d]

  -p port   listen port (default 11300)
  -d        detach (daemonize)
  -h        show this help
`

func main() {
	os.Exit(run())
}

func run() int {
	fs := flag.NewFlagSet("beanstalkd", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	fs.Usage = func() { fmt.Fprint(os.Stderr, usage) }

	port := fs.Int("p", 11300, "listen port")
	daemonize := fs.Bool("d", false, "detach (daemonize)")

	if err := fs.Parse(os.Args[1:]); err != nil {
		if err == flag.ErrHelp {
			return 0
		}
		fmt.Fprint(os.Stderr, usage)
		return 5
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "beanstalkd: config: %s\n", err)
		return 1
	}
	// -p overrides BEANSTALKD_ADDR only when given explicitly.
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "p" {
			cfg.Addr = fmt.Sprintf(":%d", *port)
		}
	})

	log := logger.New(cfg.LoggerConfig())
	defer log.Close()

	if *daemonize {
		// Detaching from the controlling terminal is an OS-level process
		// operation (fork+setsid) outside what this runtime can do to
		// itself; operators run beanstalkd under a supervisor (systemd,
		// runit) instead. Logged so -d isn't silently a no-op.
		log.Warn("-d (daemonize) is not implemented; run under a process supervisor instead")
	}

	ignoreSIGPIPE()

	srv := jobqueue.NewServer(cfg.HeapSize, log)
	defer srv.Close()

	ln, err := jobqueue.Listen(cfg.Addr, srv)
	if err != nil {
		log.Error("listen failed", "addr", cfg.Addr, "err", err)
		return 111
	}
	log.Info("listening", "addr", ln.Addr().String())

	var hb *jobqueue.Heartbeat
	if cfg.StatsHeartbeat != "" {
		hb, err = jobqueue.NewHeartbeat(srv, cfg.StatsHeartbeat)
		if err != nil {
			log.Warn("stats heartbeat disabled: bad schedule", "schedule", cfg.StatsHeartbeat, "err", err)
		} else {
			hb.Start()
		}
	}

	go watchDrainSignal(srv, log)

	serveErr := make(chan error, 1)
	go func() {
		defer panics.Recover(log, "listener")
		serveErr <- ln.Serve()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("received shutdown signal", "signal", sig.String())
	case err := <-serveErr:
		if err != nil {
			log.Error("listener failed", "err", err)
			return 111
		}
	}

	if hb != nil {
		hb.Stop()
	}
	ln.Shutdown()
	return 0
}

// watchDrainSignal puts the server into irreversible drain mode when
// SIGUSR1 is received, per the process's signal contract.
func watchDrainSignal(srv *jobqueue.Server, log logger.Logger) {
	defer panics.Recover(log, "drain signal watcher")
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGUSR1)
	for range ch {
		srv.Drain()
	}
}

func ignoreSIGPIPE() {
	signal.Ignore(syscall.SIGPIPE)
}
