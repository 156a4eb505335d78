package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/chargeview/dashboard-bff/auth"
	"github.com/chargeview/dashboard-bff/internal/config"
	"github.com/chargeview/dashboard-bff/proxy"
	"github.com/chargeview/dashboard-bff/server"
	"github.com/chargeview/dashboard-bff/sessions"
	"github.com/chargeview/dashboard-bff/upstream"
	"github.com/common-nighthawk/go-figure"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	for {
		if err := run(); err != nil {
			log.Error().Err(err).Msg("Error running server")
			time.Sleep(1 * time.Second)
		} else {
			break
		}
	}
	log.Info().Msg("Server stopped")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("Recovered from panic")
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	c := config.New()
	configureLogging(c)
	displayAppname(c.GetAppName())

	// Explicit construction, torn down with the process: store → issuer →
	// manager → dispatcher → server.
	store := sessions.NewInMemorySessionRepo()
	issuer := upstream.NewClient(c.GetUpstreamBaseURL(),
		upstream.WithHTTPClient(&http.Client{Timeout: c.GetExchangeTimeout()}),
		upstream.WithLogger(log.Logger),
	)

	manager, err := auth.NewSessionManager(store, issuer,
		auth.WithRefreshWindow(c.GetRefreshWindow()),
		auth.WithLogger(log.Logger),
	)
	if err != nil {
		return fmt.Errorf("auth.NewSessionManager: %w", err)
	}

	dispatcher := proxy.NewDispatcher(manager, c.GetUpstreamBaseURL(),
		proxy.WithHTTPClient(&http.Client{
			Timeout:       c.GetForwardTimeout(),
			CheckRedirect: func(_ *http.Request, _ []*http.Request) error { return http.ErrUseLastResponse },
		}),
		proxy.WithLogger(log.Logger),
	)

	srv, err := server.New(c, manager, dispatcher)
	if err != nil {
		return fmt.Errorf("server.New: %w", err)
	}

	httpServer := &http.Server{Addr: c.GetPort(), Handler: srv}
	go listenAndServe(httpServer)
	waitForStopSignal()
	returnError = shutdown(httpServer)
	return returnError
}

func listenAndServe(server *http.Server) error {
	log.Info().Str("addr", server.Addr).Msg("Server listening")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server.ListenAndServe %w", err)
	}
	return nil
}

func waitForStopSignal() {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func configureLogging(c config.Config) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if c.GetEnv() == "DEV" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
