// Command sessiondemo runs the whole client stack against an in-process
// stub backend: two simulated tabs share a broadcast channel, tab A signs
// in, tab B restores its session over the bridge, and a sign-out from B
// propagates back to A through the durable hint.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http/httptest"
	"os"
	"runtime/debug"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/flowkeep/apiclient/bridge"
	"github.com/flowkeep/apiclient/client"
	"github.com/flowkeep/apiclient/internal/config"
	"github.com/flowkeep/apiclient/internal/metrics"
	"github.com/flowkeep/apiclient/internal/stubapi"
	"github.com/flowkeep/apiclient/session"
	"github.com/flowkeep/apiclient/tabstore"
	"github.com/flowkeep/apiclient/token"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Error running demo: %s\n", err)
	}
	log.Printf("Demo finished\n")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Recovered from panic: %v\n", r)
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	displayAppname("flowkeep")
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	backend := stubapi.New(stubapi.WithLogger(logger.With().Str("component", "stubapi").Logger()))
	if err := backend.AddUser(stubapi.User{
		ID:            "42",
		Email:         "owner@acme.test",
		Name:          "Acme Owner",
		OrgExternalID: "org-acme",
		OrgName:       "Acme GmbH",
	}, "hunter2"); err != nil {
		return err
	}
	srv := httptest.NewServer(backend)
	defer srv.Close()

	cfg := config.Default()
	cfg.BaseURL = srv.URL

	channel := bridge.NewMemChannel()
	durable := tabstore.NewMemoryDurable()
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	tabA, err := newTab("tab-a", cfg, channel, durable, logger, collector)
	if err != nil {
		return err
	}
	defer tabA.manager.Close()
	tabB, err := newTab("tab-b", cfg, channel, durable, logger, collector)
	if err != nil {
		return err
	}
	defer tabB.manager.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	snap, err := tabA.manager.SignIn(ctx, session.Credentials{Email: "owner@acme.test", Password: "hunter2"})
	if err != nil {
		return fmt.Errorf("sign-in: %w", err)
	}
	logger.Info().Str("tab", "tab-a").Str("user", snap.User.ID).Msg("signed in")

	// Tab B starts empty and restores over the bridge.
	tabB.manager.Bootstrap(ctx)
	if s := tabB.manager.Snapshot(); s != nil {
		logger.Info().Str("tab", "tab-b").Str("user", s.User.ID).Msg("restored via bridge")
	}

	// Burst of identical reads: one network call, the rest served from the
	// single-flight map and the micro-cache.
	for i := 0; i < 5; i++ {
		if _, err := tabB.api.Do(ctx, client.Get("/entries", nil)); err != nil {
			return fmt.Errorf("entries: %w", err)
		}
	}
	logger.Info().Int("backend_calls", backend.ResourceCalls("/entries")).Msg("burst of five reads")

	tabB.manager.SignOut(ctx)
	time.Sleep(100 * time.Millisecond)
	logger.Info().
		Bool("tab_a_signed_out", tabA.manager.Snapshot() == nil).
		Int("sign_out_calls", backend.SignOutCalls()).
		Msg("cross-tab sign-out propagated")

	families, err := registry.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}
	for _, mf := range families {
		logger.Info().Str("metric", mf.GetName()).Int("series", len(mf.GetMetric())).Msg("telemetry")
	}

	return nil
}

type tab struct {
	api     *client.Client
	manager *session.Manager
}

func newTab(name string, cfg config.Config, channel *bridge.MemChannel, durable *tabstore.MemoryDurable, logger zerolog.Logger, collector *metrics.Collector) (*tab, error) {
	storage := tabstore.NewMemoryStorage()
	store := token.NewStore(storage)
	identity := token.NewIdentity(storage)
	tabLog := logger.With().Str("tab", name).Logger()

	api, err := client.New(cfg, store, identity, client.WithLogger(tabLog), client.WithMetrics(collector))
	if err != nil {
		return nil, err
	}
	br := bridge.New(store, identity, channel.Join(), bridge.WithLogger(tabLog))
	manager := session.NewManager(cfg, api, store, identity, br, durable.Tab(),
		session.WithLogger(tabLog), session.WithMetrics(collector))
	return &tab{api: api, manager: manager}, nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
