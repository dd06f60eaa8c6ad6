package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/openfroyo/externalcpi/pkg/config"
	"github.com/openfroyo/externalcpi/pkg/cpi"
	"github.com/openfroyo/externalcpi/pkg/providers"
	"github.com/openfroyo/externalcpi/pkg/stores"
	"github.com/openfroyo/externalcpi/pkg/telemetry"
)

// app is everything a command needs to call CPIs.
type app struct {
	cfg       *config.Config
	telemetry *telemetry.Telemetry
	store     *stores.SQLiteStore
	registry  *providers.Registry
	identity  cpi.Identity
}

// openApp loads the config file and wires telemetry, the journal and the
// CPI registry.
func openApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	return newApp(ctx, cfg)
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	tel, err := telemetry.NewTelemetry(&cfg.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("failed to set up telemetry: %w", err)
	}

	a := &app{cfg: cfg, telemetry: tel}

	if cfg.Journal.Enabled {
		a.store, err = stores.Open(ctx, stores.Config{Path: cfg.Journal.Path})
		if err != nil {
			a.close(ctx)
			return nil, fmt.Errorf("failed to open journal: %w", err)
		}

		if cfg.Journal.Retention > 0 {
			pruned, err := a.store.PruneCalls(ctx, time.Now().Add(-cfg.Journal.Retention))
			if err != nil {
				a.close(ctx)
				return nil, fmt.Errorf("failed to prune journal: %w", err)
			}
			if pruned > 0 {
				log.Debug().Int64("entries", pruned).Msg("Pruned call journal")
			}
		}

		a.identity, err = a.store.Identity(ctx, cfg.Director.UUID)
		if err != nil {
			a.close(ctx)
			return nil, fmt.Errorf("failed to resolve director uuid: %w", err)
		}
	} else {
		id := cfg.Director.UUID
		if id == "" {
			id = uuid.New().String()
			log.Warn().Str("director_uuid", id).Msg("No director uuid configured and journal disabled, using a random one")
		}
		a.identity = cpi.StaticIdentity(id)
	}

	a.registry = providers.NewRegistry(a.newCPI)
	if err := a.registry.Load(cfg); err != nil {
		a.close(ctx)
		return nil, err
	}

	return a, nil
}

// newCPI is the registry factory: an instrumented, journaled ExternalCpi.
func (a *app) newCPI(c config.CPIConfig) (*cpi.ExternalCpi, error) {
	cc := cpi.Config{
		Name:     c.Name,
		ExecPath: c.ExecPath,
		Identity: a.identity,
	}
	if a.store != nil {
		journal := stores.NewJournal(a.store)
		journal.OnError = journalErrorLogger(a.telemetry.Logger, c)
		cc.Observer = journal
	}
	return cpi.New(a.telemetry.Instrument(cc))
}

// journalErrorLogger logs journal write failures tagged with the CPI.
func journalErrorLogger(logger *telemetry.Logger, c config.CPIConfig) func(error) {
	l := logger.WithCPI(c.Name, c.ExecPath)
	return func(err error) {
		l.Warnf("Failed to journal cpi call: %v", err)
	}
}

func (a *app) close(ctx context.Context) {
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if err := a.telemetry.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("Telemetry shutdown failed")
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close journal")
		}
	}
}

// requireStore fails for commands that need the journal.
func (a *app) requireStore() (*stores.SQLiteStore, error) {
	if a.store == nil {
		return nil, errors.New("the call journal is disabled in the config")
	}
	return a.store, nil
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
