package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/sos_unifio/backend/internal/auth"
	"github.com/sos_unifio/backend/internal/backendapi"
	"github.com/sos_unifio/backend/internal/config"
	"github.com/sos_unifio/backend/internal/db"
	"github.com/sos_unifio/backend/internal/geocode"
	httpapi "github.com/sos_unifio/backend/internal/http"
	"github.com/sos_unifio/backend/internal/localstate"
	"github.com/sos_unifio/backend/internal/models"
	"github.com/sos_unifio/backend/internal/push"
	"github.com/sos_unifio/backend/internal/realtime"
	"github.com/sos_unifio/backend/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	zerolog.TimeFieldFormat = time.RFC3339
	level, _ := zerolog.ParseLevel(cfg.LogLevel)
	logger := log.Level(level).With().Str("service", "sos-unifio-dispatch").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var persisters service.MultiPersister

	var store *db.Store
	if cfg.DatabaseURL != "" {
		store, err = db.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect db")
		}
		defer store.Close()
		if err := store.Migrate(ctx); err != nil {
			logger.Fatal().Err(err).Msg("failed to migrate db")
		}
		persisters = append(persisters, store)
	} else {
		logger.Info().Msg("DATABASE_URL not set, running without postgres")
	}

	state, err := localstate.Open(cfg.StateFile, logger)
	if err != nil {
		logger.Fatal().Err(err).Str("path", cfg.StateFile).Msg("failed to open local state")
	}
	persisters = append(persisters, state)

	var backend *backendapi.Client
	if cfg.BackendURL != "" {
		backend = backendapi.New(cfg.BackendURL, cfg.BackendToken)
		persisters = append(persisters, backend)
	}

	occurrences := service.NewOccurrenceStore(persisters, logger)
	restored := restoreOccurrences(ctx, store, state, logger)
	occurrences.Restore(restored)

	roster, locations := loadRoster(ctx, cfg, store, backend, logger)
	if cfg.NominatimURL != "" {
		geocoder := &geocode.NominatimGeocoder{BaseURL: cfg.NominatimURL}
		locations = geocode.FillCoordinates(ctx, geocoder, cfg.Campus, locations, logger)
		if store != nil {
			for _, l := range locations {
				if l.Lat != nil && l.Lon != nil {
					if err := store.UpdateLocationCoords(ctx, l.ID, *l.Lat, *l.Lon); err != nil {
						logger.Warn().Err(err).Str("location_id", l.ID).Msg("failed to store coordinates")
					}
				}
			}
		}
	}

	dispatcher := service.NewDispatcher(occurrences, service.SystemClock, logger)
	dispatcher.CallTimeout = cfg.CallTimeout
	go occurrences.Run(ctx)
	go dispatcher.Run(ctx)

	if err := dispatcher.SetResponders(ctx, roster); err != nil {
		logger.Fatal().Err(err).Msg("failed to load roster")
	}
	if err := dispatcher.SetLocations(ctx, locations); err != nil {
		logger.Fatal().Err(err).Msg("failed to load locations")
	}
	redispatch(ctx, dispatcher, restored, logger)

	hub := realtime.NewHub(dispatcher, occurrences.Get, service.SystemClock, logger)
	hub.ResurfaceAfter = cfg.ResurfaceAfter

	var tokens *auth.Tokens
	if cfg.JWTSecret != "" {
		tokens = auth.NewTokens(cfg.JWTSecret, cfg.TokenTTL)
		hub.Tokens = tokens
	} else {
		logger.Warn().Msg("JWT_SECRET not set, responder identity is not verified")
	}

	simulator := realtime.NewSimulator(dispatcher, cfg.SimulatorInterval, logger)
	simulator.Locations = locations
	if cfg.SimulatorInterval > 0 {
		go simulator.Run(ctx)
	}

	if cfg.RealtimeURL != "" {
		go realtime.NewFeed(cfg.RealtimeURL, cfg.BackendToken, dispatcher, logger).Run(ctx)
	}

	if cfg.FirebaseCredentials != "" {
		sender, err := push.NewFirebaseSender(ctx, cfg.FirebaseCredentials)
		if err != nil {
			logger.Error().Err(err).Msg("push notifications disabled")
		} else {
			notifier := &push.Notifier{Sender: sender, Tokens: deviceTokens(dispatcher), Logger: logger}
			events, unsubscribe := dispatcher.Subscribe(128)
			defer unsubscribe()
			go notifier.Run(ctx, events)
		}
	}

	deps := httpapi.Deps{
		Dispatcher: dispatcher,
		Hub:        hub,
		Simulator:  simulator,
		State:      state,
		Tokens:     tokens,
		Locations:  locations,
	}
	if store != nil {
		deps.Store = store
		deps.Availability = store
	}
	if backend != nil {
		deps.Backend = backend
	}
	router := httpapi.Router(cfg, deps, logger)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info().Str("port", cfg.Port).Msg("server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()

	hub.Close()
	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctxShutdown)
	logger.Info().Msg("server stopped")
}

// restoreOccurrences prefers postgres and falls back to the local snapshot.
func restoreOccurrences(ctx context.Context, store *db.Store, state *localstate.Store, logger zerolog.Logger) []models.Occurrence {
	if store != nil {
		items, err := store.ListActiveOccurrences(ctx)
		if err == nil {
			logger.Info().Int("count", len(items)).Msg("restored occurrences from db")
			return items
		}
		logger.Warn().Err(err).Msg("failed to restore occurrences from db")
	}
	items, err := state.Occurrences()
	if err != nil {
		logger.Warn().Err(err).Msg("failed to restore occurrences from local state")
		return nil
	}
	logger.Info().Int("count", len(items)).Msg("restored occurrences from local state")
	return items
}

// loadRoster reads the roster file when configured, seeding postgres with it,
// and otherwise reads postgres. Locations come from the file, the backend or
// postgres, in that order.
func loadRoster(ctx context.Context, cfg config.Config, store *db.Store, backend *backendapi.Client, logger zerolog.Logger) ([]models.Responder, []models.Location) {
	var (
		responders []models.Responder
		locations  []models.Location
	)
	if cfg.RespondersFile != "" {
		roster, err := config.LoadRoster(cfg.RespondersFile)
		if err != nil {
			logger.Fatal().Err(err).Str("path", cfg.RespondersFile).Msg("failed to load roster file")
		}
		responders, locations = roster.Responders, roster.Locations
		if store != nil {
			if err := store.UpsertResponders(ctx, responders); err != nil {
				logger.Warn().Err(err).Msg("failed to seed responders")
			}
			if err := store.UpsertLocations(ctx, locations); err != nil {
				logger.Warn().Err(err).Msg("failed to seed locations")
			}
		}
	} else if store != nil {
		var err error
		responders, err = store.ListResponders(ctx)
		if err != nil {
			logger.Warn().Err(err).Msg("failed to load responders")
		}
	}

	if len(locations) == 0 && backend != nil {
		items, err := backend.ListLocations(ctx)
		if err != nil {
			logger.Warn().Err(err).Msg("failed to load locations from backend")
		}
		locations = items
	}
	if len(locations) == 0 && store != nil {
		items, err := store.ListLocations(ctx)
		if err != nil {
			logger.Warn().Err(err).Msg("failed to load locations")
		}
		locations = items
	}

	if len(responders) == 0 {
		logger.Warn().Msg("empty responder roster, every occurrence will be escalated")
	}
	logger.Info().Int("responders", len(responders)).Int("locations", len(locations)).Msg("roster loaded")
	return responders, locations
}

// redispatch offers restored occurrences still waiting for a responder.
func redispatch(ctx context.Context, d *service.Dispatcher, items []models.Occurrence, logger zerolog.Logger) {
	for _, o := range items {
		if o.Status.Terminal() || !o.Status.Before(models.StatusEmAtendimento) {
			continue
		}
		if _, err := d.Dispatch(ctx, o.ID, nil); err != nil {
			logger.Warn().Err(err).Str("occurrence_id", o.ID).Msg("restored occurrence not dispatched")
		}
	}
}

func deviceTokens(d *service.Dispatcher) push.TokenLookup {
	return func(ctx context.Context, responderID string) (string, bool) {
		roster, err := d.Responders(ctx)
		if err != nil {
			return "", false
		}
		for _, r := range roster {
			if r.ID == responderID {
				return r.DeviceToken, r.DeviceToken != ""
			}
		}
		return "", false
	}
}
