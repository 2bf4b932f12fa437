package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/quizlink/go/clients/session_api_client"
	"github.com/mcdev12/quizlink/go/internal/client"
	"github.com/mcdev12/quizlink/go/internal/config"
	"github.com/mcdev12/quizlink/go/internal/creds"
	"github.com/mcdev12/quizlink/go/internal/game"
	"github.com/mcdev12/quizlink/go/internal/relay"
	"github.com/mcdev12/quizlink/go/internal/session"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	sessionCode := flag.String("session", "", "session code to join")
	playerName := flag.String("name", "", "player display name")
	playerID := flag.String("player-id", "", "player id (generated if empty)")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("no .env file loaded")
	}
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if *sessionCode == "" || *playerName == "" {
		log.Fatal().Msg("-session and -name are required")
	}
	if *playerID == "" {
		*playerID = uuid.New().String()
	}

	clock := clockwork.NewRealClock()
	store := creds.NewStore(cfg.Service.TokenFile, cfg.Service.TokenEnv, cfg.Service.APIKey, clock)

	bearer, _ := store.BearerToken()
	api := session_api_client.NewSessionApiClient(cfg.Service.HTTPBaseURL, bearer, cfg.Service.APIKey)

	transportConfig := session.DefaultTransportConfig(cfg.Service.WSBaseURL)
	transportConfig.ClientType = cfg.Service.ClientType
	c := client.New(transportConfig, store, api, clock)

	c.OnConnectionStatus(func(connected bool) {
		log.Info().Bool("connected", connected).Msg("connection status changed")
	})
	c.OnError(func(msg string) {
		log.Error().Str("message", msg).Msg("session error")
	})
	c.OnStateUpdate(func(s game.Snapshot) {
		printSnapshot(s)
	})
	c.Router().OnPlayerJoined(func(p session.PlayerPayload) {
		log.Info().Str("player", p.PlayerName).Msg("player joined")
	})
	c.Router().OnPlayerLeft(func(p session.PlayerPayload) {
		log.Info().Str("player", p.PlayerName).Msg("player left")
	})
	c.Router().OnBuzzerWinner(func(p session.BuzzerPayload) {
		log.Info().Str("player", p.PlayerName).Msg("buzzer winner")
	})

	if cfg.Relay.Enabled {
		if err := startRelay(cfg, c, clock, *sessionCode); err != nil {
			log.Fatal().Err(err).Msg("failed to start relay")
		}
	}

	identity := session.Identity{
		SessionCode: *sessionCode,
		PlayerID:    *playerID,
		PlayerName:  *playerName,
	}
	if err := c.Connect(identity); err != nil {
		log.Fatal().Err(err).Msg("failed to join session")
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info().Msg("shutting down")
	c.Disconnect()
}

func startRelay(cfg *config.Config, c *client.Client, clock clockwork.Clock, sessionCode string) error {
	opts := []nats.Option{
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	}
	nc, err := nats.Connect(cfg.Relay.URL, opts...)
	if err != nil {
		return fmt.Errorf("connect to NATS: %w", err)
	}

	relayConfig := relay.DefaultConfig()
	if cfg.Relay.SubjectPrefix != "" {
		relayConfig.SubjectPrefix = cfg.Relay.SubjectPrefix
	}
	r := relay.New(nc, relayConfig, clock)
	r.Attach(c.Router(), sessionCode)

	if cfg.Relay.HealthAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/healthz", r)
		go func() {
			if err := http.ListenAndServe(cfg.Relay.HealthAddr, mux); err != nil {
				log.Error().Err(err).Msg("relay health server stopped")
			}
		}()
	}
	log.Info().Str("url", cfg.Relay.URL).Msg("event relay started")
	return nil
}

func printSnapshot(s game.Snapshot) {
	if s.Question == nil {
		log.Info().Msg("waiting for next question")
		return
	}
	event := log.Info().
		Str("question_id", s.Question.ID).
		Str("question", s.Question.Text).
		Bool("submitted", s.Submitted).
		Bool("results_visible", s.ResultsVisible)
	for i, a := range s.Answers {
		label := a.Text
		if a.Selected {
			label += " [selected]"
		}
		if a.Correct != nil && *a.Correct {
			label += " [correct]"
		}
		event = event.Str(fmt.Sprintf("option_%d", i), label)
	}
	event.Msg("game state updated")
}
