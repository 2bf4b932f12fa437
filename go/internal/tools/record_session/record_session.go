package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/quizlink/go/clients/session_api_client"
	"github.com/mcdev12/quizlink/go/internal/client"
	"github.com/mcdev12/quizlink/go/internal/config"
	"github.com/mcdev12/quizlink/go/internal/creds"
	"github.com/mcdev12/quizlink/go/internal/dbconfig"
	"github.com/mcdev12/quizlink/go/internal/history"
	"github.com/mcdev12/quizlink/go/internal/session"
)

// record_session joins a session as a silent observer and persists every
// event and answer result to Postgres for post-game review.
func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	sessionCode := flag.String("session", "", "session code to record")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("no .env file loaded")
	}
	if *sessionCode == "" {
		fmt.Fprintln(os.Stderr, "-session is required")
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dbconfig.NewConfigFromEnv().DSN())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	repo := history.NewRepository(pool)

	clock := clockwork.NewRealClock()
	store := creds.NewStore(cfg.Service.TokenFile, cfg.Service.TokenEnv, cfg.Service.APIKey, clock)
	bearer, _ := store.BearerToken()
	api := session_api_client.NewSessionApiClient(cfg.Service.HTTPBaseURL, bearer, cfg.Service.APIKey)

	transportConfig := session.DefaultTransportConfig(cfg.Service.WSBaseURL)
	transportConfig.ClientType = "observer"
	c := client.New(transportConfig, store, api, clock)

	code := *sessionCode
	c.Router().Tap(func(env session.Envelope) {
		if err := repo.RecordEvent(ctx, code, env); err != nil {
			log.Warn().Err(err).Str("event_type", string(env.Type)).Msg("failed to record event")
		}
	})
	c.Router().OnAnswerResult(func(p session.AnswerResultPayload) {
		answer := history.Answer{
			SessionCode: code,
			PlayerID:    p.PlayerID,
			QuestionID:  p.QuestionID,
			Answer:      p.Answer,
			Correct:     p.Correct,
		}
		if err := repo.RecordAnswer(ctx, answer); err != nil {
			log.Warn().Err(err).Msg("failed to record answer")
		}
	})

	identity := session.Identity{
		SessionCode: code,
		PlayerID:    uuid.New().String(),
		PlayerName:  "session-recorder",
	}
	if err := c.Connect(identity); err != nil {
		log.Fatal().Err(err).Msg("failed to join session")
	}
	log.Info().Str("session_code", code).Msg("recording session")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	c.Disconnect()
}
