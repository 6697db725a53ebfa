package main

import (
	"context"
	"log/slog"
	"os"
	"strconv"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"

	"mentorgraph/handler"
	"mentorgraph/internal/integrations/paramstore"
	"mentorgraph/internal/integrations/signer"
	"mentorgraph/internal/ledger"
	"mentorgraph/internal/repository"
	"mentorgraph/internal/usecase"
)

func main() {
	ctx := context.Background()
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: envLevel("LOG_LEVEL", slog.LevelInfo)})))

	// ---- Configuration (read only here) ----
	entityTable := mustEnv("ENTITY_TABLE")
	paramPrefix := mustEnv("PARAM_PREFIX")
	spaceID := os.Getenv("SPACE_ID")
	maxQueryEntities := envInt("MAX_QUERY_ENTITIES", 1000)

	// ---- AWS SDK config ----
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		slog.Error("failed to load AWS config", "err", err)
		os.Exit(1)
	}

	// ---- Clients ----
	ssmClient, err := paramstore.New(awsssm.NewFromConfig(cfg), paramPrefix)
	if err != nil {
		slog.Error("failed to create SSM client", "err", err)
		os.Exit(1)
	}
	store, err := repository.NewDynamoStore(awsdynamodb.NewFromConfig(cfg), entityTable)
	if err != nil {
		slog.Error("failed to create entity store", "err", err)
		os.Exit(1)
	}

	wallet, err := signer.Load(ctx, ssmClient, signer.DefaultParam, os.Getenv("SIGNING_KEY"))
	if err != nil {
		slog.Error("failed to load signing key", "err", err)
		os.Exit(1)
	}
	ledgerClient, err := ledger.NewClient(store, wallet, maxQueryEntities)
	if err != nil {
		slog.Error("failed to create ledger client", "err", err)
		os.Exit(1)
	}

	// ---- Handler ----
	svc, err := usecase.NewService(ledgerClient, spaceID, slog.Default())
	if err != nil {
		slog.Error("failed to create service", "err", err)
		os.Exit(1)
	}

	h, err := handler.NewHandler(svc)
	if err != nil {
		slog.Error("failed to create handler", "err", err)
		os.Exit(1)
	}

	lambda.Start(h.Handle)
}

func mustEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		slog.Error("required environment variable is not set", "key", key)
		os.Exit(1)
	}
	return v
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envLevel(key string, def slog.Level) slog.Level {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(v)); err != nil {
		return def
	}
	return level
}
