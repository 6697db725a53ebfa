package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"

	"mentorgraph/internal/config"
	"mentorgraph/internal/integrations/paramstore"
	"mentorgraph/internal/integrations/signer"
	"mentorgraph/internal/ledger"
	"mentorgraph/internal/repository"
	"mentorgraph/internal/usecase"
)

type app struct {
	cfg     config.Config
	store   ledger.Store
	signer  *signer.Signer
	service *usecase.Service
	closers []func() error
}

func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	return errors.Join(errs...)
}

// awsConfigLoader is swapped in tests.
var awsConfigLoader = func(ctx context.Context) (aws.Config, error) {
	return awsconfig.LoadDefaultConfig(ctx)
}

func wireApp(ctx context.Context, cfg config.Config, logger *slog.Logger) (*app, error) {
	a := &app{cfg: cfg}

	var awsCfg *aws.Config
	loadAWS := func() (aws.Config, error) {
		if awsCfg != nil {
			return *awsCfg, nil
		}
		c, err := awsConfigLoader(ctx)
		if err != nil {
			return aws.Config{}, fmt.Errorf("load AWS config: %w", err)
		}
		awsCfg = &c
		return c, nil
	}

	switch cfg.StoreBackend {
	case config.BackendMemory:
		a.store = ledger.NewMemoryStore()
	case config.BackendSQLite:
		st, err := repository.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		a.store = st
		a.closers = append(a.closers, st.Close)
	case config.BackendDynamoDB:
		c, err := loadAWS()
		if err != nil {
			return nil, err
		}
		st, err := repository.NewDynamoStore(awsdynamodb.NewFromConfig(c), cfg.EntityTable)
		if err != nil {
			return nil, err
		}
		a.store = st
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}

	var params paramstore.Getter
	if cfg.ParamPrefix != "" && cfg.SigningKey == "" {
		c, err := loadAWS()
		if err != nil {
			a.Close()
			return nil, err
		}
		pc, err := paramstore.New(awsssm.NewFromConfig(c), cfg.ParamPrefix)
		if err != nil {
			a.Close()
			return nil, err
		}
		params = pc
	}

	sg, err := signer.Load(ctx, params, signer.DefaultParam, cfg.SigningKey)
	if err != nil && params == nil && cfg.StoreBackend != config.BackendDynamoDB {
		sg, err = signer.Generate()
		if err == nil {
			logger.Warn("no signing key configured, using an ephemeral key", "address", sg.Address())
		}
	}
	if err != nil {
		a.Close()
		return nil, err
	}
	a.signer = sg

	client, err := ledger.NewClient(a.store, sg, cfg.MaxQueryEntities)
	if err != nil {
		a.Close()
		return nil, err
	}
	svc, err := usecase.NewService(client, cfg.SpaceID, logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.service = svc
	return a, nil
}
