package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/platinummonkey/medtrail/pkg/async"
	"github.com/platinummonkey/medtrail/pkg/audit"
	"github.com/platinummonkey/medtrail/pkg/auth"
	"github.com/platinummonkey/medtrail/pkg/config"
	"github.com/platinummonkey/medtrail/pkg/lab"
	"github.com/platinummonkey/medtrail/pkg/observability"
	"github.com/platinummonkey/medtrail/pkg/storage/mongo"
	"github.com/platinummonkey/medtrail/pkg/storage/postgres"
)

type options struct {
	count    int
	workers  int
	timeout  time.Duration
	token    bool
	tokenTTL time.Duration
	user     string
	role     string
	name     string
	logLevel string
}

func parseFlags() options {
	var o options
	flag.IntVar(&o.count, "count", 100, "Number of audit entries to append")
	flag.IntVar(&o.workers, "workers", 4, "Concurrent writers")
	flag.DurationVar(&o.timeout, "timeout", 5*time.Second, "Timeout per append")
	flag.BoolVar(&o.token, "token", false, "Print a signed development token instead of seeding")
	flag.DurationVar(&o.tokenTTL, "token-ttl", 24*time.Hour, "Lifetime of the printed token")
	flag.StringVar(&o.user, "user", "dev-admin", "User id placed in the token")
	flag.StringVar(&o.role, "role", string(auth.RoleAdmin), "Role placed in the token")
	flag.StringVar(&o.name, "name", "", "Display name placed in the token")
	flag.StringVar(&o.logLevel, "log-level", "info", "Log level")
	flag.Parse()
	return o
}

func main() {
	opts := parseFlags()
	logger := observability.NewLoggerWithFormat(observability.ParseLogLevel(opts.logLevel), "text", os.Stderr)

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	if opts.token {
		if err := printToken(cfg.Auth, opts); err != nil {
			logger.WithError(err).Error("Failed to issue token")
			os.Exit(1)
		}
		return
	}

	if err := seed(context.Background(), cfg.Storage, opts, logger); err != nil {
		logger.WithError(err).Error("Seeding failed")
		os.Exit(1)
	}
}

func printToken(cfg config.AuthConfig, opts options) error {
	tokens, err := auth.NewTokenManager(cfg.JWTSecret)
	if err != nil {
		return err
	}
	token, err := tokens.Issue(auth.Principal{
		ID:   opts.user,
		Role: auth.Role(opts.role),
		Name: opts.name,
	}, opts.tokenTTL)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}

type closer func(context.Context) error

func openStore(ctx context.Context, cfg config.StorageConfig, logger *observability.Logger) (audit.Store, closer, error) {
	switch cfg.Backend {
	case config.BackendPostgres:
		conns, err := postgres.NewConnectionManager(ctx, postgres.ConnectionConfig{
			PrimaryURL: cfg.PostgresURL,
			MaxConns:   cfg.PostgresMaxConns,
			MinConns:   cfg.PostgresMinConns,
			Timeout:    cfg.PostgresTimeout,
		}, logger)
		if err != nil {
			return nil, nil, err
		}
		store := postgres.NewStore(conns, logger)
		if err := store.EnsureSchema(ctx); err != nil {
			conns.Close()
			return nil, nil, err
		}
		return store, func(context.Context) error { return store.Close() }, nil

	case config.BackendMongo:
		store, err := mongo.NewStore(ctx, mongo.Config{
			URI:        cfg.MongoURI,
			Database:   cfg.MongoDatabase,
			Collection: cfg.MongoCollection,
			Timeout:    cfg.MongoTimeout,
		}, logger)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	}

	return nil, nil, errors.New("seeding needs a persistent backend (postgres or mongo)")
}

var demoActions = []struct{ action, entity string }{
	{lab.ActionCreateUser, lab.EntityUser},
	{lab.ActionUpdateUser, lab.EntityUser},
	{lab.ActionCreateReport, lab.EntityReport},
	{lab.ActionUpdateReport, lab.EntityReport},
	{lab.ActionDeleteReport, lab.EntityReport},
	{lab.ActionDeleteUser, lab.EntityUser},
}

var demoActors = []string{"admin", "Jane Doe", "lab-tech-2", audit.AnonymousActor}

func demoEntries(n int) []audit.AuditEntry {
	entries := make([]audit.AuditEntry, n)
	for i := range entries {
		a := demoActions[i%len(demoActions)]
		entries[i] = audit.AuditEntry{
			Action:       a.action,
			Entity:       a.entity,
			ActorDisplay: demoActors[i%len(demoActors)],
			Details:      audit.Details{"targetId": uuid.NewString(), "seeded": true},
		}
	}
	return entries
}

func seed(ctx context.Context, cfg config.StorageConfig, opts options, logger *observability.Logger) error {
	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore(context.Background())

	start := time.Now()
	errs := async.Batch(ctx, logger, demoEntries(opts.count), opts.workers, "seed audit entry", opts.timeout,
		func(ctx context.Context, e audit.AuditEntry) error {
			_, err := store.Append(ctx, e)
			return err
		})

	logger.WithFields(map[string]interface{}{
		"appended": opts.count - len(errs),
		"failed":   len(errs),
		"elapsed":  time.Since(start).String(),
	}).Info("Seeding finished")

	return errors.Join(errs...)
}
