package main

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"astapp/internal/cache"
	"astapp/internal/config"
	"astapp/internal/logging"
	"astapp/internal/repository"
	"astapp/internal/service"
)

var seedCreator string

var seedCmd = &cobra.Command{
	Use:   "seed <appId> <file>",
	Short: "Store a form document in MongoDB and refresh its cache entry",
	Args:  cobra.ExactArgs(2),
	RunE:  runSeed,
}

func init() {
	seedCmd.Flags().StringVar(&seedCreator, "creator", "", "owning creator id (defaults to the configured creator username)")
}

func runSeed(cmd *cobra.Command, args []string) error {
	appID, path := args[0], args[1]

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return err
	}
	defer logger.Sync()

	_, text, err := readForm(path)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.Mongo.URI))
	if err != nil {
		return fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	defer client.Disconnect(context.Background())

	rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
	defer rdb.Close()

	forms := service.NewFormService(
		repository.NewFormRepo(client.Database(cfg.Mongo.Database)),
		cache.NewFormCache(rdb, cfg.Redis.FormTTL),
		cfg.Scoring,
		logger,
	)

	creator := seedCreator
	if creator == "" {
		creator = cfg.Auth.CreatorUsername
	}
	doc, parsed, err := forms.Save(ctx, service.SaveRequest{AppID: appID, CreatorID: creator, ASTText: text})
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "seeded %s for creator %s (%d questions)\n", doc.AppID, doc.CreatorID, len(parsed.Questions))
	return nil
}
