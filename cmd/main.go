package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/credvend/credvend-server/internal/api/telegram"
	"github.com/credvend/credvend-server/internal/auth"
	"github.com/credvend/credvend-server/internal/config"
	"github.com/credvend/credvend-server/internal/logger"
	"github.com/credvend/credvend-server/internal/model"
	"github.com/credvend/credvend-server/internal/repository/postgres"
	"github.com/credvend/credvend-server/internal/service"
	storage "github.com/credvend/credvend-server/internal/storage/minio"
)

var (
	buildVersion = "N/A" // set by ldflags
	buildDate    = "N/A" // set by ldflags
	buildCommit  = "N/A" // set by ldflags
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT, os.Interrupt)
	defer stop()

	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatalf("failed to parse config: %v", err)
	}
	logger := logger.New(cfg.LogLevel)

	db, err := postgres.NewConnection(ctx, cfg.Database.DSN)
	if err != nil {
		logger.Fatal("failed to initialize storage", "error", err)
	}
	defer db.Close()

	catalogStore := postgres.NewCatalog(db)
	guard := auth.NewGuard(cfg.Telegram.AdminIDs)

	minioClient, err := minio.New(cfg.Storage.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.Storage.AccessKey, cfg.Storage.SecretKey, ""),
		Secure: cfg.Storage.UseSSL,
	})
	if err != nil {
		logger.Fatal("failed to create minio client", "error", err)
	}
	proofStore, err := storage.NewProofStore(ctx, minioClient, cfg.Storage.Bucket)
	if err != nil {
		logger.Fatal("failed to initialize proof storage", "error", err)
	}

	purchaseService := service.NewPurchase(catalogStore, guard, model.SystemClock{}, logger)
	catalogService := service.NewCatalog(catalogStore, guard, logger)

	botClient, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		logger.Fatal("failed to create bot client", "error", err)
	}
	botClient.Debug = cfg.Telegram.Debug

	bot := telegram.NewBot(botClient, purchaseService, catalogService, proofStore, telegram.Config{
		AdminIDs:     cfg.Telegram.AdminIDs,
		AdminContact: cfg.Telegram.AdminContact,
	}, logger)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		logger.Info("Starting bot", "account", botClient.Self.UserName)
		if err := bot.Run(ctx); err != nil {
			logger.Error("bot stopped with error", "error", err)
		}
	}()

	logAppVersion()

	<-ctx.Done()
	logger.Info("received interruption signal, shutting down")

	wg.Wait()
	logger.Info("shutdown complete")
}

func logAppVersion() {
	tmpl := `
Build version: %s
Build date: %s
Build commit: %s
`

	fmt.Printf(tmpl, buildVersion, buildDate, buildCommit)
}
