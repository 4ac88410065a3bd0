package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/a-atpv/report-bot-amu/internal/bot"
	"github.com/a-atpv/report-bot-amu/internal/config"
	"github.com/a-atpv/report-bot-amu/internal/digest"
	"github.com/a-atpv/report-bot-amu/internal/observability"
	"github.com/a-atpv/report-bot-amu/internal/registry"
	"github.com/a-atpv/report-bot-amu/internal/storage/mysql"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer logger.Sync()

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		logger.Warn("unknown timezone, using UTC+05",
			zap.String("timezone", cfg.Timezone), zap.Error(err))
		loc = time.FixedZone("UTC+05", 5*3600)
	}

	sendTimes, err := cfg.ClockTimes()
	if err != nil {
		logger.Fatal("invalid send times", zap.Error(err))
	}

	store, err := mysql.Open(mysql.Config{
		Host:         cfg.DB.Host,
		Port:         cfg.DB.Port,
		User:         cfg.DB.User,
		Password:     cfg.DB.Password,
		Database:     cfg.DB.Name,
		MaxOpenConns: cfg.DB.MaxOpenConns,
		Tables: mysql.Tables{
			Tickets:       cfg.Tables.Tickets,
			Users:         cfg.Tables.Users,
			Buildings:     cfg.Tables.Buildings,
			Categories:    cfg.Tables.Categories,
			Subcategories: cfg.Tables.Subcategories,
		},
	}, logger)
	if err != nil {
		logger.Fatal("open ticket store", zap.Error(err))
	}
	defer store.Close()

	// The database may be down at startup; the bot still serves /status
	// and echoes, so only warn.
	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := store.Ping(pingCtx); err != nil {
		logger.Warn("ticket store unreachable at startup", zap.Error(err))
	}
	cancel()

	reg := registry.New(cfg.ChatIDsFile, logger)
	reg.Load()
	logger.Info("chat registry loaded",
		zap.Int("chats", reg.Len()), zap.String("file", cfg.ChatIDsFile))
	if cfg.AnnounceChatID != 0 {
		if _, err := reg.Track(cfg.AnnounceChatID); err != nil {
			logger.Warn("failed to track announce chat",
				zap.Int64("chat_id", cfg.AnnounceChatID), zap.Error(err))
		}
	}

	api, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		logger.Fatal("connect to telegram", zap.Error(err))
	}

	b := bot.New(bot.Deps{
		API:       api,
		Store:     store,
		Digest:    digest.New(store, cfg.DepartmentID, cfg.FetchLimit),
		Registry:  reg,
		Log:       logger,
		Location:  loc,
		SendTimes: sendTimes,
	})

	go func() {
		if err := b.Start(); err != nil {
			logger.Fatal("bot stopped", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	b.Stop()
}
