package main

import (
	"context"
	"os/signal"
	"syscall"

	"bookshop/internal/config"
	"bookshop/internal/model"
	"bookshop/internal/queue"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// auditlog tails the order event topic and appends each event to the
// order_audits table.
func main() {
	_ = godotenv.Load()

	log, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("config load", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := gorm.Open(sqlite.Open(cfg.DBPath), &gorm.Config{})
	if err != nil {
		log.Fatal("db open", zap.Error(err))
	}
	if err := db.AutoMigrate(&model.OrderAudit{}); err != nil {
		log.Fatal("db migrate", zap.Error(err))
	}

	consumer := queue.NewConsumer(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.KafkaGroupID, db, log)
	defer consumer.Close()

	log.Info("audit consumer running",
		zap.String("topic", cfg.KafkaTopic),
		zap.String("group", cfg.KafkaGroupID))
	consumer.Run(ctx)
}
