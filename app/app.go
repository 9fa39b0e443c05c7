package app

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/eventium/auth-service/config"
	"github.com/eventium/auth-service/internal/handler"
	"github.com/eventium/auth-service/internal/provider"
	"github.com/eventium/auth-service/internal/repository"
	"github.com/eventium/auth-service/internal/server"
	"github.com/eventium/auth-service/internal/service"
	"github.com/eventium/auth-service/internal/token"
	"github.com/eventium/auth-service/migrations"
	"github.com/eventium/auth-service/pkg/kafka"
	"github.com/eventium/auth-service/pkg/logger"
	"github.com/eventium/auth-service/pkg/postgres"
)

func Run(cfg config.Config) {
	log := logger.NewLogger(cfg.Log, "auth")
	db, err := postgres.NewPostgresDB(context.Background(), &cfg.Database, migrations.MigrationFiles)
	if err != nil {
		log.Fatal("db init", zap.Error(err))
	}
	repo, err := repository.NewRepository(db, log)
	if err != nil {
		log.Fatal("repo", zap.Error(err))
	}

	var enqueuer service.Enqueuer
	var producer sarama.SyncProducer
	if len(cfg.Kafka.Addrs) > 0 {
		producer, err = kafka.NewProducer(cfg.Kafka)
		if err != nil {
			log.Fatal("kafka.NewProducer", zap.Error(err))
		}
		enqueuer = service.NewEnqueuer(producer)
	}

	idp := provider.NewService(log, cfg.IdentityProvider)
	issuer := token.NewIssuer(cfg.Auth.JWTSecret)
	svc := service.NewService(repo, idp, issuer, enqueuer, cfg.Auth, log)

	h := handler.New(svc, cfg.Auth, log)
	srv := server.NewServer(cfg.Server, h.NewRouter())
	log.Info("http server start ON: ",
		zap.String("addr",
			net.JoinHostPort(cfg.Server.Host, cfg.Server.Port)))
	go func() {
		if err := srv.Run(); err != nil {
			log.Error("server run", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	termSig := <-sig

	log.Debug("Graceful shutdown", zap.Any("signal", termSig))

	closeCtx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()

	if err = srv.Stop(closeCtx); err != nil {
		log.DPanic("srv.Stop", zap.Error(err))
	}
	if producer != nil {
		_ = producer.Close()
	}
	db.Close()
	log.Info("Graceful shutdown finished")
}
