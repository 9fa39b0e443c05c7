package kafka

import (
	"time"

	"github.com/IBM/sarama"
)

const (
	AuthTopic = "auth-events"
)

// Auth event types published by the account service.
const (
	EventUserRegistered = "user.registered"
	EventUserVerified   = "user.verified"
	EventUserLogin      = "user.login"
)

type Config struct {
	Addrs []string `yaml:"addrs" envconfig:"KAFKA_ADDRS"`
}

type EventAuth struct {
	Type  string    `json:"type"`
	Email string    `json:"email"`
	Role  string    `json:"role"`
	At    time.Time `json:"at"`
}

func NewProducer(cfg Config) (sarama.SyncProducer, error) {
	defaultCfg := sarama.NewConfig()

	defaultCfg.Producer.RequiredAcks = sarama.WaitForAll
	defaultCfg.Producer.Return.Successes = true

	return sarama.NewSyncProducer(cfg.Addrs, defaultCfg)
}
