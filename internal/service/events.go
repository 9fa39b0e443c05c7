package service

import (
	"encoding/json"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/eventium/auth-service/internal/model"
	"github.com/eventium/auth-service/pkg/kafka"
)

type Enqueuer interface {
	Enqueue(topic string, v any) error
}

func NewEnqueuer(producer sarama.SyncProducer) Enqueuer {
	return &enqueuerImpl{
		producer: producer,
	}
}

type enqueuerImpl struct {
	producer sarama.SyncProducer
}

func (q *enqueuerImpl) Enqueue(topic string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	msg := &sarama.ProducerMessage{Topic: topic, Value: sarama.StringEncoder(data)}
	if _, _, err = q.producer.SendMessage(msg); err != nil {
		return err
	}
	return nil
}

// enqueue publishes an auth event best-effort. Event delivery never fails a
// workflow.
func (s *Service) enqueue(eventType string, user model.User) {
	if s.enqueuer == nil {
		return
	}
	event := kafka.EventAuth{
		Type:  eventType,
		Email: user.Email,
		Role:  user.Role,
		At:    time.Now().UTC(),
	}
	if err := s.enqueuer.Enqueue(kafka.AuthTopic, event); err != nil {
		s.log.Warn("enqueue auth event", zap.String("type", eventType), zap.Error(err))
	}
}
