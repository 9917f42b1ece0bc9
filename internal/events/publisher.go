package events

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const TypeApplicationSubmitted = "instructor.application.submitted"

// ApplicationSubmitted se publica cuando un perfil entra en la cola de revision.
type ApplicationSubmitted struct {
	Type           string    `json:"type"`
	ApplicationID  string    `json:"application_id"`
	ProfileID      string    `json:"profile_id"`
	Email          string    `json:"email"`
	FullName       string    `json:"full_name,omitempty"`
	ExpertiseAreas []string  `json:"expertise_areas"`
	CredentialURL  string    `json:"credential_url"`
	SubmittedAt    time.Time `json:"submitted_at"`
}

// Publisher notifica a los consumidores de administracion.
type Publisher interface {
	PublishApplicationSubmitted(ctx context.Context, evt ApplicationSubmitted) error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher publica eventos de la cola de revision en Kafka.
type KafkaPublisher struct {
	writer messageWriter
	logger *zap.Logger
}

func NewKafkaPublisher(brokers []string, topic string, logger *zap.Logger) (*KafkaPublisher, error) {
	if len(brokers) == 0 || topic == "" {
		return nil, errors.New("kafka brokers and topic are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 10 * time.Millisecond,
		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			logger.Sugar().Errorf(msg, args...)
		}),
	}
	return &KafkaPublisher{writer: writer, logger: logger}, nil
}

func (p *KafkaPublisher) PublishApplicationSubmitted(ctx context.Context, evt ApplicationSubmitted) error {
	evt.Type = TypeApplicationSubmitted
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(evt.ProfileID),
		Value: data,
		Time:  evt.SubmittedAt,
	})
	if err != nil {
		p.logger.Error("publish application event failed",
			zap.Error(err),
			zap.String("application_id", evt.ApplicationID),
		)
		return err
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

type noopPublisher struct{}

// NewNoopPublisher descarta eventos; se usa cuando Kafka no esta configurado.
func NewNoopPublisher() Publisher {
	return noopPublisher{}
}

func (noopPublisher) PublishApplicationSubmitted(context.Context, ApplicationSubmitted) error {
	return nil
}
