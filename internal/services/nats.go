package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/oklog/ulid/v2"

	"github.com/aigoflow/rideguard/internal/config"
	"github.com/aigoflow/rideguard/internal/models"
	"github.com/aigoflow/rideguard/internal/schema"
)

// generateWorkerID creates a unique worker ID using timestamp and random bytes
func generateWorkerID() string {
	timestamp := time.Now().UnixNano()
	randomBytes := make([]byte, 4)
	_, _ = rand.Read(randomBytes)
	return fmt.Sprintf("worker-%d-%s", timestamp, hex.EncodeToString(randomBytes))
}

// PredictionMessage is the JetStream work item. Record holds raw JSON values
// and goes through the same coercion as the HTTP body.
type PredictionMessage struct {
	TraceID string         `json:"trace_id,omitempty"`
	ReqID   string         `json:"req_id"`
	Record  map[string]any `json:"record"`
	ReplyTo string         `json:"reply_to,omitempty"`
}

// Connect dials NATS with reconnect logging.
func Connect(cfg *config.Config) (*nats.Conn, error) {
	conn, err := nats.Connect(cfg.NatsURL,
		nats.Name("rideguard-"+cfg.ModelName),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				slog.Warn("NATS disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			slog.Info("NATS reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return conn, nil
}

type NATSService struct {
	conn       *nats.Conn
	js         nats.JetStreamContext
	inference  *AuditedService
	coercer    *schema.Coercer
	cfg        *config.Config
	monitoring *MonitoringService
}

func NewNATSService(conn *nats.Conn, cfg *config.Config, inference *AuditedService, coercer *schema.Coercer, monitoring *MonitoringService) (*NATSService, error) {
	js, err := conn.JetStream()
	if err != nil {
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	return &NATSService{
		conn:       conn,
		js:         js,
		inference:  inference,
		coercer:    coercer,
		cfg:        cfg,
		monitoring: monitoring,
	}, nil
}

// Start runs the workers until ctx is cancelled.
func (s *NATSService) Start(ctx context.Context) error {
	if err := s.ensureStream(); err != nil {
		return fmt.Errorf("failed to ensure stream: %w", err)
	}

	consumer, err := s.createConsumer()
	if err != nil {
		return fmt.Errorf("failed to create consumer: %w", err)
	}

	slog.Info("NATS service starting",
		"stream", s.cfg.Stream,
		"subject", s.cfg.Subject,
		"consumer", s.cfg.Durable,
		"concurrency", s.cfg.Concurrency)

	s.monitoring.Start(ctx)

	for i := 0; i < s.cfg.Concurrency; i++ {
		go s.worker(ctx, consumer, generateWorkerID())
	}

	<-ctx.Done()
	slog.Info("NATS service shutting down")
	if err := consumer.Drain(); err != nil {
		slog.Warn("Failed to drain consumer", "error", err)
	}
	return nil
}

func (s *NATSService) ensureStream() error {
	streamInfo, err := s.js.StreamInfo(s.cfg.Stream)
	if err != nil {
		if !errors.Is(err, nats.ErrStreamNotFound) {
			return fmt.Errorf("failed to get stream info: %w", err)
		}
		_, err = s.js.AddStream(&nats.StreamConfig{
			Name:      s.cfg.Stream,
			Subjects:  []string{s.cfg.Subject},
			MaxMsgs:   int64(s.cfg.MaxMsgs),
			MaxAge:    s.cfg.MaxAge,
			Storage:   nats.FileStorage,
			Retention: nats.WorkQueuePolicy,
		})
		if err != nil {
			return fmt.Errorf("failed to create stream: %w", err)
		}
		slog.Info("Created NATS stream", "name", s.cfg.Stream)
		return nil
	}

	for _, subject := range streamInfo.Config.Subjects {
		if subject == s.cfg.Subject {
			slog.Info("NATS stream already exists", "name", s.cfg.Stream, "messages", streamInfo.State.Msgs)
			return nil
		}
	}

	newConfig := streamInfo.Config
	newConfig.Subjects = append(newConfig.Subjects, s.cfg.Subject)
	if _, err := s.js.UpdateStream(&newConfig); err != nil {
		return fmt.Errorf("failed to update stream with new subject: %w", err)
	}
	slog.Info("Updated NATS stream with new subject", "name", s.cfg.Stream, "subject", s.cfg.Subject)
	return nil
}

func (s *NATSService) createConsumer() (*nats.Subscription, error) {
	sub, err := s.js.PullSubscribe(s.cfg.Subject, s.cfg.Durable,
		nats.ManualAck(),
		nats.AckWait(s.cfg.AckWait),
		nats.MaxDeliver(s.cfg.MaxDeliver),
		nats.MaxAckPending(s.cfg.MaxAckPending),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create pull consumer: %w", err)
	}

	slog.Info("Created NATS consumer", "durable", s.cfg.Durable)
	return sub, nil
}

func (s *NATSService) worker(ctx context.Context, consumer *nats.Subscription, workerID string) {
	slog.Info("NATS worker starting", "worker_id", workerID)

	for {
		select {
		case <-ctx.Done():
			slog.Info("NATS worker shutting down", "worker_id", workerID)
			return
		default:
		}

		msgs, err := consumer.Fetch(1, nats.MaxWait(time.Second))
		if err != nil {
			if errors.Is(err, nats.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			if errors.Is(err, nats.ErrConnectionClosed) || errors.Is(err, nats.ErrBadSubscription) {
				return
			}
			slog.Error("Failed to fetch messages", "worker_id", workerID, "error", err)
			time.Sleep(time.Second)
			continue
		}

		for _, msg := range msgs {
			s.monitoring.IncrementPending()
			s.processMessage(ctx, msg, workerID)
			s.monitoring.DecrementPending()
		}
	}
}

func (s *NATSService) processMessage(ctx context.Context, msg *nats.Msg, workerID string) {
	s.monitoring.IncrementActive()
	defer s.monitoring.DecrementActive()

	reply, replyTo, err := s.handle(ctx, msg.Data, workerID)
	if err != nil {
		// Malformed payloads are terminated, not redelivered.
		slog.Error("Failed to parse prediction message", "worker_id", workerID, "error", err)
		if termErr := msg.Term(); termErr != nil {
			slog.Error("Failed to terminate message", "worker_id", workerID, "error", termErr)
		}
		return
	}

	if replyTo != "" {
		if publishErr := s.conn.Publish(replyTo, reply); publishErr != nil {
			slog.Error("Failed to publish response",
				"worker_id", workerID,
				"reply_subject", replyTo,
				"error", publishErr)
		}
	}

	if ackErr := msg.Ack(); ackErr != nil {
		slog.Error("Failed to acknowledge message", "worker_id", workerID, "error", ackErr)
	}
}

// handle decodes one work item, predicts it and encodes the reply. A
// non-nil error means the payload itself was unreadable. Validation and
// inference failures are encoded into the reply instead.
func (s *NATSService) handle(ctx context.Context, data []byte, workerID string) ([]byte, string, error) {
	var req PredictionMessage
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, "", err
	}
	return HandlePrediction(ctx, s.inference, s.coercer, req, workerID)
}

// HandlePrediction runs one decoded work item through coercion and inference.
func HandlePrediction(ctx context.Context, inference *AuditedService, coercer *schema.Coercer, req PredictionMessage, workerID string) ([]byte, string, error) {
	if req.ReqID == "" {
		req.ReqID = ulid.Make().String()
	}
	call := PredictionRequest{
		TraceID:  req.TraceID,
		ReqID:    req.ReqID,
		Source:   SourceNATS,
		WorkerID: workerID,
		ReplyTo:  req.ReplyTo,
	}

	record, err := coercer.Coerce(req.Record)
	var resp PredictionResponse
	if err != nil {
		inference.RecordRejection(ctx, call, err)
		resp = Respond(req.ReqID, models.Verdict{}, err)
	} else {
		call.Record = record
		verdict, err := inference.ProcessPrediction(ctx, call)
		resp = Respond(req.ReqID, verdict, err)
	}

	out, err := json.Marshal(resp)
	if err != nil {
		return nil, "", fmt.Errorf("failed to marshal response: %w", err)
	}
	return out, req.ReplyTo, nil
}

func (s *NATSService) GetMonitoringService() *MonitoringService {
	return s.monitoring
}
