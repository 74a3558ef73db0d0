package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/oklog/ulid/v2"
)

// PredictionClient scores rides against a running service.
type PredictionClient interface {
	Predict(ctx context.Context, ride RideRequest) (*PredictResponse, error)
	Close() error
}

// HTTPClient calls POST /predict.
type HTTPClient struct {
	baseURL string
	http    *http.Client
}

func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// Predict returns the decoded body for any status that carries one; a
// rejected ride comes back with Error set and a nil error.
func (c *HTTPClient) Predict(ctx context.Context, ride RideRequest) (*PredictResponse, error) {
	body, err := json.Marshal(ride)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/predict", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", ulid.Make().String())

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var out PredictResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("unexpected response (%s): %w", resp.Status, err)
	}
	if out.Prediction == "" && out.Error == "" {
		return nil, fmt.Errorf("unexpected response (%s): neither prediction nor error", resp.Status)
	}
	return &out, nil
}

func (c *HTTPClient) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

// Conn is the part of *nats.Conn the NATS client needs.
type Conn interface {
	Subscribe(subj string, cb nats.MsgHandler) (*nats.Subscription, error)
	Publish(subj string, data []byte) error
	RequestWithContext(ctx context.Context, subj string, data []byte) (*nats.Msg, error)
	Close()
}

// NATSClient publishes work items to the JetStream subject and waits for
// the reply on a per-request inbox.
type NATSClient struct {
	conn     Conn
	subject  string
	clientID string
	timeout  time.Duration
}

// NewNATSClient connects to natsURL. subject is the stream subject the
// service consumes from.
func NewNATSClient(natsURL, subject, clientID string) (*NATSClient, error) {
	conn, err := nats.Connect(natsURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return NewNATSClientWithConn(conn, subject, clientID), nil
}

func NewNATSClientWithConn(conn Conn, subject, clientID string) *NATSClient {
	if clientID == "" {
		clientID = "rideguard-client"
	}
	return &NATSClient{
		conn:     conn,
		subject:  subject,
		clientID: clientID,
		timeout:  30 * time.Second,
	}
}

func (c *NATSClient) Predict(ctx context.Context, ride RideRequest) (*PredictResponse, error) {
	reqID := ulid.Make().String()
	replySubject := fmt.Sprintf("rides.predict.response.%s.%s", c.clientID, reqID)

	requestBytes, err := json.Marshal(PredictionMessage{
		TraceID: reqID,
		ReqID:   reqID,
		Record:  ride,
		ReplyTo: replySubject,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	// Subscribe before publishing so a fast reply is not lost.
	replyChan := make(chan *nats.Msg, 1)
	sub, err := c.conn.Subscribe(replySubject, func(msg *nats.Msg) {
		select {
		case replyChan <- msg:
		default:
		}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to reply: %w", err)
	}
	defer func() { _ = sub.Unsubscribe() }()

	slog.Debug("Sending prediction request", "subject", c.subject, "req_id", reqID, "reply_subject", replySubject)

	if err := c.conn.Publish(c.subject, requestBytes); err != nil {
		return nil, fmt.Errorf("failed to publish request: %w", err)
	}

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case msg := <-replyChan:
		var response PredictResponse
		if err := json.Unmarshal(msg.Data, &response); err != nil {
			return nil, fmt.Errorf("failed to parse response: %w", err)
		}
		return &response, nil
	case <-timer.C:
		return nil, fmt.Errorf("request timeout after %v", c.timeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// CheckHealth asks one replica of model for its status.
func (c *NATSClient) CheckHealth(ctx context.Context, model string) (*HealthStatus, error) {
	reqCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	msg, err := c.conn.RequestWithContext(reqCtx, fmt.Sprintf("models.%s.health", model), []byte("{}"))
	if err != nil {
		return nil, fmt.Errorf("health check failed: %w", err)
	}

	var health HealthStatus
	if err := json.Unmarshal(msg.Data, &health); err != nil {
		return nil, fmt.Errorf("failed to parse health response: %w", err)
	}
	return &health, nil
}

func (c *NATSClient) Close() error {
	if c.conn != nil {
		c.conn.Close()
	}
	return nil
}

// SetTimeout configures request timeout
func (c *NATSClient) SetTimeout(timeout time.Duration) {
	c.timeout = timeout
}
