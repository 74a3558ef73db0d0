package services

import (
	"context"
	"errors"

	"github.com/aigoflow/rideguard/internal/config"
	"github.com/aigoflow/rideguard/internal/pipeline"
)

// LoadPipeline performs the one-time pipeline load for the configured
// backend. conn is only used by the NATS backend and may be nil otherwise.
func LoadPipeline(ctx context.Context, cfg *config.Config, conn pipeline.Requester) (pipeline.Pipeline, error) {
	switch cfg.ModelBackend {
	case config.BackendNATS:
		if conn == nil {
			return nil, errors.New("nats backend selected but no NATS connection")
		}
		return pipeline.DialRemote(ctx, conn, cfg.ModelName, cfg.RemoteTimeout)
	default:
		p, err := pipeline.LoadWithAutoDownload(cfg.ModelPath, cfg.ModelURL, pipeline.Options{
			UnknownPolicy: cfg.UnknownPolicy,
		})
		if err != nil {
			return nil, err
		}
		return p, nil
	}
}
