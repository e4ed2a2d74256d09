package embedding

import (
	"fmt"
	"time"

	"ctxpipe/config"
	"ctxpipe/internal/domain"
	"ctxpipe/internal/port"
)

// New builds the backend for mode. It returns a nil Embedder for the dry
// mode; callers skip vector production in that case.
func New(mode string, cfg config.EmbedConfig) (port.Embedder, error) {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second

	switch mode {
	case config.ModeRemote:
		e, err := NewOpenAIEmbedder(cfg.APIKey, cfg.Model, cfg.BaseURL, cfg.BatchSize, timeout)
		if err != nil {
			return nil, err
		}
		return e, nil
	case config.ModeLocal:
		e, err := NewLocalEmbedder(cfg.LocalModel, cfg.OllamaURL, timeout)
		if err != nil {
			return nil, err
		}
		return e, nil
	case config.ModeDry:
		return nil, nil
	default:
		return nil, fmt.Errorf("%w: unsupported embed mode %q", domain.ErrConfiguration, mode)
	}
}
