package dialer

import (
	"context"

	"github.com/dense-identity/confdialer/internal/ami"
	"github.com/dense-identity/confdialer/internal/synth"
	"go.uber.org/zap"
)

// Session is one authenticated manager connection. It is used by a single
// operation and closed when that operation returns.
type Session interface {
	ami.Sender
	Close() error
}

// Connector opens manager sessions.
type Connector interface {
	Connect(ctx context.Context) (Session, error)
}

// AssetResolver produces the audio a call plays.
type AssetResolver interface {
	Resolve(ctx context.Context, fileID, message, voice string) (synth.Asset, error)
}

// AMIConnector dials the switch manager port for every session.
type AMIConnector struct {
	cfg ami.Config
	log *zap.Logger
}

func NewAMIConnector(cfg ami.Config, logger *zap.Logger) *AMIConnector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AMIConnector{cfg: cfg, log: logger}
}

func (c *AMIConnector) Connect(ctx context.Context) (Session, error) {
	client, err := ami.Dial(ctx, c.cfg, c.log)
	if err != nil {
		return nil, err
	}
	return client, nil
}
