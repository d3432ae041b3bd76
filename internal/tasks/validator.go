package tasks

import (
	"context"
	"errors"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/tmx/internal/models"
	"github.com/desertthunder/tmx/internal/services"
	"github.com/desertthunder/tmx/internal/shared"
	"golang.org/x/sync/errgroup"
)

const (
	msgMalformed    = "malformed credentials"
	msgUnauthorized = "invalid API key or insufficient permissions"
	msgTimeout      = "account did not respond in time"
	msgUnreachable  = "account unreachable"
)

// Validator checks that accounts are reachable and authorized.
type Validator struct {
	connector services.Connector
	settings  Settings
	logger    *log.Logger
}

func NewValidator(connector services.Connector, settings Settings, logger *log.Logger) *Validator {
	return &Validator{connector: connector, settings: settings.normalize(), logger: logger}
}

// Validate probes both accounts concurrently. Each side fails independently and
// failures are reported in the result, never as an error.
func (v *Validator) Validate(ctx context.Context, source, destination models.AccountCredentials) models.ValidationResult {
	var result models.ValidationResult

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		result.SourceAccount = v.Check(gctx, source)
		return nil
	})
	g.Go(func() error {
		result.DestinationAccount = v.Check(gctx, destination)
		return nil
	})
	_ = g.Wait()

	return result
}

// Check probes a single account.
func (v *Validator) Check(ctx context.Context, creds models.AccountCredentials) models.AccountStatus {
	logger := shared.WithLogger(v.logger, "tenant", creds.TenantID)

	if err := creds.Validate(); err != nil {
		logger.Warn("credential shape rejected", "err", err)
		return models.AccountStatus{Error: describeAccountError(err)}
	}

	tenant, err := v.connector.Connect(creds)
	if err != nil {
		logger.Warn("connect failed", "err", err)
		return models.AccountStatus{Error: describeAccountError(err)}
	}

	var loc *services.Location
	err = withRetry(ctx, v.settings, logger, "probe", func() error {
		var err error
		loc, err = tenant.Probe(ctx)
		return err
	})
	if err != nil {
		logger.Warn("probe failed", "err", err)
		return models.AccountStatus{Error: describeAccountError(err)}
	}

	logger.Debug("account validated", "location", loc.Name)
	return models.AccountStatus{IsValid: true, LocationName: loc.Name}
}

// describeAccountError turns a probe error into an operator-facing message
// that never contains the credentials themselves.
func describeAccountError(err error) string {
	switch {
	case errors.Is(err, shared.ErrMissingCredentials):
		return msgMalformed + ": api key and tenant id are required"
	case errors.Is(err, shared.ErrInvalidCredentials):
		return err.Error()
	case errors.Is(err, shared.ErrUnauthorized), errors.Is(err, shared.ErrForbidden):
		return msgUnauthorized
	case errors.Is(err, shared.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return msgTimeout
	default:
		return msgUnreachable
	}
}
