// Package registry mirrors the on-chain registry and marketplace and runs the
// guarded actions that change them.
package registry

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Zorrojurro/project-aarna/internal/config"
	"github.com/Zorrojurro/project-aarna/internal/faults"
	"github.com/Zorrojurro/project-aarna/internal/ledger"
	"github.com/Zorrojurro/project-aarna/internal/notifications"
	"github.com/Zorrojurro/project-aarna/internal/persistence"
	"github.com/Zorrojurro/project-aarna/internal/session"
)

// Identity is the session as seen by the registry.
type Identity interface {
	Current() (ledger.Signer, bool)
	OnChange(fn session.Listener)
}

// Notifier receives action outcomes and state updates.
type Notifier interface {
	Notify(ctx context.Context, n notifications.Notification)
	StateChanged(ctx context.Context, payload interface{})
}

// Options tunes the Service.
type Options struct {
	// AppIDOverride and AssetIDOverride win over persisted identifiers.
	AppIDOverride   uint64
	AssetIDOverride uint64
	// ValidatorAddress is used for role derivation until a read reports
	// the registry's validator.
	ValidatorAddress string
	MaxProjects      int
	MaxListings      int
	Funding          config.FundingConfig
	StrictEvidence   bool
}

// OptionsFromConfig extracts the registry options from cfg.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		AppIDOverride:    cfg.Registry.AppID,
		AssetIDOverride:  cfg.Registry.AssetID,
		ValidatorAddress: cfg.Registry.ValidatorAddress,
		MaxProjects:      cfg.Registry.MaxProjects,
		MaxListings:      cfg.Registry.MaxListings,
		Funding:          cfg.Funding,
		StrictEvidence:   cfg.Evidence.Strict,
	}
}

// Service owns the mirror and orchestrates every registry action.
type Service struct {
	ledger      ledger.Client
	store       persistence.Store
	identity    Identity
	notifier    Notifier
	mirror      *Mirror
	adjustments *Adjustments
	metrics     *Metrics
	opts        Options
	logger      *zap.Logger
}

// NewService creates the service and subscribes it to identity changes.
func NewService(
	client ledger.Client,
	store persistence.Store,
	identity Identity,
	notifier Notifier,
	metrics *Metrics,
	opts Options,
	logger *zap.Logger,
) *Service {
	if opts.MaxProjects <= 0 {
		opts.MaxProjects = 4
	}
	if opts.MaxListings <= 0 {
		opts.MaxListings = 4
	}
	s := &Service{
		ledger:      client,
		store:       store,
		identity:    identity,
		notifier:    notifier,
		mirror:      NewMirror(logger),
		adjustments: NewAdjustments(),
		metrics:     metrics,
		opts:        opts,
		logger:      logger,
	}
	identity.OnChange(s.identityChanged)
	return s
}

// Snapshot returns the current view of the registry for the active identity.
func (s *Service) Snapshot() Snapshot {
	snap := s.mirror.Snapshot()

	signer, ok := s.identity.Current()
	if ok {
		snap.Identity = signer.Address()
	}
	validator := snap.Validator
	if validator == "" {
		validator = s.opts.ValidatorAddress
	}
	snap.Role = string(session.RoleFor(snap.Identity, validator))

	if owner := s.mirror.BalanceOwner(); owner != "" && owner == snap.Identity {
		snap.TokenBalance += s.adjustments.For(owner)
	} else {
		snap.TokenBalance = s.adjustments.For(snap.Identity)
		snap.NativeBalance = 0
		snap.OptedIn = false
	}
	return snap
}

// Adjustments exposes the local balance corrections.
func (s *Service) Adjustments() *Adjustments {
	return s.adjustments
}

// outcome describes a successful action for its notification.
type outcome struct {
	level    notifications.Level
	message  string
	metadata map[string]interface{}
}

func success(message string, args ...interface{}) *outcome {
	return &outcome{level: notifications.LevelSuccess, message: fmt.Sprintf(message, args...)}
}

type action func(ctx context.Context, signer ledger.Signer) (*outcome, error)

// run checks the shared preconditions, claims the mutation slot and runs fn.
// Exactly one notification is emitted per call.
func (s *Service) run(ctx context.Context, operation string, needsRegistry bool, fn action) (err error) {
	started := time.Now()

	signer, ok := s.identity.Current()
	if !ok {
		return s.fail(ctx, operation, "", faults.NoIdentity(), started)
	}
	actor := signer.Address()
	if needsRegistry && s.mirror.AppID() == 0 {
		return s.fail(ctx, operation, actor, faults.NoRegistry(), started)
	}
	if !s.mirror.tryBegin() {
		s.metrics.recordBusy()
		return s.fail(ctx, operation, actor, faults.Busy(), started)
	}
	s.publishState(ctx)
	defer func() {
		s.mirror.end()
		s.publishState(ctx)
	}()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Action panicked", zap.String("operation", operation), zap.Any("panic", r))
			err = s.fail(ctx, operation, actor, fmt.Errorf("internal error: %v", r), started)
		}
	}()

	out, err := fn(ctx, signer)
	if err != nil {
		return s.fail(ctx, operation, actor, err, started)
	}

	s.metrics.recordAction(operation, "success", started)
	s.notifier.Notify(ctx, notifications.Notification{
		Level:     out.level,
		Operation: operation,
		Message:   out.message,
		Actor:     actor,
		Metadata:  out.metadata,
	})
	return nil
}

func (s *Service) fail(ctx context.Context, operation, actor string, err error, started time.Time) error {
	ce := faults.Classify(operation, err)
	level := notifications.LevelError
	if ce.Category.Warning() {
		level = notifications.LevelWarning
	}
	if ce.Category == faults.CategoryUnknown {
		s.logger.Warn("Unclassified ledger failure", zap.String("operation", operation), zap.Error(err))
	}
	s.metrics.recordAction(operation, string(ce.Category), started)
	s.notifier.Notify(ctx, notifications.Notification{
		Level:     level,
		Operation: operation,
		Category:  string(ce.Category),
		Message:   ce.Message,
		Actor:     actor,
	})
	return ce
}

func (s *Service) publishState(ctx context.Context) {
	s.notifier.StateChanged(ctx, s.Snapshot())
}

// fund sends amount to the registry account. Failures abort the action
// before its dependent write.
func (s *Service) fund(ctx context.Context, signer ledger.Signer, amount uint64) error {
	if amount == 0 {
		return nil
	}
	txID, err := s.ledger.Fund(ctx, s.mirror.AppAddress(), amount, signer)
	if err != nil {
		return faults.Funding(err)
	}
	s.logger.Debug("Registry account funded", zap.Uint64("amount", amount), zap.String("tx_id", txID))
	return nil
}

func (s *Service) persist(ctx context.Context, key string, value uint64) {
	if err := persistence.SetUint(ctx, s.store, key, value); err != nil {
		s.logger.Warn("Failed to persist identifier", zap.String("key", key), zap.Error(err))
	}
}

// reconcile refreshes the mirror after a successful write. A failed read is
// logged; the write itself already succeeded.
func (s *Service) reconcile(ctx context.Context) {
	if err := s.refresh(ctx); err != nil {
		s.logger.Warn("Reconciliation after write failed", zap.Error(err))
	}
}
