package registry

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/Zorrojurro/project-aarna/internal/faults"
	"github.com/Zorrojurro/project-aarna/internal/ledger"
	"github.com/Zorrojurro/project-aarna/internal/persistence"
)

// Load resolves the registry and asset identifiers and, when a registry is
// known, reads its state. Configured overrides win over persisted values.
// It needs no identity.
func (s *Service) Load(ctx context.Context) error {
	appID, err := s.resolve(ctx, persistence.KeyAppID, s.opts.AppIDOverride)
	if err != nil {
		return err
	}
	assetID, err := s.resolve(ctx, persistence.KeyAssetID, s.opts.AssetIDOverride)
	if err != nil {
		return err
	}

	s.mirror.SetRegistry(appID, "")
	s.mirror.SetAssetID(assetID)
	s.logger.Info("Registry identifiers resolved", zap.Uint64("app_id", appID), zap.Uint64("asset_id", assetID))

	if appID == 0 {
		s.publishState(ctx)
		return nil
	}
	if err := s.refresh(ctx); err != nil {
		s.logger.Warn("Initial registry read failed", zap.Error(err))
	}
	if signer, ok := s.identity.Current(); ok {
		if err := s.refreshBalance(ctx, signer); err != nil {
			s.logger.Warn("Initial balance read failed", zap.Error(err))
		}
	}
	return nil
}

func (s *Service) resolve(ctx context.Context, key string, override uint64) (uint64, error) {
	if override != 0 {
		return override, nil
	}
	v, _, err := persistence.GetUint(ctx, s.store, key)
	if err != nil {
		return 0, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return v, nil
}

// Refresh replaces the mirrored records with an authoritative read.
func (s *Service) Refresh(ctx context.Context) error {
	if s.mirror.AppID() == 0 {
		return faults.NoRegistry()
	}
	if err := s.refresh(ctx); err != nil {
		return faults.Classify("refresh", err)
	}
	return nil
}

// RefreshBalance reads the active identity's token position.
func (s *Service) RefreshBalance(ctx context.Context) error {
	signer, ok := s.identity.Current()
	if !ok {
		return faults.NoIdentity()
	}
	if err := s.refreshBalance(ctx, signer); err != nil {
		return faults.Classify("refresh_balance", err)
	}
	return nil
}

func (s *Service) refresh(ctx context.Context) error {
	state, err := s.ledger.ReadState(ctx, s.mirror.AppID())
	if err != nil {
		s.metrics.recordReconcile(err, Snapshot{})
		return err
	}

	previousAsset := s.mirror.AssetID()
	s.mirror.Replace(state)
	if state.AssetID != 0 && state.AssetID != previousAsset {
		s.persist(ctx, persistence.KeyAssetID, state.AssetID)
	}

	snap := s.Snapshot()
	s.metrics.recordReconcile(nil, snap)
	s.notifier.StateChanged(ctx, snap)
	return nil
}

func (s *Service) refreshBalance(ctx context.Context, signer ledger.Signer) error {
	addr := signer.Address()
	acct, err := s.ledger.Account(ctx, addr)
	if err != nil {
		return err
	}
	holding, optedIn := acct.Holding(s.mirror.AssetID())
	if s.mirror.AssetID() == 0 {
		optedIn = false
	}
	s.mirror.SetBalance(addr, holding, acct.Amount, optedIn)
	s.publishState(ctx)
	return nil
}

// identityChanged re-reads the registry and the new identity's balance.
func (s *Service) identityChanged(identity ledger.Signer) {
	ctx := context.Background()
	if identity == nil {
		s.mirror.SetBalance("", 0, 0, false)
		s.publishState(ctx)
		return
	}
	if s.mirror.AppID() != 0 {
		if err := s.refresh(ctx); err != nil {
			s.logger.Warn("Registry read after identity change failed", zap.Error(err))
		}
	}
	if err := s.refreshBalance(ctx, identity); err != nil {
		s.logger.Warn("Balance read after identity change failed", zap.Error(err))
	}
}
