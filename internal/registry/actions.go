package registry

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/Zorrojurro/project-aarna/internal/faults"
	"github.com/Zorrojurro/project-aarna/internal/ledger"
	"github.com/Zorrojurro/project-aarna/internal/notifications"
	"github.com/Zorrojurro/project-aarna/internal/persistence"
	"github.com/Zorrojurro/project-aarna/pkg/evidence"
	"github.com/Zorrojurro/project-aarna/pkg/workflows"
)

// Operation names used in notifications, metrics and errors.
const (
	OpDeploy             = "deploy"
	OpConfigureValidator = "configure_validator"
	OpTransferAdmin      = "transfer_admin"
	OpMintToken          = "mint_token"
	OpSubmitProject      = "submit_project"
	OpApproveProject     = "approve_project"
	OpRejectProject      = "reject_project"
	OpIssueCredits       = "issue_credits"
	OpOptIn              = "opt_in"
	OpListForSale        = "list_for_sale"
	OpBuyListing         = "buy_listing"
	OpCancelListing      = "cancel_listing"
)

// Deploy creates a new registry owned by the active identity and makes it
// the current one. A previously stored asset id is cleared.
func (s *Service) Deploy(ctx context.Context) (uint64, error) {
	var appID uint64
	err := s.run(ctx, OpDeploy, false, func(ctx context.Context, signer ledger.Signer) (*outcome, error) {
		d, err := s.ledger.Deploy(ctx, signer)
		if err != nil {
			return nil, err
		}
		appID = d.AppID

		s.persist(ctx, persistence.KeyAppID, d.AppID)
		s.persist(ctx, persistence.KeyAssetID, 0)
		s.mirror.SetRegistry(d.AppID, d.AppAddress)
		s.mirror.SetAssetID(0)
		s.reconcile(ctx)

		out := success("Registry deployed with app id %d", d.AppID)
		out.metadata = map[string]interface{}{"app_id": d.AppID, "tx_id": d.TxID}
		return out, nil
	})
	return appID, err
}

// ConfigureValidator assigns the validator role. Calling it again reassigns it.
func (s *Service) ConfigureValidator(ctx context.Context, addr string) error {
	addr = strings.TrimSpace(addr)
	return s.run(ctx, OpConfigureValidator, true, func(ctx context.Context, signer ledger.Signer) (*outcome, error) {
		if addr == "" {
			return nil, faults.InvalidInput("Validator address is required")
		}
		if !ledger.ValidAddress(addr) {
			return nil, faults.InvalidInput("Validator address is not a valid account")
		}
		if _, err := s.ledger.Call(ctx, s.mirror.AppID(), ledger.MethodSetValidator, []interface{}{addr}, signer); err != nil {
			return nil, err
		}
		s.mirror.SetValidator(addr)
		s.reconcile(ctx)
		return success("Validator set to %s", addr), nil
	})
}

// TransferAdmin hands the admin role to addr.
func (s *Service) TransferAdmin(ctx context.Context, addr string) error {
	addr = strings.TrimSpace(addr)
	return s.run(ctx, OpTransferAdmin, true, func(ctx context.Context, signer ledger.Signer) (*outcome, error) {
		if addr == "" {
			return nil, faults.InvalidInput("Admin address is required")
		}
		if !ledger.ValidAddress(addr) {
			return nil, faults.InvalidInput("Admin address is not a valid account")
		}
		if _, err := s.ledger.Call(ctx, s.mirror.AppID(), ledger.MethodTransferAdmin, []interface{}{addr}, signer); err != nil {
			return nil, err
		}
		s.reconcile(ctx)
		return success("Admin transferred to %s", addr), nil
	})
}

// MintToken creates the registry's credit token. The ledger returns the
// existing asset when one was already created.
func (s *Service) MintToken(ctx context.Context) (uint64, error) {
	var assetID uint64
	err := s.run(ctx, OpMintToken, true, func(ctx context.Context, signer ledger.Signer) (*outcome, error) {
		if s.mirror.AssetID() == 0 {
			if err := s.fund(ctx, signer, s.opts.Funding.AssetCreation); err != nil {
				return nil, err
			}
		}
		res, err := s.ledger.Call(ctx, s.mirror.AppID(), ledger.MethodEnsureToken, nil, signer)
		if err != nil {
			return nil, err
		}
		if !res.HasReturn || res.Return == 0 {
			return nil, faults.New(faults.CategoryMissingAsset, "Token creation returned no asset id")
		}
		assetID = res.Return
		s.mirror.SetAssetID(assetID)
		s.persist(ctx, persistence.KeyAssetID, assetID)
		s.reconcile(ctx)

		out := success("AARNA token ready (asset %d)", assetID)
		out.metadata = map[string]interface{}{"asset_id": assetID}
		return out, nil
	})
	return assetID, err
}

// SubmitProject registers a project and returns its id. The mirror holds a
// provisional entry until the next authoritative read.
func (s *Service) SubmitProject(ctx context.Context, in ProjectInput) (uint64, error) {
	var id uint64
	err := s.run(ctx, OpSubmitProject, true, func(ctx context.Context, signer ledger.Signer) (*outcome, error) {
		if s.mirror.ProjectCount() >= uint64(s.opts.MaxProjects) {
			return nil, faults.New(faults.CategoryCapacityExceeded, "Project capacity reached (max %d)", s.opts.MaxProjects)
		}
		if strings.TrimSpace(in.Name) == "" {
			return nil, faults.InvalidInput("Project name is required")
		}
		if err := evidence.Validate(in.EvidenceReference, s.opts.StrictEvidence); err != nil {
			return nil, faults.InvalidInput("Invalid evidence reference: %v", err)
		}

		if err := s.fund(ctx, signer, s.opts.Funding.ProjectRecord); err != nil {
			return nil, err
		}
		args := []interface{}{in.Name, in.Location, in.EcosystemType, in.EvidenceReference}
		res, err := s.ledger.Call(ctx, s.mirror.AppID(), ledger.MethodSubmitProject, args, signer)
		if err != nil {
			return nil, err
		}
		id = s.mirror.ProjectCount()
		if res.HasReturn {
			id = res.Return
		}
		s.mirror.AppendProject(Project{
			ID:                id,
			Name:              in.Name,
			Location:          in.Location,
			EcosystemType:     in.EcosystemType,
			EvidenceReference: in.EvidenceReference,
			Status:            workflows.StatusPending,
			Submitter:         signer.Address(),
		})
		s.reconcile(ctx)

		out := success("Project %q submitted (id %d)", in.Name, id)
		out.metadata = map[string]interface{}{"project_id": id}
		return out, nil
	})
	return id, err
}

// ApproveProject verifies a pending project with credits. The mirror only
// takes the new status and credits once a fresh read shows the project
// verified; otherwise it returns an unconfirmed error while the call may
// still land.
func (s *Service) ApproveProject(ctx context.Context, id, credits uint64) error {
	return s.run(ctx, OpApproveProject, true, func(ctx context.Context, signer ledger.Signer) (*outcome, error) {
		if credits == 0 {
			return nil, faults.InvalidInput("Credits must be greater than zero")
		}
		if err := s.requireValidator(signer); err != nil {
			return nil, err
		}
		if err := s.requirePending(id); err != nil {
			return nil, err
		}

		appID := s.mirror.AppID()
		if _, err := s.ledger.Call(ctx, appID, ledger.MethodApproveProject, []interface{}{id, credits}, signer); err != nil {
			return nil, err
		}

		record, err := s.ledger.ReadProject(ctx, appID, id)
		if err != nil || record.Status != ledger.StatusVerified {
			if err != nil {
				s.logger.Warn("Approval re-read failed", zap.Uint64("project_id", id), zap.Error(err))
			}
			s.reconcile(ctx)
			return nil, faults.New(faults.CategoryUnconfirmed, "Approval of project %d sent but not confirmed yet; credits unchanged", id)
		}

		confirmed := record.Credits
		if err := s.mirror.SetProjectStatus(id, workflows.StatusVerified, &confirmed); err != nil {
			s.logger.Warn("Mirror not updated after approval", zap.Error(err))
		}
		s.reconcile(ctx)

		out := success("Project %d verified with %d credits", id, confirmed)
		out.metadata = map[string]interface{}{"project_id": id, "credits": confirmed}
		return out, nil
	})
}

// RejectProject rejects a pending project.
func (s *Service) RejectProject(ctx context.Context, id uint64) error {
	return s.run(ctx, OpRejectProject, true, func(ctx context.Context, signer ledger.Signer) (*outcome, error) {
		if err := s.requireValidator(signer); err != nil {
			return nil, err
		}
		if err := s.requirePending(id); err != nil {
			return nil, err
		}
		if _, err := s.ledger.Call(ctx, s.mirror.AppID(), ledger.MethodRejectProject, []interface{}{id}, signer); err != nil {
			return nil, err
		}
		if err := s.mirror.SetProjectStatus(id, workflows.StatusRejected, nil); err != nil {
			s.logger.Warn("Mirror not updated after rejection", zap.Error(err))
		}
		s.reconcile(ctx)
		return &outcome{
			level:    notifications.LevelInfo,
			message:  "Project rejected",
			metadata: map[string]interface{}{"project_id": id},
		}, nil
	})
}

// IssueCredits transfers a verified project's credits to its submitter. The
// project is read fresh first; anything but verified stops the action before
// funding.
func (s *Service) IssueCredits(ctx context.Context, id uint64) (uint64, error) {
	var issued uint64
	err := s.run(ctx, OpIssueCredits, true, func(ctx context.Context, signer ledger.Signer) (*outcome, error) {
		if err := s.requireValidator(signer); err != nil {
			return nil, err
		}
		appID := s.mirror.AppID()
		record, err := s.ledger.ReadProject(ctx, appID, id)
		if err != nil {
			return nil, err
		}
		if record.Status != ledger.StatusVerified {
			return nil, faults.New(faults.CategoryInvalidState, "Project is not verified yet")
		}
		if record.Submitter == "" {
			return nil, faults.New(faults.CategoryNotFound, "Project submitter is unknown")
		}

		if err := s.fund(ctx, signer, s.opts.Funding.IssueFees); err != nil {
			return nil, err
		}
		res, err := s.ledger.Call(ctx, appID, ledger.MethodIssueCredits, []interface{}{id, record.Submitter}, signer)
		if err != nil {
			return nil, err
		}
		issued = record.Credits
		if res.HasReturn {
			issued = res.Return
		}
		if err := s.mirror.SetProjectStatus(id, workflows.StatusCreditsIssued, nil); err != nil {
			s.logger.Warn("Mirror not updated after issuance", zap.Error(err))
		}
		s.mirror.AddCreditsIssued(issued)
		s.reconcile(ctx)

		out := success("Issued %d credits for project %d", issued, id)
		out.metadata = map[string]interface{}{"project_id": id, "credits": issued, "receiver": record.Submitter}
		return out, nil
	})
	return issued, err
}

// OptInToAsset lets the active identity hold the credit token. An unknown
// asset id is looked up on the registry first.
func (s *Service) OptInToAsset(ctx context.Context) error {
	return s.run(ctx, OpOptIn, false, func(ctx context.Context, signer ledger.Signer) (*outcome, error) {
		assetID, err := s.discoverAsset(ctx)
		if err != nil {
			return nil, err
		}
		if _, err := s.ledger.OptIn(ctx, assetID, signer); err != nil {
			return nil, err
		}
		if err := s.refreshBalance(ctx, signer); err != nil {
			s.logger.Warn("Balance refresh after opt-in failed", zap.Error(err))
		}
		return success("Opted in to AARNA token (asset %d)", assetID), nil
	})
}

// ListForSale offers amount tokens at price per unit and returns the listing
// id. No tokens move until a purchase.
func (s *Service) ListForSale(ctx context.Context, amount, price uint64) (uint64, error) {
	var id uint64
	err := s.run(ctx, OpListForSale, true, func(ctx context.Context, signer ledger.Signer) (*outcome, error) {
		if s.mirror.ListingCount() >= uint64(s.opts.MaxListings) {
			return nil, faults.New(faults.CategoryCapacityExceeded, "Listing capacity reached (max %d)", s.opts.MaxListings)
		}
		if amount == 0 {
			return nil, faults.InvalidInput("Amount must be greater than zero")
		}
		if price == 0 {
			return nil, faults.InvalidInput("Price must be greater than zero")
		}
		if _, ok := mulUint64(amount, price); !ok {
			return nil, faults.InvalidInput("Amount times price is too large")
		}

		if err := s.fund(ctx, signer, s.opts.Funding.ListingRecord); err != nil {
			return nil, err
		}
		res, err := s.ledger.Call(ctx, s.mirror.AppID(), ledger.MethodListForSale, []interface{}{amount, price}, signer)
		if err != nil {
			return nil, err
		}
		id = s.mirror.ListingCount()
		if res.HasReturn {
			id = res.Return
		}
		s.mirror.AppendListing(Listing{
			ID:           id,
			Seller:       signer.Address(),
			Amount:       amount,
			PricePerUnit: price,
			Active:       true,
		})
		s.reconcile(ctx)

		out := success("Listed %d tokens at %d per unit (listing %d)", amount, price, id)
		out.metadata = map[string]interface{}{"listing_id": id}
		return out, nil
	})
	return id, err
}

// BuyListing pays for an active listing and records the token transfer in the
// balance adjustments.
func (s *Service) BuyListing(ctx context.Context, id uint64) error {
	return s.run(ctx, OpBuyListing, true, func(ctx context.Context, signer ledger.Signer) (*outcome, error) {
		appID := s.mirror.AppID()
		record, err := s.ledger.ReadListing(ctx, appID, id)
		if err != nil {
			return nil, err
		}
		if !record.Active {
			return nil, faults.New(faults.CategoryInvalidState, "Listing is no longer active")
		}
		total, ok := mulUint64(record.Amount, record.Price)
		if !ok {
			return nil, faults.InvalidInput("Listing total is too large")
		}

		buyer := signer.Address()
		acct, err := s.ledger.Account(ctx, buyer)
		if err != nil {
			return nil, err
		}
		need := total + s.opts.Funding.FeeReserve
		if acct.Amount < need {
			return nil, faults.New(faults.CategoryInsufficientPayment,
				"Balance too low: listing costs %d plus %d in fees, account holds %d", total, s.opts.Funding.FeeReserve, acct.Amount)
		}

		if err := s.fund(ctx, signer, total); err != nil {
			return nil, err
		}
		if _, err := s.ledger.Call(ctx, appID, ledger.MethodBuyListing, []interface{}{id, total}, signer); err != nil {
			return nil, err
		}
		if err := s.mirror.DeactivateListing(id); err != nil {
			s.logger.Warn("Mirror not updated after purchase", zap.Error(err))
		}
		s.adjustments.RecordPurchase(buyer, record.Seller, record.Amount)
		s.reconcile(ctx)
		if err := s.refreshBalance(ctx, signer); err != nil {
			s.logger.Warn("Balance refresh after purchase failed", zap.Error(err))
		}

		out := success("Bought %d tokens from listing %d", record.Amount, id)
		out.metadata = map[string]interface{}{"listing_id": id, "amount": record.Amount, "paid": total}
		return out, nil
	})
}

// CancelListing withdraws the caller's own active listing.
func (s *Service) CancelListing(ctx context.Context, id uint64) error {
	return s.run(ctx, OpCancelListing, true, func(ctx context.Context, signer ledger.Signer) (*outcome, error) {
		appID := s.mirror.AppID()
		record, err := s.ledger.ReadListing(ctx, appID, id)
		if err != nil {
			return nil, err
		}
		if !record.Active {
			return nil, faults.New(faults.CategoryInvalidState, "Listing is no longer active")
		}
		if record.Seller != signer.Address() {
			return nil, faults.New(faults.CategoryNotSeller, "Only the seller can cancel this listing")
		}
		if _, err := s.ledger.Call(ctx, appID, ledger.MethodCancelListing, []interface{}{id}, signer); err != nil {
			return nil, err
		}
		if err := s.mirror.DeactivateListing(id); err != nil {
			s.logger.Warn("Mirror not updated after cancellation", zap.Error(err))
		}
		s.reconcile(ctx)
		return &outcome{
			level:    notifications.LevelInfo,
			message:  "Listing cancelled",
			metadata: map[string]interface{}{"listing_id": id},
		}, nil
	})
}

// requireValidator rejects callers other than the known validator. With no
// validator known the ledger decides.
func (s *Service) requireValidator(signer ledger.Signer) error {
	if v := s.mirror.Validator(); v != "" && v != signer.Address() {
		return faults.New(faults.CategoryUnauthorizedValidator, "Only the assigned validator can do this")
	}
	return nil
}

func (s *Service) requirePending(id uint64) error {
	p, ok := s.mirror.Project(id)
	if !ok {
		return faults.New(faults.CategoryNotFound, "Project %d does not exist", id)
	}
	if p.Status != workflows.StatusPending {
		return faults.New(faults.CategoryInvalidState, "Project is no longer pending")
	}
	return nil
}

func (s *Service) discoverAsset(ctx context.Context) (uint64, error) {
	if id := s.mirror.AssetID(); id != 0 {
		return id, nil
	}
	appID := s.mirror.AppID()
	if appID == 0 {
		return 0, faults.New(faults.CategoryMissingAsset, `No AARNA token yet, click "Create Token" first`)
	}
	res, err := s.ledger.Simulate(ctx, appID, ledger.MethodGetAssetID, nil)
	if err != nil {
		return 0, err
	}
	if !res.HasReturn || res.Return == 0 {
		return 0, faults.New(faults.CategoryMissingAsset, `No AARNA token yet, click "Create Token" first`)
	}
	s.mirror.SetAssetID(res.Return)
	s.persist(ctx, persistence.KeyAssetID, res.Return)
	return res.Return, nil
}
