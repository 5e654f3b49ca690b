package registry

import (
	"time"

	"github.com/Zorrojurro/project-aarna/internal/ledger"
	"github.com/Zorrojurro/project-aarna/pkg/workflows"
)

// Project is the mirrored view of a registry project.
type Project struct {
	ID                uint64 `json:"id"`
	Name              string `json:"name"`
	Location          string `json:"location"`
	EcosystemType     string `json:"ecosystem_type"`
	EvidenceReference string `json:"evidence_reference"`
	Status            string `json:"status"`
	Credits           uint64 `json:"credits"`
	Submitter         string `json:"submitter"`
	// Confirmed is false for an entry written locally that no
	// authoritative read has carried yet.
	Confirmed bool `json:"confirmed"`
}

// Listing is the mirrored view of a marketplace listing.
type Listing struct {
	ID           uint64 `json:"id"`
	Seller       string `json:"seller"`
	Amount       uint64 `json:"amount"`
	PricePerUnit uint64 `json:"price_per_unit"`
	Active       bool   `json:"active"`
	Confirmed    bool   `json:"confirmed"`
}

// TotalPrice is amount times price, and false on overflow.
func (l Listing) TotalPrice() (uint64, bool) {
	return mulUint64(l.Amount, l.PricePerUnit)
}

// ProjectInput holds the fields of a new submission.
type ProjectInput struct {
	Name              string `json:"name" binding:"required"`
	Location          string `json:"location"`
	EcosystemType     string `json:"ecosystem_type"`
	EvidenceReference string `json:"evidence_reference"`
}

// Snapshot is an immutable copy of the mirror handed to consumers.
type Snapshot struct {
	AppID              uint64    `json:"app_id"`
	AppAddress         string    `json:"app_address,omitempty"`
	AssetID            uint64    `json:"asset_id"`
	Admin              string    `json:"admin,omitempty"`
	Validator          string    `json:"validator,omitempty"`
	Identity           string    `json:"identity,omitempty"`
	Role               string    `json:"role"`
	Busy               bool      `json:"busy"`
	Projects           []Project `json:"projects"`
	ProjectCount       uint64    `json:"project_count"`
	Listings           []Listing `json:"listings"`
	ListingCount       uint64    `json:"listing_count"`
	TotalCreditsIssued uint64    `json:"total_credits_issued"`
	TokenBalance       int64     `json:"token_balance"`
	NativeBalance      uint64    `json:"native_balance"`
	OptedIn            bool      `json:"opted_in"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// Project returns the project with id from the snapshot.
func (s *Snapshot) Project(id uint64) (Project, bool) {
	for _, p := range s.Projects {
		if p.ID == id {
			return p, true
		}
	}
	return Project{}, false
}

// Listing returns the listing with id from the snapshot.
func (s *Snapshot) Listing(id uint64) (Listing, bool) {
	for _, l := range s.Listings {
		if l.ID == id {
			return l, true
		}
	}
	return Listing{}, false
}

var statusNames = map[uint64]string{
	ledger.StatusPending:  workflows.StatusPending,
	ledger.StatusVerified: workflows.StatusVerified,
	ledger.StatusRejected: workflows.StatusRejected,
	ledger.StatusIssued:   workflows.StatusCreditsIssued,
}

// StatusName maps an on-chain status code to a lifecycle status. Unknown
// codes map to "".
func StatusName(code uint64) string {
	return statusNames[code]
}

func projectFromRecord(r ledger.ProjectRecord) Project {
	return Project{
		ID:                r.ID,
		Name:              r.Name,
		Location:          r.Location,
		EcosystemType:     r.Ecosystem,
		EvidenceReference: r.CID,
		Status:            StatusName(r.Status),
		Credits:           r.Credits,
		Submitter:         r.Submitter,
		Confirmed:         true,
	}
}

func listingFromRecord(r ledger.ListingRecord) Listing {
	return Listing{
		ID:           r.ID,
		Seller:       r.Seller,
		Amount:       r.Amount,
		PricePerUnit: r.Price,
		Active:       r.Active,
		Confirmed:    true,
	}
}

func mulUint64(a, b uint64) (uint64, bool) {
	if a == 0 || b == 0 {
		return 0, true
	}
	c := a * b
	if c/b != a {
		return 0, false
	}
	return c, true
}
