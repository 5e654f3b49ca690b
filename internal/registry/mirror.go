package registry

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Zorrojurro/project-aarna/internal/ledger"
	"github.com/Zorrojurro/project-aarna/pkg/workflows"
)

// Mirror is the local copy of the registry state. Consumers read it through
// Snapshot; only the Service writes to it.
type Mirror struct {
	mu sync.RWMutex

	appID              uint64
	appAddress         string
	assetID            uint64
	admin              string
	validator          string
	projects           []Project
	listings           []Listing
	projectCount       uint64
	listingCount       uint64
	totalCreditsIssued uint64

	balanceOwner  string
	tokenHolding  uint64
	nativeBalance uint64
	optedIn       bool

	updatedAt time.Time

	// slot holds one token while a mutation is in flight.
	slot chan struct{}

	projectMachine *workflows.StateMachine
	listingMachine *workflows.StateMachine
	logger         *zap.Logger
}

func NewMirror(logger *zap.Logger) *Mirror {
	return &Mirror{
		slot:           make(chan struct{}, 1),
		projectMachine: workflows.NewProjectStateMachine(),
		listingMachine: workflows.NewListingStateMachine(),
		logger:         logger,
	}
}

// tryBegin claims the mutation slot. It never waits.
func (m *Mirror) tryBegin() bool {
	select {
	case m.slot <- struct{}{}:
		return true
	default:
		return false
	}
}

func (m *Mirror) end() {
	select {
	case <-m.slot:
	default:
	}
}

// Busy reports whether a mutation is in flight.
func (m *Mirror) Busy() bool {
	return len(m.slot) == 1
}

// Snapshot copies the mirror. Identity and balance adjustments are filled
// in by the Service.
func (m *Mirror) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return Snapshot{
		AppID:              m.appID,
		AppAddress:         m.appAddress,
		AssetID:            m.assetID,
		Admin:              m.admin,
		Validator:          m.validator,
		Busy:               m.Busy(),
		Projects:           append([]Project{}, m.projects...),
		ProjectCount:       m.projectCount,
		Listings:           append([]Listing{}, m.listings...),
		ListingCount:       m.listingCount,
		TotalCreditsIssued: m.totalCreditsIssued,
		TokenBalance:       int64(m.tokenHolding),
		NativeBalance:      m.nativeBalance,
		OptedIn:            m.optedIn,
		UpdatedAt:          m.updatedAt,
	}
}

func (m *Mirror) AppID() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.appID
}

// AppAddress returns the registry account, derived from the app id when no
// read has reported it yet.
func (m *Mirror) AppAddress() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.appAddress == "" && m.appID != 0 {
		return ledger.ApplicationAddress(m.appID)
	}
	return m.appAddress
}

func (m *Mirror) AssetID() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.assetID
}

func (m *Mirror) Validator() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.validator
}

func (m *Mirror) ProjectCount() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.projectCount
}

func (m *Mirror) ListingCount() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listingCount
}

func (m *Mirror) Project(id uint64) (Project, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	i := m.projectIndex(id)
	if i < 0 {
		return Project{}, false
	}
	return m.projects[i], true
}

func (m *Mirror) Listing(id uint64) (Listing, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	i := m.listingIndex(id)
	if i < 0 {
		return Listing{}, false
	}
	return m.listings[i], true
}

// projectIndex returns the slice position of project id, or -1. Records are
// kept sorted by id.
func (m *Mirror) projectIndex(id uint64) int {
	i := sort.Search(len(m.projects), func(i int) bool { return m.projects[i].ID >= id })
	if i < len(m.projects) && m.projects[i].ID == id {
		return i
	}
	return -1
}

func (m *Mirror) listingIndex(id uint64) int {
	i := sort.Search(len(m.listings), func(i int) bool { return m.listings[i].ID >= id })
	if i < len(m.listings) && m.listings[i].ID == id {
		return i
	}
	return -1
}

// SetRegistry switches the mirror to a registry. Records, roles and the asset
// of the previous registry are dropped.
func (m *Mirror) SetRegistry(appID uint64, appAddress string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if appAddress == "" && appID != 0 {
		appAddress = ledger.ApplicationAddress(appID)
	}
	if m.appID != appID {
		m.assetID = 0
		m.admin = ""
		m.validator = ""
		m.projects = nil
		m.listings = nil
		m.projectCount = 0
		m.listingCount = 0
		m.totalCreditsIssued = 0
		m.tokenHolding = 0
		m.optedIn = false
	}
	m.appID = appID
	m.appAddress = appAddress
	m.touch()
}

func (m *Mirror) SetAssetID(assetID uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.assetID = assetID
	m.touch()
}

func (m *Mirror) SetValidator(addr string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.validator = addr
	m.touch()
}

// AppendProject records a provisional project. An entry already present at
// that id is kept.
func (m *Mirror) AppendProject(p Project) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p.Confirmed = false
	if m.projectIndex(p.ID) >= 0 {
		return
	}
	m.projects = append(m.projects, p)
	sort.Slice(m.projects, func(i, j int) bool { return m.projects[i].ID < m.projects[j].ID })
	if p.ID+1 > m.projectCount {
		m.projectCount = p.ID + 1
	}
	m.touch()
}

// AppendListing records a provisional listing. An entry already present at
// that id is kept.
func (m *Mirror) AppendListing(l Listing) {
	m.mu.Lock()
	defer m.mu.Unlock()

	l.Confirmed = false
	if m.listingIndex(l.ID) >= 0 {
		return
	}
	m.listings = append(m.listings, l)
	sort.Slice(m.listings, func(i, j int) bool { return m.listings[i].ID < m.listings[j].ID })
	if l.ID+1 > m.listingCount {
		m.listingCount = l.ID + 1
	}
	m.touch()
}

// SetProjectStatus moves project id to status along the lifecycle. When
// credits is non-nil it replaces the project's credits.
func (m *Mirror) SetProjectStatus(id uint64, status string, credits *uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	i := m.projectIndex(id)
	if i < 0 {
		return fmt.Errorf("project %d not in mirror", id)
	}
	p := &m.projects[i]
	next, err := m.projectMachine.Transition(p.Status, status)
	if err != nil {
		return fmt.Errorf("project %d: %w", id, err)
	}
	p.Status = next
	if credits != nil {
		p.Credits = *credits
	}
	m.touch()
	return nil
}

// DeactivateListing flips a listing to inactive. It fails when the listing
// is already inactive.
func (m *Mirror) DeactivateListing(id uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	i := m.listingIndex(id)
	if i < 0 {
		return fmt.Errorf("listing %d not in mirror", id)
	}
	l := &m.listings[i]
	if _, err := m.listingMachine.Transition(listingState(l.Active), workflows.ListingInactive); err != nil {
		return fmt.Errorf("listing %d: %w", id, err)
	}
	l.Active = false
	m.touch()
	return nil
}

func (m *Mirror) AddCreditsIssued(n uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.totalCreditsIssued += n
	m.touch()
}

// Replace overwrites the mirror with an authoritative read. Projects and
// listings are replaced as a whole, so provisional entries the read does not
// carry disappear. Records are matched and stored by id whatever order the
// read lists them in. A remote status behind the local one is applied and
// logged.
func (m *Mirror) Replace(state *ledger.State) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if state.AppID != 0 && state.AppID != m.appID {
		m.logger.Warn("Discarding read of another registry",
			zap.Uint64("app_id", m.appID), zap.Uint64("read_app_id", state.AppID))
		return
	}

	projects := make([]Project, 0, len(state.Projects))
	for _, r := range state.Projects {
		p := projectFromRecord(r)
		if i := m.projectIndex(r.ID); i >= 0 {
			local := m.projects[i]
			if local.Status != "" && !m.projectMachine.Reachable(local.Status, p.Status) {
				m.logger.Warn("Remote project status behind mirror",
					zap.Uint64("project_id", r.ID),
					zap.String("local", local.Status),
					zap.String("remote", p.Status))
			}
		}
		projects = append(projects, p)
	}

	listings := make([]Listing, 0, len(state.Listings))
	for _, r := range state.Listings {
		l := listingFromRecord(r)
		if i := m.listingIndex(r.ID); i >= 0 && !m.listings[i].Active && l.Active {
			m.logger.Warn("Remote listing active but inactive in mirror", zap.Uint64("listing_id", r.ID))
		}
		listings = append(listings, l)
	}
	sort.Slice(projects, func(i, j int) bool { return projects[i].ID < projects[j].ID })
	sort.Slice(listings, func(i, j int) bool { return listings[i].ID < listings[j].ID })

	if state.AppAddress != "" {
		m.appAddress = state.AppAddress
	}
	if state.AssetID != 0 {
		m.assetID = state.AssetID
	}
	m.admin = state.Admin
	m.validator = state.Validator
	m.projects = projects
	m.listings = listings
	m.projectCount = state.ProjectCount
	m.listingCount = state.ListingCount
	m.totalCreditsIssued = state.TotalCreditsIssued
	m.touch()
}

// SetBalance stores the ledger-reported position of owner.
func (m *Mirror) SetBalance(owner string, holding, native uint64, optedIn bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balanceOwner = owner
	m.tokenHolding = holding
	m.nativeBalance = native
	m.optedIn = optedIn
	m.touch()
}

// BalanceOwner is the identity the stored balance belongs to.
func (m *Mirror) BalanceOwner() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.balanceOwner
}

func (m *Mirror) touch() {
	m.updatedAt = time.Now().UTC()
}

func listingState(active bool) string {
	if active {
		return workflows.ListingActive
	}
	return workflows.ListingInactive
}
