// Package faults turns local precondition failures and remote ledger
// rejections into categorized, user-presentable errors.
package faults

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/Zorrojurro/project-aarna/internal/ledger"
)

// MaxMessageLength bounds the passthrough message of unclassified faults.
const MaxMessageLength = 120

// Category identifies what went wrong.
type Category string

const (
	CategoryNoIdentity            Category = "no_identity"
	CategoryNoRegistry            Category = "no_registry"
	CategoryInvalidInput          Category = "invalid_input"
	CategoryBusy                  Category = "busy"
	CategoryNotFound              Category = "not_found"
	CategoryUnauthorizedAdmin     Category = "unauthorized_admin"
	CategoryUnauthorizedValidator Category = "unauthorized_validator"
	CategoryCapacityExceeded      Category = "capacity_exceeded"
	CategoryInvalidState          Category = "invalid_state"
	CategoryInsufficientPayment   Category = "insufficient_payment"
	CategoryNotSeller             Category = "not_seller"
	CategoryMissingAsset          Category = "missing_asset"
	CategoryFunding               Category = "funding_failed"
	CategoryUnconfirmed           Category = "unconfirmed"
	CategoryUnknown               Category = "unknown"
)

// Kind groups categories by how the caller should react.
type Kind string

const (
	KindPrecondition  Kind = "precondition"
	KindAuthorization Kind = "authorization"
	KindState         Kind = "state"
	KindFunding       Kind = "funding"
	KindUnclassified  Kind = "unclassified"
)

// Kind returns the taxonomy kind of c.
func (c Category) Kind() Kind {
	switch c {
	case CategoryNoIdentity, CategoryNoRegistry, CategoryInvalidInput, CategoryBusy, CategoryCapacityExceeded:
		return KindPrecondition
	case CategoryUnauthorizedAdmin, CategoryUnauthorizedValidator, CategoryNotSeller:
		return KindAuthorization
	case CategoryInvalidState, CategoryNotFound, CategoryMissingAsset, CategoryUnconfirmed:
		return KindState
	case CategoryFunding, CategoryInsufficientPayment:
		return KindFunding
	default:
		return KindUnclassified
	}
}

// Warning reports whether the category is shown as a warning rather than an error.
func (c Category) Warning() bool {
	switch c {
	case CategoryNoIdentity, CategoryNoRegistry, CategoryBusy, CategoryMissingAsset, CategoryUnconfirmed:
		return true
	}
	return false
}

// ClassifiedError is an error with a category and a presentable message.
type ClassifiedError struct {
	Category  Category
	Operation string
	Message   string
	Err       error
}

func (e *ClassifiedError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return string(e.Category)
}

func (e *ClassifiedError) Unwrap() error {
	return e.Err
}

// Is matches another ClassifiedError with the same category, so sentinel
// values such as ErrBusy work with errors.Is.
func (e *ClassifiedError) Is(target error) bool {
	t, ok := target.(*ClassifiedError)
	return ok && t.Message == "" && t.Err == nil && t.Category == e.Category
}

// Kind returns the taxonomy kind of the error.
func (e *ClassifiedError) Kind() Kind {
	return e.Category.Kind()
}

// Sentinels for errors.Is checks.
var (
	ErrNoIdentity = &ClassifiedError{Category: CategoryNoIdentity}
	ErrNoRegistry = &ClassifiedError{Category: CategoryNoRegistry}
	ErrBusy       = &ClassifiedError{Category: CategoryBusy}
)

// New creates a classified error with a formatted message.
func New(category Category, format string, args ...interface{}) *ClassifiedError {
	return &ClassifiedError{Category: category, Message: fmt.Sprintf(format, args...)}
}

// NoIdentity is returned when an action needs a connected identity.
func NoIdentity() *ClassifiedError {
	return New(CategoryNoIdentity, "Connect a wallet first")
}

// NoRegistry is returned when an action needs a deployed registry.
func NoRegistry() *ClassifiedError {
	return New(CategoryNoRegistry, "Deploy the app first")
}

// Busy is returned when another mutation is in flight.
func Busy() *ClassifiedError {
	return New(CategoryBusy, "Another action is still in progress")
}

// InvalidInput is returned for rejected arguments.
func InvalidInput(format string, args ...interface{}) *ClassifiedError {
	return New(CategoryInvalidInput, format, args...)
}

// Funding wraps a failed funding transfer. The dependent write is never sent.
func Funding(err error) *ClassifiedError {
	inner := Classify("", err)
	return &ClassifiedError{
		Category: CategoryFunding,
		Message:  "Funding transfer failed: " + inner.Message,
		Err:      err,
	}
}

type pattern struct {
	substr   string
	category Category
	message  string
}

// patterns match contract rejection texts. Order matters: the first match wins.
var patterns = []pattern{
	{"admin only", CategoryUnauthorizedAdmin, "Only the registry admin can do this"},
	{"validator only", CategoryUnauthorizedValidator, "Only the assigned validator can do this"},
	{"capacity reached", CategoryCapacityExceeded, "Registry capacity reached"},
	{"project not pending", CategoryInvalidState, "Project is no longer pending"},
	{"project not verified", CategoryInvalidState, "Project is not verified yet"},
	{"listing not active", CategoryInvalidState, "Listing is no longer active"},
	{"insufficient payment", CategoryInsufficientPayment, "Payment does not cover the listing price"},
	{"only seller", CategoryNotSeller, "Only the seller can cancel this listing"},
	{"no aarna token", CategoryMissingAsset, `No AARNA token yet, click "Create Token" first`},
	{"does not exist", CategoryNotFound, "Referenced record does not exist"},
	{"invalid project id", CategoryNotFound, "Project does not exist"},
	{"invalid listing id", CategoryNotFound, "Listing does not exist"},
	{"balance below min", CategoryFunding, "Registry account is underfunded"},
	{"overspend", CategoryFunding, "Account balance too low for this transaction"},
	{"not opted in", CategoryInvalidState, "Recipient has not opted in to the AARNA token"},
	{"must be > 0", CategoryInvalidInput, ""},
}

var codeCategories = map[string]Category{
	ledger.FaultUnauthorizedAdmin:     CategoryUnauthorizedAdmin,
	ledger.FaultUnauthorizedValidator: CategoryUnauthorizedValidator,
	ledger.FaultCapacityExceeded:      CategoryCapacityExceeded,
	ledger.FaultNotPending:            CategoryInvalidState,
	ledger.FaultNotVerified:           CategoryInvalidState,
	ledger.FaultListingInactive:       CategoryInvalidState,
	ledger.FaultInsufficientPayment:   CategoryInsufficientPayment,
	ledger.FaultNotSeller:             CategoryNotSeller,
	ledger.FaultMissingAsset:          CategoryMissingAsset,
	ledger.FaultNotFound:              CategoryNotFound,
	ledger.FaultInvalidArgument:       CategoryInvalidInput,
	ledger.FaultInsufficientFunds:     CategoryFunding,
	ledger.FaultNotOptedIn:            CategoryInvalidState,
}

// Classify maps err to a ClassifiedError. Errors that are already classified
// pass through. Ledger faults with a known code are mapped by code; anything
// else is matched against known rejection texts, and unmatched errors keep
// their own message cut to MaxMessageLength.
func Classify(operation string, err error) *ClassifiedError {
	if err == nil {
		return nil
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		if ce.Operation == "" && operation != "" {
			copied := *ce
			copied.Operation = operation
			return &copied
		}
		return ce
	}

	raw := err.Error()
	var fault *ledger.Fault
	if errors.As(err, &fault) {
		raw = fault.Message
		if category, ok := codeCategories[fault.Code]; ok {
			message := raw
			if p, found := match(raw); found && p.category == category && p.message != "" {
				message = p.message
			}
			return &ClassifiedError{Category: category, Operation: operation, Message: message, Err: err}
		}
	}

	if p, found := match(raw); found {
		message := p.message
		if message == "" {
			message = raw
		}
		return &ClassifiedError{Category: p.category, Operation: operation, Message: message, Err: err}
	}

	return &ClassifiedError{
		Category:  CategoryUnknown,
		Operation: operation,
		Message:   Truncate(raw, MaxMessageLength),
		Err:       err,
	}
}

func match(raw string) (pattern, bool) {
	lowered := strings.ToLower(raw)
	for _, p := range patterns {
		if strings.Contains(lowered, p.substr) {
			return p, true
		}
	}
	return pattern{}, false
}

// Truncate cuts s to at most limit runes, ending with an ellipsis when cut.
func Truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit-1]) + "…"
}
