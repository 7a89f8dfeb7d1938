// Package policy turns request flags and configuration defaults into one
// explicit Policy value and decides how a relocation batch executes.
package policy

import (
	"context"
	"fmt"

	"github.com/datagrid/phymv/internal/catalog"
	"github.com/datagrid/phymv/internal/fault"
	"github.com/datagrid/phymv/internal/logging/audit"
	"github.com/rs/zerolog"
)

// StalePolicy says whether a stale replica may be relocated.
type StalePolicy string

// Stale policies.
const (
	StaleReject StalePolicy = "reject"
	StaleAllow  StalePolicy = "allow"
)

// ParseStalePolicy parses a stale policy name. Empty selects StaleReject.
func ParseStalePolicy(s string) (StalePolicy, error) {
	switch p := StalePolicy(s); p {
	case "":
		return StaleReject, nil
	case StaleReject, StaleAllow:
		return p, nil
	}
	return "", fmt.Errorf("unknown stale policy %q", s)
}

// ExecutionMode decides what one failed target does to the rest of a batch.
type ExecutionMode int

const (
	// AllOrNothing rolls back every target when any target fails.
	AllOrNothing ExecutionMode = iota
	// BestEffort keeps successful targets and reports the failed ones.
	BestEffort
)

func (m ExecutionMode) String() string {
	switch m {
	case AllOrNothing:
		return "all-or-nothing"
	case BestEffort:
		return "best-effort"
	}
	return fmt.Sprintf("ExecutionMode(%d)", int(m))
}

// Policy carries every flag that changes how an operation runs.
type Policy struct {
	AdminOverride bool
	AllReplicas   bool
	Atomic        bool // multi-target batches run all-or-nothing
	Stale         StalePolicy
}

// Decision is the outcome of a successful authorization.
type Decision struct {
	Mode       ExecutionMode
	AllowStale bool
}

// Authorizer decides whether caller may act on an object.
type Authorizer interface {
	// IsOwnerOrAdmin reports whether caller owns obj or, when override is
	// set, is an administrator. obj is nil for an object that does not
	// exist yet.
	IsOwnerOrAdmin(ctx context.Context, caller string, obj *catalog.Object, override bool) (bool, error)
}

// StaticAuthorizer authorizes owners of existing objects, anyone creating a
// new object, and a fixed set of administrators.
type StaticAuthorizer struct {
	admins map[string]struct{}
}

// NewStaticAuthorizer creates an authorizer with the given administrators.
func NewStaticAuthorizer(admins []string) *StaticAuthorizer {
	a := &StaticAuthorizer{admins: make(map[string]struct{}, len(admins))}
	for _, name := range admins {
		a.admins[name] = struct{}{}
	}
	return a
}

// IsAdmin reports whether caller is a configured administrator.
func (a *StaticAuthorizer) IsAdmin(caller string) bool {
	_, ok := a.admins[caller]
	return ok
}

// IsOwnerOrAdmin implements Authorizer.
func (a *StaticAuthorizer) IsOwnerOrAdmin(_ context.Context, caller string, obj *catalog.Object, override bool) (bool, error) {
	if caller == "" {
		return false, nil
	}
	if override {
		return a.IsAdmin(caller), nil
	}
	return obj == nil || obj.Owner == caller, nil
}

// Guard enforces ownership and picks the execution mode.
type Guard struct {
	authz  Authorizer
	audit  *audit.Logger
	logger zerolog.Logger
}

// NewGuard creates a policy guard.
func NewGuard(authz Authorizer, logger zerolog.Logger) *Guard {
	return &Guard{
		authz:  authz,
		audit:  audit.NewLogger(logger.With().Str("component", "audit").Logger()),
		logger: logger.With().Str("component", "policy").Logger(),
	}
}

// Authorize checks that caller may run verb on the object at objectPath
// under p and returns the execution decision. obj is nil for registrations
// that create the object.
func (g *Guard) Authorize(ctx context.Context, verb, objectPath string, p Policy, caller string, obj *catalog.Object) (Decision, error) {
	ok, err := g.authz.IsOwnerOrAdmin(ctx, caller, obj, p.AdminOverride)
	if err != nil {
		g.audit.LogAuthz(caller, verb, objectPath, p.AdminOverride, audit.ResultDenied, err.Error())
		return Decision{}, fault.Wrap(fault.Unauthorized, "authorize", err)
	}
	if !ok {
		reason := "caller does not own the object"
		if p.AdminOverride {
			reason = "caller is not an administrator"
		}
		if caller == "" {
			reason = "no caller identity"
		}
		g.audit.LogAuthz(caller, verb, objectPath, p.AdminOverride, audit.ResultDenied, reason)
		return Decision{}, fault.New(fault.Unauthorized, "authorize", "%s %s: %s", verb, objectPath, reason)
	}
	g.audit.LogAuthz(caller, verb, objectPath, p.AdminOverride, audit.ResultAllowed, "")

	d := Decision{
		Mode:       AllOrNothing,
		AllowStale: p.Stale == StaleAllow,
	}
	if p.AllReplicas && !p.Atomic {
		d.Mode = BestEffort
	}
	g.logger.Debug().
		Str("caller", caller).
		Str("verb", verb).
		Str("object", objectPath).
		Str("mode", d.Mode.String()).
		Bool("allow_stale", d.AllowStale).
		Msg("Authorized")
	return d, nil
}
