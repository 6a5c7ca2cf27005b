package reconcile

import (
	"context"

	"callsync_agent/internal/crm"
	"callsync_agent/platform/logger"
	"callsync_agent/platform/phone"
)

// crmBackend is the slice of the CRM client the resolver and the call-end
// flow need.
type crmBackend interface {
	CheckPhoneExists(ctx context.Context, phone string) (crm.ExistsResult, error)
	CheckAssignment(ctx context.Context, phone string) (crm.AssignmentResult, error)
	AssignSelf(ctx context.Context, leadID, phone string) error
	SelfID() string
}

// Resolver answers "does this number belong to a lead" and "who may work it"
// questions. Every backend answer is written through the lookup cache, so
// repeated questions about the same number inside the TTL window never reach
// the network. Numbers travel to the backend in E.164 form; cache keys use
// the 10-digit match key. On backend failure the resolver returns a conservative
// default alongside the error: no-match for existence, allow for assignment.
type Resolver struct {
	backend crmBackend
	cache   *LookupCache
	log     *logger.Logger
}

// NewResolver creates a resolver.
func NewResolver(backend crmBackend, cache *LookupCache, log *logger.Logger) *Resolver {
	return &Resolver{backend: backend, cache: cache, log: log}
}

// ResolveExistence reports whether raw's number belongs to any lead.
// A number too short to match is a no-match outcome, not an error.
func (r *Resolver) ResolveExistence(ctx context.Context, raw string) (LookupResult, error) {
	key, ok := phone.MatchKey(raw)
	if !ok {
		return LookupResult{}, nil
	}

	if cached, hit, err := r.cache.Get(ctx, key); err == nil && hit {
		r.log.RemoteLookup("checkandgive", key, true)
		return cached, nil
	} else if err != nil {
		r.log.Error("lookup cache read failed", "error", err)
	}

	exists, err := r.backend.CheckPhoneExists(ctx, phone.NormalizeE164(raw))
	if err != nil {
		r.log.CRMError("check_phone_exists", err)
		return LookupResult{}, err
	}
	r.log.RemoteLookup("checkandgive", key, false)

	result := LookupResult{
		Found:     exists.Found,
		LeadID:    exists.LeadID,
		LeadName:  exists.LeadName,
		OwnerID:   exists.OwnerID,
		OwnerName: exists.OwnerName,
	}
	if exists.Found {
		result.IsMine = exists.OwnerID != "" && exists.OwnerID == r.backend.SelfID()
		result.AssignedToOther = !result.IsMine && exists.OwnerID != ""
		// A lead on another user's plate is informational only.
		result.CanAssignSelf = !result.IsMine && !result.AssignedToOther
	}
	if err := r.cache.Put(ctx, key, result); err != nil {
		r.log.Error("lookup cache write failed", "error", err)
	}
	return result, nil
}

// ResolveAssignment reports who may work raw's lead. On backend failure the
// returned default allows the caller to proceed without offering actions.
func (r *Resolver) ResolveAssignment(ctx context.Context, raw string) (LookupResult, error) {
	key, ok := phone.MatchKey(raw)
	if !ok {
		return LookupResult{}, nil
	}

	if cached, hit, err := r.cache.Get(ctx, key); err == nil && hit {
		r.log.RemoteLookup("check-phone", key, true)
		return cached, nil
	} else if err != nil {
		r.log.Error("lookup cache read failed", "error", err)
	}

	assignment, err := r.backend.CheckAssignment(ctx, phone.NormalizeE164(raw))
	if err != nil {
		r.log.CRMError("check_assignment", err)
		return LookupResult{Found: true, IsMine: true}, err
	}
	r.log.RemoteLookup("check-phone", key, false)

	var result LookupResult
	switch assignment.State {
	case crm.AssignmentNotExist:
		result = LookupResult{}
	case crm.AssignmentAssignable:
		// A lead on another user's plate is informational only.
		result = LookupResult{
			Found:           true,
			CanAssignSelf:   !assignment.AssignedToOther,
			AssignedToOther: assignment.AssignedToOther,
			OwnerID:         assignment.OwnerID,
			OwnerName:       assignment.OwnerName,
		}
	case crm.AssignmentMine:
		result = LookupResult{Found: true, IsMine: true, OwnerID: assignment.OwnerID}
	}
	if err := r.cache.Put(ctx, key, result); err != nil {
		r.log.Error("lookup cache write failed", "error", err)
	}
	return result, nil
}
