package reconcile

import (
	"callsync_agent/internal/crm"
	"callsync_agent/platform/phone"
)

// FindLeadByNumber returns the first lead whose any phone field shares a
// match key with raw, or nil when no lead matches or raw is too short to
// match confidently. First match wins: when duplicate data gives two leads
// the same key, the earlier one in the list is returned.
func FindLeadByNumber(raw string, leads []crm.Lead) *crm.Lead {
	if _, ok := phone.MatchKey(raw); !ok {
		return nil
	}

	for i := range leads {
		for _, candidate := range leads[i].PhoneCandidates() {
			if phone.SameSubscriber(raw, candidate) {
				return &leads[i]
			}
		}
	}
	return nil
}
