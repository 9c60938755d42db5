package calls

// RosterEntry is one identifier reported as present on a call connection.
type RosterEntry struct {
	RawID    string `json:"raw_id"`
	IsMuted  bool   `json:"is_muted"`
	IsOnHold bool   `json:"is_on_hold"`
}

// RawIDFor returns the provider-native identifier expected for p in a roster.
// Phone-number identifiers of Outbound and Inbound participants carry the
// provider prefix; other directions are stored in raw form already.
func RawIDFor(p Participant, prefix string) string {
	switch p.Direction {
	case DirectionOutbound, DirectionInbound:
		return prefix + ":" + p.PhoneNumber
	default:
		return p.PhoneNumber
	}
}

// ReconcileRoster disconnects every Connected participant whose identifier is
// absent from roster. It returns the ids that changed; a second call with the
// same roster returns none.
func (r *CallRecord) ReconcileRoster(roster []RosterEntry, prefix string) []string {
	present := make(map[string]struct{}, len(roster))
	for _, e := range roster {
		present[e.RawID] = struct{}{}
	}

	var changed []string
	for i := range r.Participants {
		p := &r.Participants[i]
		if p.Status != StatusConnected {
			continue
		}
		if _, ok := present[RawIDFor(*p, prefix)]; ok {
			continue
		}
		p.Status = StatusDisconnected
		changed = append(changed, p.ID)
	}
	return changed
}
