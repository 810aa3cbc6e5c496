package domain

// Reconcile decides what the stored row should become after the provider
// reported fields. existing is nil for an unseen match.
//
// The provider is authoritative for scores: a finished match whose score
// differs is overwritten and flagged Corrected. A finished match with a known
// score never moves back to scheduled or unknown.
func Reconcile(existing *Match, fields MatchFields) (MatchFields, UpsertResult) {
	if existing == nil {
		return fields, UpsertResult{Created: true, Changed: true}
	}

	next := fields
	result := UpsertResult{}

	if existing.Status == StatusFinished && existing.HasScore() {
		if next.Status != StatusFinished || next.HomeGoals == nil || next.AwayGoals == nil {
			next.Status = existing.Status
			next.ProviderStatus = existing.ProviderStatus
			next.HomeGoals = existing.HomeGoals
			next.AwayGoals = existing.AwayGoals
		}
		if !sameGoals(existing.HomeGoals, next.HomeGoals) || !sameGoals(existing.AwayGoals, next.AwayGoals) {
			result.Corrected = true
		}
	}

	result.Changed = !sameFields(existing, next)
	return next, result
}

func sameFields(m *Match, f MatchFields) bool {
	return m.CompetitionID == f.CompetitionID &&
		m.Season == f.Season &&
		m.Round == f.Round &&
		m.HomeTeam == f.HomeTeam &&
		m.AwayTeam == f.AwayTeam &&
		m.Kickoff.Equal(f.Kickoff) &&
		sameGoals(m.HomeGoals, f.HomeGoals) &&
		sameGoals(m.AwayGoals, f.AwayGoals) &&
		m.Status == f.Status &&
		m.ProviderStatus == f.ProviderStatus
}

func sameGoals(a, b *int) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
