package telemetry

// ProviderStats summarises the attempts recorded for one provider.
type ProviderStats struct {
	Total              int     `json:"total"`
	Successful         int     `json:"successful"`
	Failed             int     `json:"failed"`
	Cancelled          int     `json:"cancelled"`
	SuccessRatePercent float64 `json:"success_rate_percent"`
}

// Stats summarises a set of attempt records.
type Stats struct {
	TotalAttempts      int                      `json:"total_attempts"`
	SuccessfulAttempts int                      `json:"successful_attempts"`
	FailedAttempts     int                      `json:"failed_attempts"`
	CancelledAttempts  int                      `json:"cancelled_attempts"`
	PerProvider        map[string]ProviderStats `json:"per_provider"`
}

// ComputeStats derives Stats from records. Cancelled attempts count toward
// totals but never as successful.
func ComputeStats(records []AttemptRecord) Stats {
	s := Stats{PerProvider: make(map[string]ProviderStats)}
	for _, r := range records {
		ps := s.PerProvider[r.Provider]
		ps.Total++
		s.TotalAttempts++
		switch r.Status {
		case StatusSuccess:
			ps.Successful++
			s.SuccessfulAttempts++
		case StatusCancelled:
			ps.Cancelled++
			s.CancelledAttempts++
		default:
			ps.Failed++
			s.FailedAttempts++
		}
		s.PerProvider[r.Provider] = ps
	}
	for name, ps := range s.PerProvider {
		if ps.Total > 0 {
			ps.SuccessRatePercent = float64(ps.Successful) / float64(ps.Total) * 100
		}
		s.PerProvider[name] = ps
	}
	return s
}
