package domain

// Enablement is the derived UI state for the controls tied to one job kind.
type Enablement struct {
	Kind JobKind `json:"kind"`
	// NavigationEnabled is true once the kind's data is ready to browse.
	NavigationEnabled bool `json:"navigation_enabled"`
	// RefreshEnabled is false while a kickoff is in flight, and for
	// detailed data when the user has not paid.
	RefreshEnabled bool   `json:"refresh_enabled"`
	Message        string `json:"message"`
}

// Enablement derives the UI state for kind from the snapshot.
func (s Snapshot) Enablement(kind JobKind) Enablement {
	job := s.State(kind).Job
	refresh := job.StopPolling
	if kind == Detailed && !s.Paid {
		refresh = false
	}
	return Enablement{
		Kind:              kind,
		NavigationEnabled: job.Status == StatusFinished,
		RefreshEnabled:    refresh,
		Message:           job.Message,
	}
}

// Enablements returns the UI state for every kind.
func (s Snapshot) Enablements() []Enablement {
	out := make([]Enablement, 0, len(Kinds))
	for _, kind := range Kinds {
		out = append(out, s.Enablement(kind))
	}
	return out
}
