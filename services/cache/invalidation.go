package cache

// MutationKind names a write operation for the invalidation graph.
type MutationKind string

const (
	MutationAddToWatchlist  MutationKind = "add-to-watchlist"
	MutationDeleteUserMovie MutationKind = "delete-user-movie"
	MutationPatchUserMovie  MutationKind = "patch-user-movie"
	MutationUpdatePlatforms MutationKind = "update-user-platforms"
	MutationDeleteAccount   MutationKind = "delete-account"
)

// invalidationGraph maps a completed mutation to the key prefixes it forces
// to refresh. It is data, not code: a new resource registers its dependency
// edges here. The {"user-movies"} prefix covers every status-filtered view,
// watched included. Account deletion is handled separately and wipes the
// whole store.
var invalidationGraph = map[MutationKind][]Key{
	MutationAddToWatchlist:  {{"user-movies"}},
	MutationDeleteUserMovie: {{"user-movies"}},
	MutationPatchUserMovie:  {{"user-movies"}},
	MutationUpdatePlatforms: {{"user-profile"}, {"user-movies"}, {"ai-suggestions"}},
}

// ApplyMutation applies the invalidation edges registered for the mutation.
// Called by the mutation pipeline after, and only after, a successful write.
func (s *Store) ApplyMutation(kind MutationKind) {
	if kind == MutationDeleteAccount {
		s.Clear()
		return
	}
	for _, prefix := range invalidationGraph[kind] {
		s.Invalidate(prefix)
	}
}
