package models

// Platform is an immutable catalog entry describing one VOD platform.
type Platform struct {
	ID           int    `json:"id"`
	PlatformSlug string `json:"platform_slug"`
	PlatformName string `json:"platform_name"`
}

// UserProfile is the authenticated user's profile with selected platforms.
type UserProfile struct {
	Email     string     `json:"email"`
	Platforms []Platform `json:"platforms"`
}

// SelectedPlatformIDs returns the IDs of the user's selected platforms.
func (p UserProfile) SelectedPlatformIDs() []int {
	ids := make([]int, 0, len(p.Platforms))
	for _, pl := range p.Platforms {
		ids = append(ids, pl.ID)
	}
	return ids
}

// UpdateUserProfileCommand is the request body for replacing the user's
// platform selection.
type UpdateUserProfileCommand struct {
	Platforms []int `json:"platforms"`
}
