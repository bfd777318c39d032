package identity

// ProfileVisibility is an ordered policy tag that controls who may view
// profile fields. Enforcement happens in the serving layer; this package
// only stores and exposes the value.
type ProfileVisibility string

const (
	// VisibilityPrivate hides the profile from everyone.
	VisibilityPrivate ProfileVisibility = "private"
	// VisibilityConnectedUsers exposes the profile to direct connections.
	VisibilityConnectedUsers ProfileVisibility = "connected_users"
	// VisibilityCommunities exposes the profile to shared communities.
	VisibilityCommunities ProfileVisibility = "communities"
	// VisibilityRegisteredUsers exposes the profile to any signed-in user.
	VisibilityRegisteredUsers ProfileVisibility = "registered_users"
	// VisibilityPublic exposes the profile to everyone.
	VisibilityPublic ProfileVisibility = "public"
)

// visibilityRank orders levels from most closed to most open.
var visibilityRank = map[ProfileVisibility]int{
	VisibilityPrivate:         0,
	VisibilityConnectedUsers:  1,
	VisibilityCommunities:     2,
	VisibilityRegisteredUsers: 3,
	VisibilityPublic:          4,
}

// IsValid checks if the visibility is one of the predefined levels
func (v ProfileVisibility) IsValid() bool {
	_, ok := visibilityRank[v]
	return ok
}

// AtLeastAsOpenAs reports whether v exposes the profile to at least the
// audience that min does. Unknown levels are treated as private.
func (v ProfileVisibility) AtLeastAsOpenAs(min ProfileVisibility) bool {
	return visibilityRank[v] >= visibilityRank[min]
}

// String implements fmt.Stringer.
func (v ProfileVisibility) String() string {
	return string(v)
}

// ParseProfileVisibility maps a stored value to a visibility level,
// falling back to private for anything unknown.
func ParseProfileVisibility(value string) ProfileVisibility {
	v := ProfileVisibility(value)
	if v.IsValid() {
		return v
	}
	return VisibilityPrivate
}
