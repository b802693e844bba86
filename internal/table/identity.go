package table

// Identity is the stable, opaque handle for a connected principal.
//
// Identities are comparable and hashable (plain string), so they can be
// used directly as map keys and as the equality key for ownership checks
// (message sender, reaction reactor, typing-indicator owner).
//
// The value is an opaque lowercase hex token. The engine never parses it;
// it only compares it and folds it into the avatar hash.
type Identity string

// avatarPalette is the fixed 10-color avatar palette.
// Order matters: AvatarColor indexes into it by identity hash.
var avatarPalette = []string{
	"#5865f2", "#57f287", "#fee75c", "#eb459e", "#ed4245",
	"#f47b67", "#e78fda", "#9b84ec", "#45ddc0", "#3ba55c",
}

// AvatarColor derives a stable display color from an identity.
//
// Uses the classic shift-and-subtract string fold (hash*31 + ch) over the
// identity bytes, truncated to 32 bits so the result is identical across
// platforms. The same identity always maps to the same palette entry.
func AvatarColor(id Identity) string {
	var hash int32
	for i := 0; i < len(id); i++ {
		hash = (hash << 5) - hash + int32(id[i])
	}
	// Widen before negating: -MinInt32 does not fit in int32.
	h := int64(hash)
	if h < 0 {
		h = -h
	}
	return avatarPalette[h%int64(len(avatarPalette))]
}

// ShortName returns the fallback display name for an identity: its first
// eight characters. Used when a user has not set a display name.
func ShortName(id Identity) string {
	if len(id) <= 8 {
		return string(id)
	}
	return string(id[:8])
}
