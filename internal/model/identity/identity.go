package identity

import "strings"

// GuestKey is the storage key used when nobody is signed in.
const GuestKey = "guest_messages"

const userKeyPrefix = "messages_"

// User is a registered account. Usernames are unique ignoring case.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// Identity is either the guest or a resolved user.
type Identity struct {
	User *User `json:"user,omitempty"`
}

// Guest returns the anonymous identity.
func Guest() Identity {
	return Identity{}
}

// ForUser wraps a user record as an identity.
func ForUser(u User) Identity {
	return Identity{User: &u}
}

// IsGuest reports whether no user is signed in.
func (i Identity) IsGuest() bool {
	return i.User == nil
}

// Username returns the signed-in username, or "" for the guest.
func (i Identity) Username() string {
	if i.User == nil {
		return ""
	}
	return i.User.Username
}

// StorageKey derives the key under which this identity's message log is stored.
func (i Identity) StorageKey() string {
	if i.User == nil {
		return GuestKey
	}
	return userKeyPrefix + i.User.Username
}

// SameUsername compares usernames the way the account registry does.
func SameUsername(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
