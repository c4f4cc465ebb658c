package auth

import (
	"errors"
	"fmt"
	"os/user"

	"github.com/charmbracelet/log"
)

// Lookups used by IsUserInGroup, replaced in tests.
var (
	lookupUser  = user.Lookup
	lookupGroup = user.LookupGroup
	groupIDsOf  = func(u *user.User) ([]string, error) { return u.GroupIds() }
)

// IsUserInGroup checks if a Linux user is a member of a specific group.
// Returns false, nil if the user or group doesn't exist.
// Returns false, error for actual system errors during lookup.
func IsUserInGroup(username, groupName string) (bool, error) {
	if groupName == "" {
		return false, nil
	}

	usr, err := lookupUser(username)
	if err != nil {
		var unknown user.UnknownUserError
		if errors.As(err, &unknown) {
			log.Warnf("Group check: User '%s' not found.", username)
			return false, nil
		}
		return false, fmt.Errorf("error looking up user: %w", err)
	}

	group, err := lookupGroup(groupName)
	if err != nil {
		var unknown user.UnknownGroupError
		if errors.As(err, &unknown) {
			log.Warnf("Group check: Group '%s' does not exist on the system.", groupName)
			return false, nil
		}
		return false, fmt.Errorf("error looking up group: %w", err)
	}

	// The primary group is not always listed by GroupIds
	if usr.Gid == group.Gid {
		return true, nil
	}
	gids, err := groupIDsOf(usr)
	if err != nil {
		return false, fmt.Errorf("error getting user group IDs: %w", err)
	}
	for _, gid := range gids {
		if gid == group.Gid {
			log.Debugf("Group check: User '%s' is a member of group '%s' (GID: %s).", username, groupName, group.Gid)
			return true, nil
		}
	}

	log.Debugf("Group check: User '%s' is NOT a member of group '%s'.", username, groupName)
	return false, nil
}
