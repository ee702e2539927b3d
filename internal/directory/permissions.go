package directory

import (
	"kiama-backend/internal/models"
)

type Action string

const (
	ActionRead  Action = "read"
	ActionWrite Action = "write"
)

// CanAccess resolves read/write authorization for a principal on a channel.
//
// Precedence: a role list, once present, is the authority for its action and
// the boolean flag is ignored. The legacy combined Roles list gates both
// actions. Writing additionally requires at least one held role carrying the
// sendMessages capability when no write role list is set.
func (s *Store) CanAccess(channelID int64, principal string, action Action) (bool, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	channel, exists := s.channels[channelID]
	if !exists {
		return false, nil
	}

	roles := s.effectiveRolesLocked(principal)

	held := make(map[int64]struct{}, len(roles))
	for _, role := range roles {
		held[role.ID] = struct{}{}
	}

	perms := channel.Permissions

	// legacy combined gate applies to both actions
	if len(perms.Roles) > 0 && !intersects(held, perms.Roles) {
		return false, nil
	}

	switch action {
	case ActionRead:
		if len(perms.ReadRoles) > 0 {
			return intersects(held, perms.ReadRoles), nil
		}
		return perms.Read, nil

	case ActionWrite:
		if len(perms.WriteRoles) > 0 {
			return intersects(held, perms.WriteRoles), nil
		}
		if !perms.Write {
			return false, nil
		}
		for _, role := range roles {
			if role.Permissions.SendMessages {
				return true, nil
			}
		}
		return false, nil
	}

	return false, nil
}

func intersects(held map[int64]struct{}, wanted []int64) bool {
	for _, roleID := range wanted {
		if _, ok := held[roleID]; ok {
			return true
		}
	}
	return false
}

// HasCapability reports whether any of the principal's roles carries the
// given role capability. Used by the HTTP surface for manage operations.
func (s *Store) HasCapability(principal string, check func(models.RolePermissions) bool) bool {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	for _, role := range s.effectiveRolesLocked(principal) {
		if check(role.Permissions) {
			return true
		}
	}
	return false
}
