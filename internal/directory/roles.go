package directory

import (
	"sort"
	"time"

	"kiama-backend/internal/apperrors"
	"kiama-backend/internal/models"
	"kiama-backend/internal/snowflake"
	"kiama-backend/internal/validator"
)

func (s *Store) Role(roleID int64) (models.Role, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	role, exists := s.roles[roleID]
	if !exists {
		return models.Role{}, apperrors.NotFound("role not found")
	}
	return *role, nil
}

func (s *Store) Roles() []models.Role {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	roles := make([]models.Role, 0, len(s.roles))
	for _, role := range s.roles {
		roles = append(roles, *role)
	}
	sort.Slice(roles, func(i, j int) bool {
		if roles[i].Position != roles[j].Position {
			return roles[i].Position < roles[j].Position
		}
		return roles[i].ID < roles[j].ID
	})
	return roles
}

func (s *Store) CreateRole(name string, color string, permissions models.RolePermissions) (models.Role, error) {
	if err := validator.Name(name); err != nil {
		return models.Role{}, apperrors.Wrap(apperrors.CodeInvalidArgument, "invalid role name", err)
	}

	roleID, err := snowflake.Generate()
	if err != nil {
		return models.Role{}, apperrors.Wrap(apperrors.CodeInternal, "couldn't generate role ID", err)
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	position := 0
	for _, role := range s.roles {
		if role.Position >= position {
			position = role.Position + 1
		}
	}

	now := time.Now().UTC()
	role := &models.Role{
		ID:          roleID,
		Name:        name,
		Color:       color,
		Position:    position,
		Permissions: permissions,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.roles[roleID] = role

	s.sugar.Infof("Created role [%s] with ID [%d]", name, roleID)
	return *role, nil
}

// RolePatch updates only non-nil fields. The everyone role may be patched
// (that is how its default capabilities are tuned), just never deleted.
type RolePatch struct {
	Name        *string                 `json:"name"`
	Color       *string                 `json:"color"`
	Permissions *models.RolePermissions `json:"permissions"`
}

func (s *Store) PatchRole(roleID int64, patch RolePatch) (models.Role, error) {
	if patch.Name != nil {
		if err := validator.Name(*patch.Name); err != nil {
			return models.Role{}, apperrors.Wrap(apperrors.CodeInvalidArgument, "invalid role name", err)
		}
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	role, exists := s.roles[roleID]
	if !exists {
		return models.Role{}, apperrors.NotFound("role not found")
	}

	if patch.Name != nil {
		role.Name = *patch.Name
	}
	if patch.Color != nil {
		role.Color = *patch.Color
	}
	if patch.Permissions != nil {
		role.Permissions = *patch.Permissions
	}
	role.UpdatedAt = time.Now().UTC()

	return *role, nil
}

// DeleteRole purges the role from every user assignment. The everyone role
// is protected.
func (s *Store) DeleteRole(roleID int64) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, exists := s.roles[roleID]; !exists {
		return apperrors.NotFound("role not found")
	}
	if roleID == s.everyoneRoleID {
		return apperrors.Protected("cannot delete everyone role")
	}

	delete(s.roles, roleID)
	for principal, assigned := range s.userRoles {
		delete(assigned, roleID)
		if len(assigned) == 0 {
			delete(s.userRoles, principal)
		}
	}

	s.sugar.Infof("Deleted role ID [%d]", roleID)
	return nil
}

func (s *Store) AssignRole(principal string, roleID int64) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, exists := s.roles[roleID]; !exists {
		return apperrors.NotFound("role not found")
	}

	assigned, exists := s.userRoles[principal]
	if !exists {
		assigned = make(map[int64]struct{})
		s.userRoles[principal] = assigned
	}
	assigned[roleID] = struct{}{}

	s.sugar.Debugf("Assigned role ID [%d] to [%s]", roleID, principal)
	return nil
}

func (s *Store) UnassignRole(principal string, roleID int64) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, exists := s.roles[roleID]; !exists {
		return apperrors.NotFound("role not found")
	}

	assigned := s.userRoles[principal]
	delete(assigned, roleID)
	if len(assigned) == 0 {
		delete(s.userRoles, principal)
	}

	s.sugar.Debugf("Unassigned role ID [%d] from [%s]", roleID, principal)
	return nil
}

// EffectiveRoles returns the principal's role set: everyone plus whatever
// has been explicitly assigned. An absent assignment entry means only
// everyone.
func (s *Store) EffectiveRoles(principal string) []models.Role {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	return s.effectiveRolesLocked(principal)
}

func (s *Store) effectiveRolesLocked(principal string) []models.Role {
	roles := []models.Role{*s.roles[s.everyoneRoleID]}
	for roleID := range s.userRoles[principal] {
		if role, exists := s.roles[roleID]; exists {
			roles = append(roles, *role)
		}
	}
	return roles
}
