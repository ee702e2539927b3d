package directory

import (
	"sort"
	"time"

	"kiama-backend/internal/apperrors"
	"kiama-backend/internal/models"
	"kiama-backend/internal/snowflake"
	"kiama-backend/internal/validator"
)

func copySection(section *models.Section) models.Section {
	sec := *section
	sec.Permissions.Roles = append([]int64(nil), section.Permissions.Roles...)
	return sec
}

func (s *Store) Section(sectionID int64) (models.Section, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	section, exists := s.sections[sectionID]
	if !exists {
		return models.Section{}, apperrors.NotFound("section not found")
	}
	return copySection(section), nil
}

func (s *Store) Sections() []models.Section {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	sections := make([]models.Section, 0, len(s.sections))
	for _, section := range s.sections {
		sections = append(sections, copySection(section))
	}
	sort.Slice(sections, func(i, j int) bool {
		if sections[i].Position != sections[j].Position {
			return sections[i].Position < sections[j].Position
		}
		return sections[i].ID < sections[j].ID
	})
	return sections
}

func (s *Store) CreateSection(name string) (models.Section, error) {
	if err := validator.Name(name); err != nil {
		return models.Section{}, apperrors.Wrap(apperrors.CodeInvalidArgument, "invalid section name", err)
	}

	sectionID, err := snowflake.Generate()
	if err != nil {
		return models.Section{}, apperrors.Wrap(apperrors.CodeInternal, "couldn't generate section ID", err)
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	position := 0
	for _, section := range s.sections {
		if section.Position >= position {
			position = section.Position + 1
		}
	}

	now := time.Now().UTC()
	section := &models.Section{
		ID:          sectionID,
		Name:        name,
		Position:    position,
		Permissions: models.SectionPermissions{View: true, Manage: false},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.sections[sectionID] = section

	s.sugar.Infof("Created section [%s] with ID [%d]", name, sectionID)
	return copySection(section), nil
}

// DeleteSection never cascades: member channels are reassigned to no section.
// The default section is protected.
func (s *Store) DeleteSection(sectionID int64) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, exists := s.sections[sectionID]; !exists {
		return apperrors.NotFound("section not found")
	}
	if sectionID == s.defaultSectionID {
		return apperrors.Protected("cannot delete default section")
	}

	for _, channel := range s.channels {
		if channel.SectionID == sectionID {
			channel.SectionID = 0
			channel.UpdatedAt = time.Now().UTC()
		}
	}

	delete(s.sections, sectionID)

	s.sugar.Infof("Deleted section ID [%d]", sectionID)
	return nil
}
