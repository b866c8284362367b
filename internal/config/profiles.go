package config

import (
	"fmt"
	"strings"

	"github.com/bryanchriswhite/FocusRelay/internal/logger"
	"github.com/google/uuid"
)

// ListProfiles returns all profiles
func (m *Manager) ListProfiles() []Profile {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.config == nil {
		return []Profile{}
	}
	profiles := make([]Profile, len(m.config.Profiles))
	copy(profiles, m.config.Profiles)
	return profiles
}

// GetProfile returns a profile by ID
func (m *Manager) GetProfile(profileID string) (*Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.config != nil {
		for i := range m.config.Profiles {
			if m.config.Profiles[i].ID == profileID {
				p := m.config.Profiles[i]
				return &p, nil
			}
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrProfileNotFound, profileID)
}

// ActiveProfile returns the active profile, or nil when none is selected.
func (m *Manager) ActiveProfile() *Profile {
	m.mu.RLock()
	id := ""
	if m.config != nil {
		id = m.config.ActiveProfileID
	}
	m.mu.RUnlock()
	if id == "" {
		return nil
	}
	p, err := m.GetProfile(id)
	if err != nil {
		return nil
	}
	return p
}

// SaveProfile inserts p, or replaces the profile with the same ID. An empty ID
// gets a fresh one.
func (m *Manager) SaveProfile(p Profile) (*Profile, error) {
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return nil, fmt.Errorf("%w: profile name is required", ErrInvalid)
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}

	_, err := m.mutate(func(cfg *Config) error {
		for i := range cfg.Profiles {
			if cfg.Profiles[i].ID == p.ID {
				cfg.Profiles[i] = p
				return nil
			}
		}
		cfg.Profiles = append(cfg.Profiles, p)
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.WithComponent("config").Info().
		Str("profile_id", p.ID).
		Str("profile_name", p.Name).
		Msg("Saved profile")
	return &p, nil
}

// DeleteProfile deletes a profile by ID and clears the selection if it was active.
func (m *Manager) DeleteProfile(profileID string) error {
	_, err := m.mutate(func(cfg *Config) error {
		filtered := make([]Profile, 0, len(cfg.Profiles))
		for _, p := range cfg.Profiles {
			if p.ID != profileID {
				filtered = append(filtered, p)
			}
		}
		if len(filtered) == len(cfg.Profiles) {
			return fmt.Errorf("%w: %s", ErrProfileNotFound, profileID)
		}
		cfg.Profiles = filtered
		if cfg.ActiveProfileID == profileID {
			cfg.ActiveProfileID = ""
		}
		return nil
	})
	if err != nil {
		return err
	}

	logger.WithComponent("config").Info().
		Str("profile_id", profileID).
		Msg("Deleted profile")
	return nil
}

// SetActiveProfile selects a profile. An empty id clears the selection.
func (m *Manager) SetActiveProfile(profileID string) error {
	_, err := m.mutate(func(cfg *Config) error {
		if profileID == "" {
			cfg.ActiveProfileID = ""
			return nil
		}
		for _, p := range cfg.Profiles {
			if p.ID == profileID {
				cfg.ActiveProfileID = profileID
				return nil
			}
		}
		return fmt.Errorf("%w: %s", ErrProfileNotFound, profileID)
	})
	if err != nil {
		return err
	}

	logger.WithComponent("config").Info().
		Str("profile_id", profileID).
		Msg("Switched to profile")
	return nil
}

// FindProfile looks a profile up by ID first, then by case-insensitive name.
func (m *Manager) FindProfile(ref string) (*Profile, error) {
	if p, err := m.GetProfile(ref); err == nil {
		return p, nil
	}
	for _, p := range m.ListProfiles() {
		if strings.EqualFold(p.Name, ref) {
			p := p
			return &p, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrProfileNotFound, ref)
}
