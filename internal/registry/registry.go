// Package registry tracks trained artifact versions and which one is
// active, so serving can roll back to a previously good model.
package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"riskgate/internal/eval"
)

// Version is one trained artifact directory plus the metrics it shipped with.
type Version struct {
	Version   string      `json:"version"`
	Path      string      `json:"path"`
	CreatedAt time.Time   `json:"created_at"`
	Report    eval.Report `json:"report"`
	IsActive  bool        `json:"is_active"`
}

// Registry handles artifact versioning and rollback.
type Registry struct {
	dir          string
	versionsFile string
	versions     []Version
	current      *Version
}

// New opens the registry under dir, loading any existing version index.
func New(dir string) (*Registry, error) {
	r := &Registry{
		dir:          dir,
		versionsFile: filepath.Join(dir, "model_versions.json"),
		versions:     make([]Version, 0),
	}
	if err := r.load(); err != nil {
		log.Warn().Err(err).Msg("failed to load model versions, starting fresh")
	}
	return r, nil
}

// Add records a new trained artifact. The version name is derived from
// the clock; the new entry starts inactive.
func (r *Registry) Add(path string, report eval.Report) (string, error) {
	now := time.Now()
	name := now.Format("20060102-150405")
	// Disambiguate versions created within the same second.
	for n := 2; r.find(name) >= 0; n++ {
		name = fmt.Sprintf("%s-%d", now.Format("20060102-150405"), n)
	}
	v := Version{
		Version:   name,
		Path:      path,
		CreatedAt: now,
		Report:    report,
	}

	r.versions = append(r.versions, v)
	sort.Slice(r.versions, func(i, j int) bool {
		return r.versions[i].CreatedAt.After(r.versions[j].CreatedAt)
	})

	return v.Version, r.save()
}

func (r *Registry) find(version string) int {
	for i := range r.versions {
		if r.versions[i].Version == version {
			return i
		}
	}
	return -1
}

// Activate marks the named version active and deactivates the rest.
func (r *Registry) Activate(version string) error {
	found := false
	for i := range r.versions {
		if r.versions[i].Version == version {
			r.versions[i].IsActive = true
			r.current = &r.versions[i]
			found = true
		} else {
			r.versions[i].IsActive = false
		}
	}
	if !found {
		return fmt.Errorf("version %s not found", version)
	}
	return r.save()
}

// Rollback activates the version immediately preceding the active one.
func (r *Registry) Rollback() error {
	if len(r.versions) < 2 {
		return fmt.Errorf("no previous version available for rollback")
	}

	currentIdx := -1
	for i, v := range r.versions {
		if v.IsActive {
			currentIdx = i
			break
		}
	}
	if currentIdx == -1 {
		return fmt.Errorf("no active version found")
	}
	if currentIdx+1 >= len(r.versions) {
		return fmt.Errorf("no previous version available")
	}
	return r.Activate(r.versions[currentIdx+1].Version)
}

// Current returns the active version, or nil when none is active.
func (r *Registry) Current() *Version {
	return r.current
}

// List returns all recorded versions, newest first.
func (r *Registry) List() []Version {
	return r.versions
}

func (r *Registry) load() error {
	data, err := os.ReadFile(r.versionsFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if err := json.Unmarshal(data, &r.versions); err != nil {
		return err
	}
	for i := range r.versions {
		if r.versions[i].IsActive {
			r.current = &r.versions[i]
			break
		}
	}
	return nil
}

func (r *Registry) save() error {
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(r.versions, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(r.versionsFile, data, 0o600)
}
