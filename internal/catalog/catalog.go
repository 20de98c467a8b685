// Package catalog provides the immutable language catalog.
//
// The catalog is loaded once from the database at process start; lookups
// are O(1) map reads and require no synchronization afterwards.
package catalog

import (
	"errors"
	"sort"

	"gorm.io/gorm"

	"kodejudge/internal/models"
)

// ErrNotFound is returned when a language id does not resolve.
var ErrNotFound = errors.New("language not found")

// Catalog is an immutable id -> Language lookup.
type Catalog struct {
	byID map[int]models.Language
	list []models.Language
}

// Load reads all languages from the database and freezes them.
func Load(db *gorm.DB) (*Catalog, error) {
	var langs []models.Language
	if err := db.Order("id").Find(&langs).Error; err != nil {
		return nil, err
	}
	return New(langs), nil
}

// New builds a catalog from a fixed set of languages.
func New(langs []models.Language) *Catalog {
	byID := make(map[int]models.Language, len(langs))
	for _, l := range langs {
		byID[l.ID] = l
	}
	list := make([]models.Language, len(langs))
	copy(list, langs)
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return &Catalog{byID: byID, list: list}
}

// Get resolves a language id.
func (c *Catalog) Get(id int) (models.Language, error) {
	l, ok := c.byID[id]
	if !ok {
		return models.Language{}, ErrNotFound
	}
	return l, nil
}

// List returns all languages ordered by id.
func (c *Catalog) List() []models.Language {
	out := make([]models.Language, len(c.list))
	copy(out, c.list)
	return out
}

// Len returns the number of catalog entries.
func (c *Catalog) Len() int {
	return len(c.list)
}
