// Package catalog loads the bookable services offered by the practice.
package catalog

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Service describes one bookable service. Duration bounds are in minutes and
// zero means "use the scheduling defaults".
type Service struct {
	ID                     string `yaml:"id"`
	Name                   string `yaml:"name"`
	Color                  string `yaml:"color"`
	DefaultDurationMinutes int    `yaml:"default_duration_minutes"`
	MinDurationMinutes     int    `yaml:"min_duration_minutes"`
	MaxDurationMinutes     int    `yaml:"max_duration_minutes"`
}

type file struct {
	Services []Service `yaml:"services"`
}

// Catalog is an immutable lookup table of services. The zero value and a nil
// *Catalog are both empty.
type Catalog struct {
	byID  map[string]Service
	order []string
}

// Load reads a YAML catalog from path. An empty path yields an empty catalog.
func Load(path string) (*Catalog, error) {
	if strings.TrimSpace(path) == "" {
		return &Catalog{}, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return Parse(b)
}

func Parse(b []byte) (*Catalog, error) {
	var f file
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	return New(f.Services...)
}

// New builds a catalog from services, rejecting duplicates and inverted
// duration bounds.
func New(services ...Service) (*Catalog, error) {
	c := &Catalog{byID: make(map[string]Service, len(services))}
	for _, s := range services {
		s.ID = strings.TrimSpace(s.ID)
		if s.ID == "" {
			return nil, errors.New("catalog service id is required")
		}
		if _, dup := c.byID[s.ID]; dup {
			return nil, fmt.Errorf("catalog service %q defined twice", s.ID)
		}
		if s.MinDurationMinutes < 0 || s.MaxDurationMinutes < 0 || s.DefaultDurationMinutes < 0 {
			return nil, fmt.Errorf("catalog service %q has a negative duration", s.ID)
		}
		if s.MinDurationMinutes > 0 && s.MaxDurationMinutes > 0 && s.MinDurationMinutes > s.MaxDurationMinutes {
			return nil, fmt.Errorf("catalog service %q: min_duration_minutes exceeds max_duration_minutes", s.ID)
		}
		if s.Name == "" {
			s.Name = s.ID
		}
		c.byID[s.ID] = s
		c.order = append(c.order, s.ID)
	}
	return c, nil
}

func (c *Catalog) Lookup(id string) (Service, bool) {
	if c == nil {
		return Service{}, false
	}
	s, ok := c.byID[id]
	return s, ok
}

func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.order)
}

// Services returns every service in file order.
func (c *Catalog) Services() []Service {
	if c == nil {
		return nil
	}
	out := make([]Service, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.byID[id])
	}
	return out
}
