// Package capability selects the processing limits used for one client environment.
package capability

import (
	"time"
)

// Profile names.
const (
	Desktop     = "desktop"
	Mobile      = "mobile"
	Constrained = "constrained"
)

// PreviewStrategy names one rung of the preview ladder.
type PreviewStrategy string

const (
	PreviewReference PreviewStrategy = "reference"
	PreviewInline    PreviewStrategy = "inline"
	PreviewRaster    PreviewStrategy = "raster"
)

// Profile is the bundle of limits and strategy preferences chosen once per upload session.
type Profile struct {
	Name           string            `json:"name"`
	MaxDimension   int               `json:"max_dimension"`
	Quality        float64           `json:"quality"`
	MaxBytes       int64             `json:"max_bytes"`
	MaxUploadBytes int64             `json:"max_upload_bytes"`
	MaxRetries     int               `json:"max_retries"`
	Timeout        time.Duration     `json:"timeout"`
	PreviewOrder   []PreviewStrategy `json:"preview_order"`
	AllowEmptyType bool              `json:"allow_empty_type"`
	BufferedDecode bool              `json:"buffered_decode"`
}

// Override replaces the non-zero fields of a built-in profile.
type Override struct {
	MaxDimension   int
	Quality        float64
	MaxBytes       int64
	MaxUploadBytes int64
	MaxRetries     int
	Timeout        time.Duration
	PreviewOrder   []string
	AllowEmptyType *bool
	BufferedDecode *bool
}

// Defaults returns the built-in strategy table.
func Defaults() map[string]Profile {
	return map[string]Profile{
		Desktop: {
			Name:           Desktop,
			MaxDimension:   1500,
			Quality:        0.85,
			MaxBytes:       3 << 20,
			MaxUploadBytes: 10 << 20,
			MaxRetries:     2,
			Timeout:        15 * time.Second,
			PreviewOrder:   []PreviewStrategy{PreviewReference, PreviewInline, PreviewRaster},
		},
		Mobile: {
			Name:           Mobile,
			MaxDimension:   1200,
			Quality:        0.8,
			MaxBytes:       2 << 20,
			MaxUploadBytes: 15 << 20,
			MaxRetries:     2,
			Timeout:        10 * time.Second,
			PreviewOrder:   []PreviewStrategy{PreviewReference, PreviewInline, PreviewRaster},
			AllowEmptyType: true,
		},
		Constrained: {
			Name:           Constrained,
			MaxDimension:   1000,
			Quality:        0.75,
			MaxBytes:       2 << 20,
			MaxUploadBytes: 15 << 20,
			MaxRetries:     3,
			Timeout:        30 * time.Second,
			PreviewOrder:   []PreviewStrategy{PreviewInline, PreviewReference, PreviewRaster},
			AllowEmptyType: true,
			BufferedDecode: true,
		},
	}
}

// Table holds the active profiles keyed by name.
type Table struct {
	profiles map[string]Profile
	fallback string
}

// NewTable builds a table from the defaults with the given overrides applied.
// fallback names the profile returned for unknown names; it defaults to desktop.
func NewTable(overrides map[string]Override, fallback string) *Table {
	profiles := Defaults()
	for name, o := range overrides {
		p, ok := profiles[name]
		if !ok {
			p = profiles[Desktop]
			p.Name = name
		}
		profiles[name] = o.apply(p)
	}
	if _, ok := profiles[fallback]; !ok {
		fallback = Desktop
	}
	return &Table{profiles: profiles, fallback: fallback}
}

// Get returns the named profile, or the fallback profile for unknown names.
func (t *Table) Get(name string) Profile {
	if p, ok := t.profiles[name]; ok {
		return p.clone()
	}
	return t.profiles[t.fallback].clone()
}

// Names lists the configured profile names.
func (t *Table) Names() []string {
	names := make([]string, 0, len(t.profiles))
	for n := range t.profiles {
		names = append(names, n)
	}
	return names
}

func (o Override) apply(p Profile) Profile {
	if o.MaxDimension > 0 {
		p.MaxDimension = o.MaxDimension
	}
	if o.Quality > 0 {
		p.Quality = o.Quality
	}
	if o.MaxBytes > 0 {
		p.MaxBytes = o.MaxBytes
	}
	if o.MaxUploadBytes > 0 {
		p.MaxUploadBytes = o.MaxUploadBytes
	}
	if o.MaxRetries > 0 {
		p.MaxRetries = o.MaxRetries
	}
	if o.Timeout > 0 {
		p.Timeout = o.Timeout
	}
	if len(o.PreviewOrder) > 0 {
		order := make([]PreviewStrategy, 0, len(o.PreviewOrder))
		for _, s := range o.PreviewOrder {
			switch PreviewStrategy(s) {
			case PreviewReference, PreviewInline, PreviewRaster:
				order = append(order, PreviewStrategy(s))
			}
		}
		if len(order) > 0 {
			p.PreviewOrder = order
		}
	}
	if o.AllowEmptyType != nil {
		p.AllowEmptyType = *o.AllowEmptyType
	}
	if o.BufferedDecode != nil {
		p.BufferedDecode = *o.BufferedDecode
	}
	return p
}

func (p Profile) clone() Profile {
	p.PreviewOrder = append([]PreviewStrategy(nil), p.PreviewOrder...)
	return p
}
