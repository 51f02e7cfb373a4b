// model.go this code defines the data model for the application
package datastore

import "time"

// Camera represents a single camera in the collection.
type Camera struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Brand        string    `gorm:"index:idx_cameras_brand" json:"brand"`
	Model        string    `gorm:"index:idx_cameras_model" json:"model"`
	SerialNumber string    `json:"serial_number,omitempty"`
	Type         string    `json:"type,omitempty"`        // e.g. "SLR", "rangefinder", "point-and-shoot"
	Year         int       `json:"year,omitempty"`        // year of manufacture, 0 when unknown
	FilmFormat   string    `json:"film_format,omitempty"` // e.g. "35mm", "120"
	Notes        string    `gorm:"type:text" json:"notes,omitempty"`
	ImageURL     string    `json:"image_url,omitempty"`   // first user-uploaded image slot
	ImageURL2    string    `json:"image_url_2,omitempty"` // second user-uploaded image slot
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// HasUserImages reports whether either user-uploaded image slot is populated.
func (c *Camera) HasUserImages() bool {
	return c.ImageURL != "" || c.ImageURL2 != ""
}

// DefaultImage is a model-specific (brand+model) reference photo record,
// created by the acquisition pipeline or manually by an admin.
type DefaultImage struct {
	ID                uint      `gorm:"primaryKey" json:"id"`
	Brand             string    `gorm:"index:idx_default_images_brand_model" json:"brand"`
	Model             string    `gorm:"index:idx_default_images_brand_model" json:"model"`
	ImageURL          string    `json:"image_url"` // local path or external URL
	Source            string    `json:"source"`    // e.g. "Wikipedia Commons", "Manual", "System"
	SourceAttribution string    `gorm:"type:text" json:"source_attribution,omitempty"` // pre-composed attribution text
	Author            string    `json:"author,omitempty"`
	AuthorURL         string    `json:"author_url,omitempty"`
	License           string    `json:"license,omitempty"`
	LicenseURL        string    `json:"license_url,omitempty"`
	ImageQuality      int       `json:"image_quality,omitempty"` // 1-10
	IsActive          bool      `gorm:"index" json:"is_active"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// BrandDefaultImage is a brand-level fallback reference photo record.
type BrandDefaultImage struct {
	ID                uint      `gorm:"primaryKey" json:"id"`
	Brand             string    `gorm:"index:idx_brand_default_images_brand" json:"brand"`
	ImageURL          string    `json:"image_url"`
	Source            string    `json:"source"`
	SourceAttribution string    `gorm:"type:text" json:"source_attribution,omitempty"`
	Author            string    `json:"author,omitempty"`
	AuthorURL         string    `json:"author_url,omitempty"`
	License           string    `json:"license,omitempty"`
	LicenseURL        string    `json:"license_url,omitempty"`
	IsActive          bool      `gorm:"index" json:"is_active"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// BrandCount is a per-brand camera count used by the summary endpoint.
type BrandCount struct {
	Brand string `json:"brand"`
	Count int64  `json:"count"`
}

// TypeCount is a per-type camera count used by the summary endpoint.
type TypeCount struct {
	Type  string `json:"type"`
	Count int64  `json:"count"`
}

// DecadeCount is a per-decade camera count used by the summary endpoint.
// Decade 0 collects cameras with an unknown year.
type DecadeCount struct {
	Decade int   `json:"decade"`
	Count  int64 `json:"count"`
}
