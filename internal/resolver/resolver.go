// Package resolver decides which image to show for a camera, falling back
// from user-provided photos through curated defaults to a placeholder.
package resolver

import (
	"fmt"
	"log/slog"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/camvault/camvault/internal/conf"
	"github.com/camvault/camvault/internal/datastore"
	"github.com/camvault/camvault/internal/errors"
	"github.com/camvault/camvault/internal/logging"
)

// Source identifies which tier of the fallback chain produced the image.
type Source string

const (
	SourceUser         Source = "user"
	SourceDefaultModel Source = "default_model"
	SourceDefaultBrand Source = "default_brand"
	SourcePlaceholder  Source = "placeholder"
)

// Provenance carries the attribution metadata of a resolved default image.
type Provenance struct {
	Author      string `json:"author,omitempty"`
	AuthorURL   string `json:"author_url,omitempty"`
	License     string `json:"license,omitempty"`
	LicenseURL  string `json:"license_url,omitempty"`
	Attribution string `json:"attribution,omitempty"`
	Quality     int    `json:"quality,omitempty"`
}

// Resolved is the outcome of image resolution for one camera.
type Resolved struct {
	Primary    string      `json:"primary"`
	Secondary  string      `json:"secondary,omitempty"`
	Source     Source      `json:"source"`
	Provenance *Provenance `json:"provenance,omitempty"`
}

// Lookup TTL for memoized default-image reads. Writes flush the cache, so
// this only bounds staleness across processes sharing a database.
const memoTTL = time.Minute

// Resolver resolves camera images against the datastore. Resolution is
// read-only and total: every camera resolves to something, the placeholder
// being the tier of last resort.
type Resolver struct {
	ds          datastore.Interface
	placeholder string
	memo        *gocache.Cache
	logger      *slog.Logger
}

// New creates a Resolver backed by ds.
func New(settings *conf.Settings, ds datastore.Interface) *Resolver {
	return &Resolver{
		ds:          ds,
		placeholder: settings.Images.PlaceholderPath,
		memo:        gocache.New(memoTTL, 2*memoTTL),
		logger:      logging.ForService("resolver"),
	}
}

// Resolve picks the image for a camera: user images first, then the active
// model default, then the brand default, then the placeholder.
func (r *Resolver) Resolve(camera *datastore.Camera) Resolved {
	if camera == nil {
		return Resolved{Primary: r.placeholder, Source: SourcePlaceholder}
	}

	if camera.ImageURL != "" {
		return Resolved{
			Primary:   camera.ImageURL,
			Secondary: camera.ImageURL2,
			Source:    SourceUser,
		}
	}

	if img := r.modelDefault(camera.Brand, camera.Model); img != nil {
		return Resolved{
			Primary: img.ImageURL,
			Source:  SourceDefaultModel,
			Provenance: &Provenance{
				Author:      img.Author,
				AuthorURL:   img.AuthorURL,
				License:     img.License,
				LicenseURL:  img.LicenseURL,
				Attribution: img.SourceAttribution,
				Quality:     img.ImageQuality,
			},
		}
	}

	if img := r.brandDefault(camera.Brand); img != nil {
		return Resolved{
			Primary: img.ImageURL,
			Source:  SourceDefaultBrand,
			Provenance: &Provenance{
				Author:      img.Author,
				AuthorURL:   img.AuthorURL,
				License:     img.License,
				LicenseURL:  img.LicenseURL,
				Attribution: img.SourceAttribution,
			},
		}
	}

	return Resolved{Primary: r.placeholder, Source: SourcePlaceholder}
}

// HasCuratedDefault reports whether an active model-level default exists for
// the brand/model pair. Used to skip redundant fetch jobs.
func (r *Resolver) HasCuratedDefault(brand, model string) bool {
	return r.modelDefault(brand, model) != nil
}

// InvalidateDefaults flushes the memoized lookups. Call after any
// default-image write.
func (r *Resolver) InvalidateDefaults() {
	r.memo.Flush()
}

// modelDefault looks up the active model-level default, memoized. A nil
// result (no default) is memoized too so missing records stay cheap.
func (r *Resolver) modelDefault(brand, model string) *datastore.DefaultImage {
	if brand == "" || model == "" {
		return nil
	}
	key := fmt.Sprintf("model|%s|%s", brand, model)
	if cached, found := r.memo.Get(key); found {
		img, _ := cached.(*datastore.DefaultImage)
		return img
	}

	img, err := r.ds.GetDefaultImage(brand, model)
	if err != nil {
		if !errors.IsNotFound(err) {
			r.logger.Warn("Default image lookup failed, degrading to next tier",
				"brand", brand, "model", model, "error", err)
			return nil
		}
		img = nil
	}
	r.memo.SetDefault(key, img)
	return img
}

// brandDefault looks up the brand-level default, memoized.
func (r *Resolver) brandDefault(brand string) *datastore.BrandDefaultImage {
	if brand == "" {
		return nil
	}
	key := "brand|" + brand
	if cached, found := r.memo.Get(key); found {
		img, _ := cached.(*datastore.BrandDefaultImage)
		return img
	}

	img, err := r.ds.GetBrandDefaultImage(brand)
	if err != nil {
		if !errors.IsNotFound(err) {
			r.logger.Warn("Brand default lookup failed, degrading to next tier",
				"brand", brand, "error", err)
			return nil
		}
		img = nil
	}
	r.memo.SetDefault(key, img)
	return img
}
