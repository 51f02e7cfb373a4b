package api

import (
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/camvault/camvault/internal/attribution"
	"github.com/camvault/camvault/internal/datastore"
	"github.com/camvault/camvault/internal/errors"
)

// Cache-Control lifetimes for served media. Content and cache files carry
// derived names and never change in place; user uploads can be replaced, so
// clients revalidate sooner.
const (
	assetCacheMaxAge  = 30 * 24 * time.Hour
	uploadCacheMaxAge = 7 * 24 * time.Hour
)

// initImageRoutes registers default-image administration, media serving and
// performance endpoints.
func (c *Controller) initImageRoutes() {
	c.Group.GET("/default-images", c.ListDefaultImages)
	c.Group.POST("/default-images", c.CreateDefaultImage)
	c.Group.POST("/default-images/:id/deactivate", c.DeactivateDefaultImage)
	c.Group.DELETE("/default-images/:id", c.DeleteDefaultImage)
	c.Group.GET("/default-images/compliance", c.AttributionCompliance)

	c.Group.GET("/brand-default-images", c.ListBrandDefaultImages)
	c.Group.POST("/brand-default-images", c.CreateBrandDefaultImage)

	c.Group.GET("/performance", c.PerformanceStats)
	c.Group.POST("/performance/reset", c.ResetPerformanceStats)

	c.Echo.GET("/media/content/:filename", c.ServeContentImage)
	c.Echo.GET("/media/cache/:key", c.ServeCachedImage)
	c.Echo.GET("/media/uploads/:filename", c.ServeUploadedImage)
}

// DefaultImageResponse is a default image record plus its rendered credit.
type DefaultImageResponse struct {
	datastore.DefaultImage
	Attribution string `json:"attribution"`
	Valid       bool   `json:"attribution_valid"`
}

// ListDefaultImages returns default image records with rendered attribution
// and validation state.
func (c *Controller) ListDefaultImages(ctx echo.Context) error {
	activeOnly := ctx.QueryParam("active_only") == "true"

	images, err := c.DS.ListDefaultImages(activeOnly)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to list default images", http.StatusInternalServerError)
	}

	responses := make([]DefaultImageResponse, 0, len(images))
	for i := range images {
		img := &images[i]
		responses = append(responses, DefaultImageResponse{
			DefaultImage: *img,
			Attribution:  attribution.Render(img),
			Valid:        attribution.Validate(img).Valid,
		})
	}
	return ctx.JSON(http.StatusOK, map[string]any{"images": responses, "total": len(responses)})
}

// DefaultImageRequest is the JSON body for manual default-image creation.
type DefaultImageRequest struct {
	Brand             string `json:"brand"`
	Model             string `json:"model"`
	ImageURL          string `json:"image_url"`
	Source            string `json:"source"`
	SourceAttribution string `json:"source_attribution"`
	Author            string `json:"author"`
	AuthorURL         string `json:"author_url"`
	License           string `json:"license"`
	LicenseURL        string `json:"license_url"`
	ImageQuality      int    `json:"image_quality"`
	Overwrite         bool   `json:"overwrite"`
}

// CreateDefaultImage manually stores a curated default image.
func (c *Controller) CreateDefaultImage(ctx echo.Context) error {
	var req DefaultImageRequest
	if err := ctx.Bind(&req); err != nil {
		return c.HandleError(ctx, err, "Invalid request body", http.StatusBadRequest)
	}
	if req.Brand == "" || req.Model == "" || req.ImageURL == "" {
		return c.HandleError(ctx, errors.Validation("brand, model and image_url are required"),
			"Brand, model and image_url are required", http.StatusBadRequest)
	}
	if req.ImageQuality < 0 || req.ImageQuality > 10 {
		return c.HandleError(ctx, errors.Validation("image_quality must be between 1 and 10"),
			"Image quality must be between 1 and 10", http.StatusBadRequest)
	}

	source := req.Source
	if source == "" {
		source = "Manual"
	}
	img := &datastore.DefaultImage{
		Brand:             req.Brand,
		Model:             req.Model,
		ImageURL:          req.ImageURL,
		Source:            source,
		SourceAttribution: req.SourceAttribution,
		Author:            attribution.CleanAuthor(req.Author),
		AuthorURL:         req.AuthorURL,
		License:           req.License,
		LicenseURL:        req.LicenseURL,
		ImageQuality:      req.ImageQuality,
		IsActive:          true,
	}

	if err := c.DS.SaveDefaultImage(img, req.Overwrite); err != nil {
		if errors.IsDuplicate(err) {
			return c.HandleError(ctx, err,
				"An active default image already exists for this brand/model", http.StatusConflict)
		}
		return c.HandleError(ctx, err, "Failed to save default image", http.StatusInternalServerError)
	}
	c.Resolver.InvalidateDefaults()

	return ctx.JSON(http.StatusCreated, DefaultImageResponse{
		DefaultImage: *img,
		Attribution:  attribution.Render(img),
		Valid:        attribution.Validate(img).Valid,
	})
}

// DeactivateDefaultImage soft-deletes a default image record.
func (c *Controller) DeactivateDefaultImage(ctx echo.Context) error {
	id, err := pathID(ctx)
	if err != nil {
		return c.HandleError(ctx, err, "Invalid image ID", http.StatusBadRequest)
	}

	if err := c.DS.DeactivateDefaultImage(id); err != nil {
		if errors.IsNotFound(err) {
			return c.HandleError(ctx, err, "Default image not found", http.StatusNotFound)
		}
		return c.HandleError(ctx, err, "Failed to deactivate default image", http.StatusInternalServerError)
	}
	c.Resolver.InvalidateDefaults()
	return ctx.NoContent(http.StatusNoContent)
}

// DeleteDefaultImage hard-deletes a default image record.
func (c *Controller) DeleteDefaultImage(ctx echo.Context) error {
	id, err := pathID(ctx)
	if err != nil {
		return c.HandleError(ctx, err, "Invalid image ID", http.StatusBadRequest)
	}

	if err := c.DS.DeleteDefaultImage(id); err != nil {
		if errors.IsNotFound(err) {
			return c.HandleError(ctx, err, "Default image not found", http.StatusNotFound)
		}
		return c.HandleError(ctx, err, "Failed to delete default image", http.StatusInternalServerError)
	}
	c.Resolver.InvalidateDefaults()
	return ctx.NoContent(http.StatusNoContent)
}

// AttributionCompliance reports attribution validity across all default
// images.
func (c *Controller) AttributionCompliance(ctx echo.Context) error {
	images, err := c.DS.ListDefaultImages(false)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to list default images", http.StatusInternalServerError)
	}
	return ctx.JSON(http.StatusOK, attribution.BuildReport(images))
}

// ListBrandDefaultImages returns brand-level fallback records.
func (c *Controller) ListBrandDefaultImages(ctx echo.Context) error {
	activeOnly := ctx.QueryParam("active_only") == "true"

	images, err := c.DS.ListBrandDefaultImages(activeOnly)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to list brand defaults", http.StatusInternalServerError)
	}
	return ctx.JSON(http.StatusOK, map[string]any{"images": images, "total": len(images)})
}

// CreateBrandDefaultImage manually stores a brand-level fallback.
func (c *Controller) CreateBrandDefaultImage(ctx echo.Context) error {
	var req DefaultImageRequest
	if err := ctx.Bind(&req); err != nil {
		return c.HandleError(ctx, err, "Invalid request body", http.StatusBadRequest)
	}
	if req.Brand == "" || req.ImageURL == "" {
		return c.HandleError(ctx, errors.Validation("brand and image_url are required"),
			"Brand and image_url are required", http.StatusBadRequest)
	}

	source := req.Source
	if source == "" {
		source = "Manual"
	}
	img := &datastore.BrandDefaultImage{
		Brand:             req.Brand,
		ImageURL:          req.ImageURL,
		Source:            source,
		SourceAttribution: req.SourceAttribution,
		Author:            attribution.CleanAuthor(req.Author),
		AuthorURL:         req.AuthorURL,
		License:           req.License,
		LicenseURL:        req.LicenseURL,
		IsActive:          true,
	}

	if err := c.DS.SaveBrandDefaultImage(img, req.Overwrite); err != nil {
		if errors.IsDuplicate(err) {
			return c.HandleError(ctx, err,
				"An active brand default already exists", http.StatusConflict)
		}
		return c.HandleError(ctx, err, "Failed to save brand default", http.StatusInternalServerError)
	}
	c.Resolver.InvalidateDefaults()
	return ctx.JSON(http.StatusCreated, img)
}

// PerformanceStats returns the telemetry snapshot: counters, grade and
// suggestions.
func (c *Controller) PerformanceStats(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, c.Telemetry.Snapshot())
}

// ResetPerformanceStats discards all telemetry samples.
func (c *Controller) ResetPerformanceStats(ctx echo.Context) error {
	c.Telemetry.Reset()
	return ctx.NoContent(http.StatusNoContent)
}

// ServeContentImage serves a transcoded image from the content directory.
func (c *Controller) ServeContentImage(ctx echo.Context) error {
	return c.serveImage(ctx, c.Settings.Images.ContentDir, assetCacheMaxAge)
}

// ServeCachedImage serves a file from the download cache directory.
func (c *Controller) ServeCachedImage(ctx echo.Context) error {
	return c.serveImage(ctx, c.Settings.Images.CacheDir, assetCacheMaxAge)
}

// ServeUploadedImage serves a user-uploaded camera photo.
func (c *Controller) ServeUploadedImage(ctx echo.Context) error {
	return c.serveImage(ctx, c.Settings.Images.UploadDir, uploadCacheMaxAge)
}

// serveImage serves one file from dir with cache headers and telemetry
// tracking. The path parameter is reduced to its base name so requests
// cannot traverse out of the directory.
func (c *Controller) serveImage(ctx echo.Context, dir string, maxAge time.Duration) error {
	start := time.Now()

	name := ctx.Param("filename")
	if name == "" {
		name = ctx.Param("key")
	}
	name = filepath.Base(name)
	if name == "." || name == string(filepath.Separator) {
		return c.HandleError(ctx, errors.Validation("invalid file name"),
			"Invalid file name", http.StatusBadRequest)
	}

	fullPath := filepath.Join(dir, name)
	info, err := os.Stat(fullPath)
	if err != nil {
		if c.Telemetry != nil {
			c.Telemetry.Record(time.Since(start), false, 0)
		}
		return c.HandleError(ctx, err, "Image not found", http.StatusNotFound)
	}

	if c.Telemetry != nil {
		c.Telemetry.Record(time.Since(start), true, info.Size())
	}
	ctx.Response().Header().Set("Cache-Control",
		"public, max-age="+strconv.Itoa(int(maxAge.Seconds())))
	ctx.Response().Header().Set("X-Cache", "HIT")
	return ctx.File(fullPath)
}
