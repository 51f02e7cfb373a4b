// interfaces.go: this code defines the interface for the database operations
package datastore

import (
	"time"

	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/camvault/camvault/internal/conf"
	"github.com/camvault/camvault/internal/errors"
)

// Interface abstracts the underlying database implementation and defines the
// operations used by the image pipeline and the API.
type Interface interface {
	Open() error
	Close() error

	// camera collection
	SaveCamera(camera *Camera) error
	GetCamera(id uint) (*Camera, error)
	UpdateCamera(camera *Camera) error
	DeleteCamera(id uint) error
	ListCameras(limit, offset int) ([]Camera, int64, error)
	CountCamerasByBrand() ([]BrandCount, error)
	CountCamerasByType() ([]TypeCount, error)
	CountCamerasByDecade() ([]DecadeCount, error)

	// model-level default images
	GetDefaultImage(brand, model string) (*DefaultImage, error)
	SaveDefaultImage(image *DefaultImage, overwrite bool) error
	ListDefaultImages(activeOnly bool) ([]DefaultImage, error)
	DeactivateDefaultImage(id uint) error
	DeleteDefaultImage(id uint) error

	// brand-level default images
	GetBrandDefaultImage(brand string) (*BrandDefaultImage, error)
	SaveBrandDefaultImage(image *BrandDefaultImage, overwrite bool) error
	ListBrandDefaultImages(activeOnly bool) ([]BrandDefaultImage, error)
}

// DataStore implements Interface using a GORM database.
type DataStore struct {
	DB *gorm.DB
}

// New creates a new datastore instance based on the provided configuration.
func New(settings *conf.Settings) Interface {
	switch {
	case settings.Database.SQLite.Enabled:
		return &SQLiteStore{Settings: settings}
	case settings.Database.MySQL.Enabled:
		return &MySQLStore{Settings: settings}
	default:
		return nil
	}
}

// createGormLogger configures and returns a new GORM logger instance.
func createGormLogger() gormlogger.Interface {
	return gormlogger.Default.LogMode(gormlogger.Warn)
}

// SaveCamera inserts a new camera record.
func (ds *DataStore) SaveCamera(camera *Camera) error {
	if err := ds.DB.Create(camera).Error; err != nil {
		return dbError(err, "save_camera", "brand", camera.Brand, "model", camera.Model)
	}
	return nil
}

// GetCamera retrieves a camera by ID.
func (ds *DataStore) GetCamera(id uint) (*Camera, error) {
	var camera Camera
	if err := ds.DB.First(&camera, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.NotFound("camera", uintKey(id))
		}
		return nil, dbError(err, "get_camera", "id", id)
	}
	return &camera, nil
}

// UpdateCamera persists changes to an existing camera record.
func (ds *DataStore) UpdateCamera(camera *Camera) error {
	result := ds.DB.Model(&Camera{}).Where("id = ?", camera.ID).Updates(camera)
	if result.Error != nil {
		return dbError(result.Error, "update_camera", "id", camera.ID)
	}
	if result.RowsAffected == 0 {
		return errors.NotFound("camera", uintKey(camera.ID))
	}
	return nil
}

// DeleteCamera removes a camera record.
func (ds *DataStore) DeleteCamera(id uint) error {
	result := ds.DB.Delete(&Camera{}, id)
	if result.Error != nil {
		return dbError(result.Error, "delete_camera", "id", id)
	}
	if result.RowsAffected == 0 {
		return errors.NotFound("camera", uintKey(id))
	}
	return nil
}

// ListCameras returns a page of cameras ordered by creation time, plus the
// total record count for pagination.
func (ds *DataStore) ListCameras(limit, offset int) ([]Camera, int64, error) {
	var total int64
	if err := ds.DB.Model(&Camera{}).Count(&total).Error; err != nil {
		return nil, 0, dbError(err, "count_cameras")
	}

	var cameras []Camera
	query := ds.DB.Order("created_at DESC, id DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}
	if err := query.Find(&cameras).Error; err != nil {
		return nil, 0, dbError(err, "list_cameras", "limit", limit, "offset", offset)
	}
	return cameras, total, nil
}

// CountCamerasByBrand aggregates camera counts per brand.
func (ds *DataStore) CountCamerasByBrand() ([]BrandCount, error) {
	var counts []BrandCount
	err := ds.DB.Model(&Camera{}).
		Select("brand, COUNT(*) as count").
		Group("brand").
		Order("count DESC").
		Scan(&counts).Error
	if err != nil {
		return nil, dbError(err, "count_cameras_by_brand")
	}
	return counts, nil
}

// CountCamerasByDecade aggregates camera counts per manufacturing decade.
// Cameras with an unknown year land in decade 0.
func (ds *DataStore) CountCamerasByDecade() ([]DecadeCount, error) {
	var counts []DecadeCount
	err := ds.DB.Model(&Camera{}).
		Select("(year / 10) * 10 as decade, COUNT(*) as count").
		Group("decade").
		Order("decade").
		Scan(&counts).Error
	if err != nil {
		return nil, dbError(err, "count_cameras_by_decade")
	}
	return counts, nil
}

// CountCamerasByType aggregates camera counts per camera type.
func (ds *DataStore) CountCamerasByType() ([]TypeCount, error) {
	var counts []TypeCount
	err := ds.DB.Model(&Camera{}).
		Select("type, COUNT(*) as count").
		Group("type").
		Order("count DESC").
		Scan(&counts).Error
	if err != nil {
		return nil, dbError(err, "count_cameras_by_type")
	}
	return counts, nil
}

// GetDefaultImage retrieves the active model-level default image for an
// exact (brand, model) pair.
func (ds *DataStore) GetDefaultImage(brand, model string) (*DefaultImage, error) {
	var image DefaultImage
	err := ds.DB.Where("brand = ? AND model = ? AND is_active = ?", brand, model, true).
		First(&image).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.NotFound("default image", brand+"/"+model)
		}
		return nil, dbError(err, "get_default_image", "brand", brand, "model", model)
	}
	return &image, nil
}

// SaveDefaultImage creates a model-level default image record. An existing
// active record for the same (brand, model) is a duplicate unless overwrite
// is set, in which case the existing record is replaced in place.
func (ds *DataStore) SaveDefaultImage(image *DefaultImage, overwrite bool) error {
	var existing DefaultImage
	err := ds.DB.Where("brand = ? AND model = ? AND is_active = ?", image.Brand, image.Model, true).
		First(&existing).Error
	switch {
	case err == nil:
		if !overwrite {
			return errors.Duplicate("default image", image.Brand+"/"+image.Model)
		}
		image.ID = existing.ID
		image.CreatedAt = existing.CreatedAt
		if err := ds.DB.Save(image).Error; err != nil {
			return dbError(err, "overwrite_default_image", "brand", image.Brand, "model", image.Model)
		}
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		if err := ds.DB.Create(image).Error; err != nil {
			return dbError(err, "save_default_image", "brand", image.Brand, "model", image.Model)
		}
		return nil
	default:
		return dbError(err, "lookup_default_image", "brand", image.Brand, "model", image.Model)
	}
}

// ListDefaultImages returns all default image records, optionally only
// active ones.
func (ds *DataStore) ListDefaultImages(activeOnly bool) ([]DefaultImage, error) {
	var images []DefaultImage
	query := ds.DB.Order("brand, model")
	if activeOnly {
		query = query.Where("is_active = ?", true)
	}
	if err := query.Find(&images).Error; err != nil {
		return nil, dbError(err, "list_default_images")
	}
	return images, nil
}

// DeactivateDefaultImage soft-deletes a default image record.
func (ds *DataStore) DeactivateDefaultImage(id uint) error {
	result := ds.DB.Model(&DefaultImage{}).Where("id = ?", id).Update("is_active", false)
	if result.Error != nil {
		return dbError(result.Error, "deactivate_default_image", "id", id)
	}
	if result.RowsAffected == 0 {
		return errors.NotFound("default image", uintKey(id))
	}
	return nil
}

// DeleteDefaultImage hard-deletes a default image record.
func (ds *DataStore) DeleteDefaultImage(id uint) error {
	result := ds.DB.Delete(&DefaultImage{}, id)
	if result.Error != nil {
		return dbError(result.Error, "delete_default_image", "id", id)
	}
	if result.RowsAffected == 0 {
		return errors.NotFound("default image", uintKey(id))
	}
	return nil
}

// GetBrandDefaultImage retrieves the active brand-level fallback image.
func (ds *DataStore) GetBrandDefaultImage(brand string) (*BrandDefaultImage, error) {
	var image BrandDefaultImage
	err := ds.DB.Where("brand = ? AND is_active = ?", brand, true).First(&image).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.NotFound("brand default image", brand)
		}
		return nil, dbError(err, "get_brand_default_image", "brand", brand)
	}
	return &image, nil
}

// SaveBrandDefaultImage creates a brand-level fallback image record with the
// same duplicate/overwrite semantics as SaveDefaultImage.
func (ds *DataStore) SaveBrandDefaultImage(image *BrandDefaultImage, overwrite bool) error {
	var existing BrandDefaultImage
	err := ds.DB.Where("brand = ? AND is_active = ?", image.Brand, true).First(&existing).Error
	switch {
	case err == nil:
		if !overwrite {
			return errors.Duplicate("brand default image", image.Brand)
		}
		image.ID = existing.ID
		image.CreatedAt = existing.CreatedAt
		if err := ds.DB.Save(image).Error; err != nil {
			return dbError(err, "overwrite_brand_default_image", "brand", image.Brand)
		}
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		if err := ds.DB.Create(image).Error; err != nil {
			return dbError(err, "save_brand_default_image", "brand", image.Brand)
		}
		return nil
	default:
		return dbError(err, "lookup_brand_default_image", "brand", image.Brand)
	}
}

// ListBrandDefaultImages returns all brand-level fallback records.
func (ds *DataStore) ListBrandDefaultImages(activeOnly bool) ([]BrandDefaultImage, error) {
	var images []BrandDefaultImage
	query := ds.DB.Order("brand")
	if activeOnly {
		query = query.Where("is_active = ?", true)
	}
	if err := query.Find(&images).Error; err != nil {
		return nil, dbError(err, "list_brand_default_images")
	}
	return images, nil
}

// performAutoMigration runs GORM automigration for all models.
func performAutoMigration(db *gorm.DB, debug bool, dbType, connectionInfo string) error {
	start := time.Now()
	if err := db.AutoMigrate(&Camera{}, &DefaultImage{}, &BrandDefaultImage{}); err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("db_type", dbType).
			Context("operation", "auto_migrate").
			Build()
	}
	if debug {
		getLogger().Debug("Database automigration completed",
			"db_type", dbType,
			"connection", connectionInfo,
			"duration", time.Since(start))
	}
	return nil
}
