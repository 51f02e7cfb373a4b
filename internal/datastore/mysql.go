package datastore

import (
	"fmt"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/camvault/camvault/internal/conf"
)

// MySQLStore implements Interface for MySQL
type MySQLStore struct {
	DataStore
	Settings *conf.Settings
}

// Open sets up the MySQL database connection and runs automigration.
func (store *MySQLStore) Open() error {
	settings := store.Settings.Database.MySQL
	if settings.Database == "" || settings.Host == "" {
		return fmt.Errorf("mysql database and host must be configured")
	}

	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		settings.Username, settings.Password,
		settings.Host, settings.Port,
		settings.Database)

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{Logger: createGormLogger()})
	if err != nil {
		getLogger().Error("Failed to open MySQL database",
			"host", settings.Host,
			"port", settings.Port,
			"database", settings.Database,
			"error", err)
		return fmt.Errorf("failed to open MySQL database: %w", err)
	}

	store.DB = db
	return performAutoMigration(db, store.Settings.Debug, "MySQL",
		fmt.Sprintf("%s:%s/%s", settings.Host, settings.Port, settings.Database))
}

// Close releases the underlying database handle.
func (store *MySQLStore) Close() error {
	if store.DB == nil {
		return nil
	}
	sqlDB, err := store.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
