package database

import (
	"fmt"
	"log"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/pitlane-app/pitlane/app/models"
	"github.com/pitlane-app/pitlane/internal/pkg/config"
)

const maxRetries = 5
const retryDelay = 5 * time.Second

var (
	// DB uses the public (anon) credentials.
	DB *gorm.DB
	// ServiceDB uses the service-role credentials; it is DB when none are configured.
	ServiceDB *gorm.DB
)

func GetDB() *gorm.DB {
	return DB
}

func GetServiceDB() *gorm.DB {
	if ServiceDB == nil {
		return DB
	}
	return ServiceDB
}

// SetupDatabase opens both connections and migrates the billing tables.
func SetupDatabase(cfg config.DatabaseConfig) {
	DB = open(dsn(cfg, cfg.User, cfg.Password))
	if err := DB.AutoMigrate(
		&models.EntitlementState{},
		&models.RefundRequest{},
	); err != nil {
		log.Printf("AutoMigrate failed: %v", err)
	}

	if cfg.HasServiceRole() {
		ServiceDB = open(dsn(cfg, cfg.ServiceUser, cfg.ServicePassword))
		return
	}
	// Without a service role the fallback grant path runs with anon privileges.
	log.Printf("DB_SERVICE_USER not set, entitlement fallback uses the public credentials")
	ServiceDB = DB
}

func dsn(cfg config.DatabaseConfig, user, password string) string {
	// "user:pass@tcp(127.0.0.1:3306)/dbname?charset=utf8mb4&parseTime=True&loc=Local"
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		user,
		password,
		cfg.Host,
		cfg.Port,
		cfg.Name,
	)
}

func open(dsn string) *gorm.DB {
	var (
		db  *gorm.DB
		err error
	)
	for i := 0; i < maxRetries; i++ {
		db, err = gorm.Open(mysql.New(mysql.Config{
			DSN:                       dsn,
			DefaultStringSize:         256,
			DisableDatetimePrecision:  true,
			DontSupportRenameIndex:    true,
			DontSupportRenameColumn:   true,
			SkipInitializeWithVersion: false,
		}), &gorm.Config{})
		if err == nil {
			return db
		}

		log.Printf("Failed to connect to database (try %d/%d): %v", i+1, maxRetries, err)
		if i < maxRetries-1 {
			log.Printf("Retrying in %v...", retryDelay)
			time.Sleep(retryDelay)
		}
	}

	panic(err)
}
