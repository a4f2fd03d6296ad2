package services

import (
	"log"
	"os"
	"path/filepath"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/coldpath/coldpath-backend/models"
)

var DB *gorm.DB

// InitDB opens the sqlite database and migrates every table, including the
// two global enrichment-cache tables.
func InitDB() {
	dbPath := os.Getenv("DATABASE_PATH")
	if dbPath == "" {
		os.MkdirAll("data", os.ModePerm)
		dbPath = filepath.Join("data", "coldpath.db")
	}

	var err error
	DB, err = gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}

	err = DB.AutoMigrate(
		&models.Organization{},
		&models.User{},
		&models.GmailAccount{},
		&models.Campaign{},
		&models.ContactList{},
		&models.Lead{},
		&models.SendLog{},
		&models.EmailCacheRecord{},
		&models.EmailSearchHistory{},
	)
	if err != nil {
		log.Fatalf("failed to auto-migrate database: %v", err)
	}

	log.Printf("SQLite database ready at %s", dbPath)
}
