package db

import (
	"fmt"
	"strings"
	"time"

	"signage-server/confs"
	"signage-server/entities"

	"github.com/rs/zerolog"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Connect opens the configured store and migrates the schema.
func Connect(cfg confs.DatabaseConfig, log zerolog.Logger) (Database, error) {
	gormCfg := &gorm.Config{
		TranslateError: true,
		Logger: logger.New(&log, logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
	}

	var (
		gdb *gorm.DB
		err error
	)
	switch cfg.Driver {
	case "sqlite":
		log.Info().Str("path", cfg.Path).Msg("Connecting to sqlite database")
		gdb, err = gorm.Open(sqlite.Open(cfg.Path), gormCfg)
		if err == nil {
			err = limitPool(gdb, 1)
		}
	case "mysql":
		dsn, buildErr := mysqlDSN(cfg)
		if buildErr != nil {
			return nil, buildErr
		}
		gdb, err = gorm.Open(mysql.Open(dsn), gormCfg)
		if err == nil {
			err = limitPool(gdb, 100)
		}
	case "", "postgres":
		dsn, buildErr := postgresDSN(cfg)
		if buildErr != nil {
			return nil, buildErr
		}
		gormCfg.PrepareStmt = true
		gdb, err = gorm.Open(postgres.Open(dsn), gormCfg)
		if err == nil {
			err = limitPool(gdb, 100)
		}
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	log.Info().Msg("Running database migrations...")
	if err := Migrate(gdb); err != nil {
		return nil, err
	}
	log.Info().Msg("Database migrations completed successfully")

	return &GormDatabase{DB: gdb}, nil
}

// Migrate creates or updates every table the engine owns.
func Migrate(gdb *gorm.DB) error {
	if err := gdb.AutoMigrate(&entities.DeviceGroup{}, &entities.Device{}, &entities.Command{}, &entities.PushJob{}); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	for _, model := range []interface{}{&entities.Command{}, &entities.PushJob{}} {
		var maxSeq int64
		if err := gdb.Model(model).Select("COALESCE(MAX(seq), 0)").Scan(&maxSeq).Error; err != nil {
			return fmt.Errorf("failed to read lane sequence: %w", err)
		}
		entities.SeedSeq(maxSeq)
	}
	return nil
}

// OpenMemory returns a migrated private in-memory sqlite store.
func OpenMemory(name string) (Database, error) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_busy_timeout=5000", name)
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Discard, TranslateError: true})
	if err != nil {
		return nil, err
	}
	if err := limitPool(gdb, 1); err != nil {
		return nil, err
	}
	if err := Migrate(gdb); err != nil {
		return nil, err
	}
	return &GormDatabase{DB: gdb}, nil
}

func limitPool(gdb *gorm.DB, maxOpen int) error {
	sqlDB, err := gdb.DB()
	if err != nil {
		return fmt.Errorf("failed to get database instance: %w", err)
	}
	sqlDB.SetMaxIdleConns(min(10, maxOpen))
	sqlDB.SetMaxOpenConns(maxOpen)
	sqlDB.SetConnMaxLifetime(0)
	return nil
}

func postgresDSN(cfg confs.DatabaseConfig) (string, error) {
	if cfg.URL != "" {
		dsn := cfg.URL
		// Hosted databases expect TLS unless the URL says otherwise.
		if !strings.Contains(dsn, "sslmode=") {
			if strings.Contains(dsn, "?") {
				dsn += "&sslmode=require"
			} else {
				dsn += "?sslmode=require"
			}
		}
		return dsn, nil
	}

	if cfg.Host == "" || cfg.Port == "" || cfg.User == "" || cfg.Password == "" || cfg.Name == "" {
		return "", fmt.Errorf("missing required database configuration: DB_URL or (DB_HOST, DB_PORT, DB_USER, DB_PASSWORD, DB_NAME)")
	}

	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "require"
		if cfg.Host == "localhost" || cfg.Host == "127.0.0.1" {
			sslMode = "disable"
		}
	}

	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
		cfg.Host, cfg.User, cfg.Password, cfg.Name, cfg.Port, sslMode), nil
}

func mysqlDSN(cfg confs.DatabaseConfig) (string, error) {
	if cfg.URL != "" {
		return cfg.URL, nil
	}
	if cfg.Host == "" || cfg.User == "" || cfg.Name == "" {
		return "", fmt.Errorf("missing required database configuration: DB_URL or (DB_HOST, DB_USER, DB_NAME)")
	}
	port := cfg.Port
	if port == "" {
		port = "3306"
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		cfg.User, cfg.Password, cfg.Host, port, cfg.Name), nil
}
