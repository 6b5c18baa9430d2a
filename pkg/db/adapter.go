package db

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/scalarorg/ismp-relayer/pkg/db/models"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type DatabaseAdapter struct {
	RelayerClient *gorm.DB
}

// NewDatabaseAdapter connects to postgres and migrates the relayer schema.
func NewDatabaseAdapter(databaseUrl string) (*DatabaseAdapter, error) {
	if databaseUrl == "" {
		return nil, fmt.Errorf("database url is not set")
	}
	client, err := NewPostgresClient(databaseUrl)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	return NewDatabaseAdapterWithClient(client)
}

func NewDatabaseAdapterWithClient(client *gorm.DB) (*DatabaseAdapter, error) {
	if err := RunMigrations(client); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	log.Info().Msg("[DatabaseAdapter] [NewDatabaseAdapter] database ready")
	return &DatabaseAdapter{RelayerClient: client}, nil
}

func NewPostgresClient(databaseUrl string) (*gorm.DB, error) {
	return gorm.Open(postgres.Open(databaseUrl), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
}

func RunMigrations(client *gorm.DB) error {
	return client.AutoMigrate(
		&models.TrackedRequest{},
	)
}

func (db *DatabaseAdapter) Close() error {
	sqlDb, err := db.RelayerClient.DB()
	if err != nil {
		return err
	}
	return sqlDb.Close()
}
