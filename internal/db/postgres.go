package db

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/corefin/metrichub/internal/logger"
	"github.com/corefin/metrichub/internal/types"
	"github.com/corefin/metrichub/internal/utils"
)

type PostgresService struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewPostgresService(log *logger.Logger) (*PostgresService, error) {
	serviceLog := log.With("service", "PostgresService")

	postgresHost := utils.GetEnv("POSTGRES_HOST", "localhost", log)
	postgresPort := utils.GetEnv("POSTGRES_PORT", "5432", log)
	postgresUser := utils.GetEnv("POSTGRES_USER", "postgres", log)
	postgresPassword := utils.GetEnv("POSTGRES_PASSWORD", "", log)
	postgresName := utils.GetEnv("POSTGRES_NAME", "metrichub", log)

	dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", postgresUser, postgresPassword, postgresHost, postgresPort, postgresName)

	log.Info("Connecting to Postgres...")
	gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		log.Error("Failed to connect to Postgres", "error", err)
		return nil, fmt.Errorf("failed to connect to Postgres: %w", err)
	}

	if err := gdb.Exec(`CREATE EXTENSION IF NOT EXISTS "uuid-ossp";`).Error; err != nil {
		log.Error("Failed to enable uuid-ossp extension", "error", err)
		return nil, fmt.Errorf("failed to enable uuid-ossp extension: %w", err)
	}

	return &PostgresService{db: gdb, log: serviceLog}, nil
}

func (s *PostgresService) AutoMigrateAll() error {
	s.log.Info("Auto migrating postgres tables...")
	err := s.db.AutoMigrate(
		&types.Metric{},
		&types.MetricVersion{},
		&types.MetricCaliber{},
		&types.MetricVersionCaliber{},
		&types.MetricValue{},
		&types.DimCombo{},
		&types.DimCompany{},
		&types.DimProduct{},
		&types.DimChannel{},
		&types.SourceValue{},
		&types.TaskRun{},
	)
	if err != nil {
		s.log.Error("Auto migration failed for postgres tables", "error", err)
		return err
	}
	s.log.Info("Configuring foreign key relationships for postgres tables...")
	for _, stmt := range []string{
		`ALTER TABLE "metric_version"
		 ADD CONSTRAINT "fk_metric_version_metric_id"
		 FOREIGN KEY ("metric_id") REFERENCES "metric"("id") ON DELETE CASCADE`,
		`ALTER TABLE "metric_version_caliber"
		 ADD CONSTRAINT "fk_version_caliber_version_id"
		 FOREIGN KEY ("metric_version_id") REFERENCES "metric_version"("id") ON DELETE CASCADE`,
		`ALTER TABLE "metric_version_caliber"
		 ADD CONSTRAINT "fk_version_caliber_caliber_id"
		 FOREIGN KEY ("caliber_id") REFERENCES "metric_caliber"("id") ON DELETE SET NULL`,
		`ALTER TABLE "metric_value"
		 ADD CONSTRAINT "fk_metric_value_binding_id"
		 FOREIGN KEY ("metric_version_caliber_id") REFERENCES "metric_version_caliber"("id") ON DELETE CASCADE`,
	} {
		if err := s.db.Exec(stmt).Error; err != nil {
			s.log.Warn("Foreign key constraint apply failed (may already exist)", "error", err)
		}
	}
	return nil
}

func (s *PostgresService) DB() *gorm.DB {
	return s.db
}
