package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type DrinkModel struct {
	ID     int64  `gorm:"primaryKey;autoIncrement"`
	Title  string `gorm:"size:80;uniqueIndex;not null"`
	Recipe string `gorm:"type:text;not null"`
}

func (DrinkModel) TableName() string {
	return "drink"
}

type PostgresStore struct {
	db *gorm.DB
}

var _ Store = (*PostgresStore)(nil)

func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	if dsn == "" {
		return nil, errors.New("postgres dsn is required")
	}
	gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := gdb.WithContext(ctx).AutoMigrate(&DrinkModel{}); err != nil {
		return nil, fmt.Errorf("migrate drink: %w", err)
	}
	return &PostgresStore{db: gdb}, nil
}

func (s *PostgresStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *PostgresStore) List(ctx context.Context) ([]Drink, error) {
	var models []DrinkModel
	if err := s.db.WithContext(ctx).Order("id").Find(&models).Error; err != nil {
		return nil, fmt.Errorf("list drinks: %w", err)
	}
	drinks := make([]Drink, 0, len(models))
	for _, m := range models {
		d, err := m.toDrink()
		if err != nil {
			return nil, err
		}
		drinks = append(drinks, d)
	}
	return drinks, nil
}

func (s *PostgresStore) Get(ctx context.Context, id int64) (Drink, error) {
	var m DrinkModel
	if err := s.db.WithContext(ctx).First(&m, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Drink{}, ErrNotFound
		}
		return Drink{}, fmt.Errorf("get drink: %w", err)
	}
	return m.toDrink()
}

func (s *PostgresStore) Create(ctx context.Context, d Drink) (Drink, error) {
	m, err := fromDrink(d)
	if err != nil {
		return Drink{}, err
	}
	m.ID = 0
	if err := s.db.WithContext(ctx).Create(&m).Error; err != nil {
		return Drink{}, translateGorm("insert drink", err)
	}
	d.ID = m.ID
	return d, nil
}

func (s *PostgresStore) Update(ctx context.Context, d Drink) (Drink, error) {
	m, err := fromDrink(d)
	if err != nil {
		return Drink{}, err
	}
	res := s.db.WithContext(ctx).Model(&DrinkModel{ID: d.ID}).
		Updates(map[string]any{"title": m.Title, "recipe": m.Recipe})
	if res.Error != nil {
		return Drink{}, translateGorm("update drink", res.Error)
	}
	if res.RowsAffected == 0 {
		return Drink{}, ErrNotFound
	}
	return d, nil
}

func (s *PostgresStore) Delete(ctx context.Context, id int64) error {
	res := s.db.WithContext(ctx).Delete(&DrinkModel{}, id)
	if res.Error != nil {
		return fmt.Errorf("delete drink: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Reset(ctx context.Context) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Migrator().DropTable(&DrinkModel{}); err != nil {
			return fmt.Errorf("reset: drop: %w", err)
		}
		if err := tx.AutoMigrate(&DrinkModel{}); err != nil {
			return fmt.Errorf("reset: migrate: %w", err)
		}
		seed, err := fromDrink(Seed())
		if err != nil {
			return err
		}
		if err := tx.Create(&seed).Error; err != nil {
			return fmt.Errorf("reset: seed: %w", err)
		}
		return nil
	})
}

func fromDrink(d Drink) (DrinkModel, error) {
	if err := d.Validate(); err != nil {
		return DrinkModel{}, err
	}
	recipe, err := encodeRecipe(d.Recipe)
	if err != nil {
		return DrinkModel{}, err
	}
	return DrinkModel{ID: d.ID, Title: d.Title, Recipe: recipe}, nil
}

func (m DrinkModel) toDrink() (Drink, error) {
	recipe, err := decodeRecipe(m.Recipe)
	if err != nil {
		return Drink{}, fmt.Errorf("drink %d: %w", m.ID, err)
	}
	return Drink{ID: m.ID, Title: m.Title, Recipe: recipe}, nil
}

func translateGorm(op string, err error) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%s: %w", op, ErrConflict)
	}
	return fmt.Errorf("%s: %w", op, err)
}
