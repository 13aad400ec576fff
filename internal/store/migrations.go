package store

import (
	"time"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
	"gorm.io/gorm"
)

// ErrSchemaTooNew is returned when the database was migrated by a newer
// build. Migrations only move forward.
var ErrSchemaTooNew = errors.New("database schema is newer than this build")

// migration is one forward-only schema step. Versions are dense and start
// at 1; a migration never changes once released.
type migration struct {
	version int
	name    string
	up      func(tx *gorm.DB) error
}

// schemaMigration records an applied migration.
type schemaMigration struct {
	Version   int    `gorm:"primaryKey;autoIncrement:false"`
	Name      string `gorm:"not null"`
	AppliedAt int64  `gorm:"not null"`
}

func (schemaMigration) TableName() string { return "schema_migrations" }

// accountRecordRowV1 is the account_records shape before peer extra keys.
type accountRecordRowV1 struct {
	ID                   int64   `gorm:"primaryKey;autoIncrement"`
	UniqueID             string  `gorm:"uniqueIndex;not null"`
	RecordVersion        int64   `gorm:"not null;default:1"`
	RecipientPhoneNumber string  `gorm:"index"`
	RecipientServiceID   *string `gorm:"uniqueIndex"`
	MultipleAccountLabel string
	ContactID            string
	GivenName            string
	FamilyName           string
	Nickname             string
	FullName             string
	ContactAvatarHash    []byte
}

func (accountRecordRowV1) TableName() string { return accountRecordsTable }

// accountRecordMigrations is the ordered schema history of account_records.
var accountRecordMigrations = []migration{
	{
		version: 1,
		name:    "create_account_records",
		up: func(tx *gorm.DB) error {
			return tx.Migrator().CreateTable(&accountRecordRowV1{})
		},
	},
	{
		version: 2,
		name:    "add_peer_extra_public_key",
		up: func(tx *gorm.DB) error {
			m := tx.Migrator()
			for _, field := range []string{"PeerExtraPublicKey", "PeerExtraPublicKeyTimestamp"} {
				if m.HasColumn(&accountRecordRow{}, field) {
					continue
				}
				if err := m.AddColumn(&accountRecordRow{}, field); err != nil {
					return errors.Wrapf(err, "add column %s", field)
				}
			}
			return nil
		},
	},
}

// migrate applies every migration in ms newer than the recorded version.
// Each step runs in its own transaction together with its bookkeeping row.
func migrate(db *gorm.DB, ms []migration) error {
	if err := db.AutoMigrate(&schemaMigration{}); err != nil {
		return errors.Wrap(err, "create schema_migrations")
	}

	var current int
	if err := db.Model(&schemaMigration{}).
		Select("COALESCE(MAX(version), 0)").
		Scan(&current).Error; err != nil {
		return errors.Wrap(err, "read schema version")
	}
	latest := ms[len(ms)-1].version
	if current > latest {
		return errors.Wrapf(ErrSchemaTooNew, "have %d, know up to %d", current, latest)
	}

	for _, m := range ms {
		if m.version <= current {
			continue
		}
		err := db.Transaction(func(tx *gorm.DB) error {
			if err := m.up(tx); err != nil {
				return err
			}
			return tx.Create(&schemaMigration{
				Version:   m.version,
				Name:      m.name,
				AppliedAt: time.Now().UnixMilli(),
			}).Error
		})
		if err != nil {
			return errors.Wrapf(err, "migration %04d_%s", m.version, m.name)
		}
		jww.INFO.Printf("applied migration %04d_%s", m.version, m.name)
	}
	return nil
}
