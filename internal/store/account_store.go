package store

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"cipherlink/internal/domain"
)

const (
	accountRecordsTable = "account_records"

	// maxUpdateAttempts bounds the optimistic retry loop of
	// UpdateAccountRecord.
	maxUpdateAttempts = 3
)

// accountRecordRow is the current account_records shape.
type accountRecordRow struct {
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

	// Added by migration 2. NULL in rows written before it.
	PeerExtraPublicKey          []byte
	PeerExtraPublicKeyTimestamp *int64
}

func (accountRecordRow) TableName() string { return accountRecordsTable }

func rowFromRecord(r *domain.AccountRecord) accountRecordRow {
	row := accountRecordRow{
		ID:                          r.ID,
		UniqueID:                    r.UniqueID,
		RecordVersion:               r.RecordVersion,
		RecipientPhoneNumber:        r.RecipientPhoneNumber.String(),
		MultipleAccountLabel:        r.MultipleAccountLabel,
		ContactID:                   r.ContactID,
		GivenName:                   r.GivenName,
		FamilyName:                  r.FamilyName,
		Nickname:                    r.Nickname,
		FullName:                    r.FullName,
		ContactAvatarHash:           r.ContactAvatarHash,
		PeerExtraPublicKey:          r.PeerExtraPublicKey,
		PeerExtraPublicKeyTimestamp: r.PeerExtraPublicKeyTimestamp,
	}
	if r.RecipientServiceID != "" {
		sid := r.RecipientServiceID.String()
		row.RecipientServiceID = &sid
	}
	return row
}

func (row accountRecordRow) record() domain.AccountRecord {
	rec := domain.AccountRecord{
		ID:                          row.ID,
		UniqueID:                    row.UniqueID,
		RecordVersion:               row.RecordVersion,
		RecipientPhoneNumber:        domain.E164(row.RecipientPhoneNumber),
		MultipleAccountLabel:        row.MultipleAccountLabel,
		ContactID:                   row.ContactID,
		GivenName:                   row.GivenName,
		FamilyName:                  row.FamilyName,
		Nickname:                    row.Nickname,
		FullName:                    row.FullName,
		ContactAvatarHash:           row.ContactAvatarHash,
		PeerExtraPublicKey:          row.PeerExtraPublicKey,
		PeerExtraPublicKeyTimestamp: row.PeerExtraPublicKeyTimestamp,
	}
	if row.RecipientServiceID != nil {
		rec.RecipientServiceID = domain.ServiceID(*row.RecipientServiceID)
	}
	return rec
}

// AccountRecordDB stores account records in SQLite or PostgreSQL.
type AccountRecordDB struct {
	db *gorm.DB
}

// OpenAccountRecordDB opens dsn and migrates it to the latest schema.
// "postgres://" and "postgresql://" DSNs select PostgreSQL; anything else is
// a SQLite path, optionally prefixed with "sqlite://".
func OpenAccountRecordDB(dsn string) (*AccountRecordDB, error) {
	var (
		dialector gorm.Dialector
		isSQLite  bool
	)
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		dialector = postgres.Open(dsn)
	default:
		dialector = sqlite.Open(strings.TrimPrefix(dsn, "sqlite://"))
		isSQLite = true
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.New(jww.TRACE, logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
		TranslateError: true,
	})
	if err != nil {
		return nil, errors.Errorf("unable to open account record database: %+v", err)
	}
	if isSQLite {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, errors.Wrap(err, "configure sqlite pool")
		}
		// SQLite allows a single writer; serialize through one connection.
		sqlDB.SetMaxOpenConns(1)
	}
	return NewAccountRecordDB(db)
}

// NewAccountRecordDB migrates db and wraps it.
func NewAccountRecordDB(db *gorm.DB) (*AccountRecordDB, error) {
	if err := migrate(db, accountRecordMigrations); err != nil {
		return nil, err
	}
	return &AccountRecordDB{db: db}, nil
}

// Close releases the underlying connection pool.
func (s *AccountRecordDB) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// GetAccountRecord looks a record up by service id.
func (s *AccountRecordDB) GetAccountRecord(
	ctx context.Context,
	serviceID domain.ServiceID,
) (domain.AccountRecord, bool, error) {
	var row accountRecordRow
	err := s.db.WithContext(ctx).
		Where("recipient_service_id = ?", serviceID.String()).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.AccountRecord{}, false, nil
	}
	if err != nil {
		return domain.AccountRecord{}, false, errors.Wrapf(err, "get account record %s", serviceID)
	}
	return row.record(), true, nil
}

// SaveAccountRecord inserts record when it has no ID, and otherwise
// overwrites it if nobody else wrote it since it was read. On success
// ID, UniqueID and RecordVersion are updated in place. A lost race returns
// domain.ErrPersistenceConflict.
func (s *AccountRecordDB) SaveAccountRecord(ctx context.Context, record *domain.AccountRecord) error {
	if err := record.ValidatePeerExtraFields(); err != nil {
		return err
	}
	db := s.db.WithContext(ctx)

	if record.ID == 0 {
		row := rowFromRecord(record)
		if row.UniqueID == "" {
			row.UniqueID = uuid.NewString()
		}
		row.RecordVersion = 1
		if err := db.Create(&row).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return errors.Wrapf(domain.ErrPersistenceConflict, "insert %s", record.RecipientServiceID)
			}
			return errors.Wrap(err, "insert account record")
		}
		record.ID, record.UniqueID, record.RecordVersion = row.ID, row.UniqueID, row.RecordVersion
		return nil
	}

	row := rowFromRecord(record)
	row.RecordVersion = record.RecordVersion + 1
	res := db.Model(&accountRecordRow{ID: record.ID}).
		Where("record_version = ?", record.RecordVersion).
		Select("*").
		Omit("id").
		Updates(&row)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
			return errors.Wrapf(domain.ErrPersistenceConflict, "update %d", record.ID)
		}
		return errors.Wrapf(res.Error, "update account record %d", record.ID)
	}
	if res.RowsAffected == 0 {
		return errors.Wrapf(domain.ErrPersistenceConflict,
			"account record %d changed since version %d", record.ID, record.RecordVersion)
	}
	record.RecordVersion = row.RecordVersion
	return nil
}

// UpdateAccountRecord reads the record for serviceID (or starts a new one),
// lets mutate change a copy and saves it with an optimistic version check.
// The whole read-modify-write is retried when another writer got in
// between; after maxUpdateAttempts it gives up with
// domain.ErrPersistenceConflict.
func (s *AccountRecordDB) UpdateAccountRecord(
	ctx context.Context,
	serviceID domain.ServiceID,
	mutate func(record *domain.AccountRecord) bool,
) (domain.AccountRecord, error) {
	for attempt := 1; attempt <= maxUpdateAttempts; attempt++ {
		current, ok, err := s.GetAccountRecord(ctx, serviceID)
		if err != nil {
			return domain.AccountRecord{}, err
		}
		if !ok {
			current = domain.AccountRecord{RecipientServiceID: serviceID}
		}

		next := current.Copy()
		if !mutate(&next) {
			return current, nil
		}
		next.RecipientServiceID = serviceID

		err = s.SaveAccountRecord(ctx, &next)
		if errors.Is(err, domain.ErrPersistenceConflict) {
			jww.DEBUG.Printf("account record %s: attempt %d lost a race: %v", serviceID, attempt, err)
			continue
		}
		if err != nil {
			return domain.AccountRecord{}, err
		}
		return next, nil
	}
	return domain.AccountRecord{}, errors.Wrapf(domain.ErrPersistenceConflict,
		"account record %s: gave up after %d attempts", serviceID, maxUpdateAttempts)
}

// Compile-time assertion that AccountRecordDB implements domain.AccountRecordStore.
var _ domain.AccountRecordStore = (*AccountRecordDB)(nil)
