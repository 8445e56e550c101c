package orders

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	errMissingDatabase = errors.New("database handle is required")
	noOpLogger         = zap.NewNop()

	// ErrSequenceExhausted indicates that every allocation attempt for the
	// day lost its race, or the day's number space is used up. The caller
	// sees a hard failure; nothing is silently swallowed.
	ErrSequenceExhausted = errors.New("orders: sequence exhausted")
)

const (
	numberPrefix   = "T"
	dateLayout     = "20060102"
	sequenceDigits = 4
	sequenceMax    = 9999
	maxAttempts    = 3
)

const (
	opServiceNew = "orders.service.new"
	opNextNumber = "orders.next_number"
)

// ServiceError carries an operation-scoped failure code.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

func newServiceError(operation, reason string, cause error) error {
	return &ServiceError{code: fmt.Sprintf("%s.%s", operation, reason), err: cause}
}

// OrderNumber is one allocated order identifier. Number carries the unique
// index that arbitrates concurrent allocation; rows are immutable once
// created. OrderUID is the external reference handed to downstream systems.
type OrderNumber struct {
	ID               int64  `gorm:"column:id;primaryKey;autoIncrement"`
	Number           string `gorm:"column:number;size:16;not null;uniqueIndex:ux_order_numbers_number"`
	OrderUID         string `gorm:"column:order_uid;size:36;not null"`
	CreatedAtSeconds int64  `gorm:"column:created_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (OrderNumber) TableName() string {
	return "order_numbers"
}

// ServiceConfig describes the dependencies of the order number generator.
type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Service allocates human-readable, date-prefixed order numbers.
type Service struct {
	db     *gorm.DB
	clock  func() time.Time
	logger *zap.Logger
}

// NewService constructs the order number generator.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, "missing_database", errMissingDatabase)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Service{db: cfg.Database, clock: clock, logger: logger}, nil
}

// NextOrderNumber allocates the next order number for today, shaped
// "T" + YYYYMMDD + zero-padded sequence.
//
// Allocation is optimistic: read the highest number under today's prefix,
// propose the successor, and let the unique index reject the insert when a
// concurrent caller got there first. The read-then-write window is allowed
// to race; the bounded retry recomputes from the winner's state. Losing
// every attempt surfaces ErrSequenceExhausted. Numbers for a day may have
// gaps; only uniqueness is guaranteed.
func (s *Service) NextOrderNumber(ctx context.Context) (string, error) {
	prefix := numberPrefix + s.clock().UTC().Format(dateLayout)

	for attempt := 0; attempt < maxAttempts; attempt++ {
		var candidate string
		txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			sequence, err := highestSequence(tx, prefix)
			if err != nil {
				s.logError(opNextNumber, "sequence_scan_failed", err, zap.String("prefix", prefix))
				return newServiceError(opNextNumber, "sequence_scan_failed", err)
			}
			if sequence >= sequenceMax {
				s.logError(opNextNumber, "sequence_space_exhausted", ErrSequenceExhausted, zap.String("prefix", prefix))
				return newServiceError(opNextNumber, "sequence_space_exhausted", ErrSequenceExhausted)
			}

			candidate = fmt.Sprintf("%s%0*d", prefix, sequenceDigits, sequence+1)
			record := OrderNumber{
				Number:           candidate,
				OrderUID:         uuid.NewString(),
				CreatedAtSeconds: s.clock().UTC().Unix(),
			}
			return tx.Create(&record).Error
		})
		if txErr == nil {
			return candidate, nil
		}
		if errors.Is(txErr, gorm.ErrDuplicatedKey) {
			s.loggerOrDefault().Debug("order number collision, retrying",
				zap.String("candidate", candidate),
				zap.Int("attempt", attempt+1))
			continue
		}
		var serviceErr *ServiceError
		if errors.As(txErr, &serviceErr) {
			return "", txErr
		}
		s.logError(opNextNumber, "insert_failed", txErr, zap.String("candidate", candidate))
		return "", newServiceError(opNextNumber, "insert_failed", txErr)
	}

	s.logError(opNextNumber, "retries_exhausted", ErrSequenceExhausted,
		zap.String("prefix", prefix), zap.Int("attempts", maxAttempts))
	return "", newServiceError(opNextNumber, "retries_exhausted", ErrSequenceExhausted)
}

// highestSequence returns the numeric suffix of the highest number under the
// prefix, or zero when today has no allocations yet.
func highestSequence(tx *gorm.DB, prefix string) (int, error) {
	var last OrderNumber
	err := tx.
		Where("number LIKE ?", prefix+"%").
		Order("number DESC").
		Take(&last).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	suffix := last.Number[len(prefix):]
	sequence, err := strconv.Atoi(suffix)
	if err != nil {
		return 0, fmt.Errorf("unparsable sequence suffix %q: %w", suffix, err)
	}
	return sequence, nil
}

func (s *Service) loggerOrDefault() *zap.Logger {
	if s == nil || s.logger == nil {
		return noOpLogger
	}
	return s.logger
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.loggerOrDefault().Error("orders service error", attrs...)
}
