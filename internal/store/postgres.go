package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"enrollment-service/internal/models"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// PostgresStore keeps user records in a users table with a version column
// as the optimistic-concurrency token.
type PostgresStore struct {
	db *sqlx.DB
}

// NewPostgresStore connects to the database and verifies it is reachable.
func NewPostgresStore(databaseURL string) (*PostgresStore, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

// Close closes the database connection
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

type userRow struct {
	PartitionKey    string `db:"partition_key"`
	RowKey          string `db:"row_key"`
	Email           string `db:"email"`
	EnrolledCourses string `db:"enrolled_courses"`
	Version         int64  `db:"version"`
}

// FindUserByEmail retrieves a user by lower-cased email.
func (s *PostgresStore) FindUserByEmail(ctx context.Context, email string) (*models.UserRecord, error) {
	var row userRow
	err := s.db.GetContext(ctx, &row,
		`SELECT partition_key, row_key, email, COALESCE(enrolled_courses, '') AS enrolled_courses, version
		 FROM users WHERE email = LOWER($1)`, email)
	if err == sql.ErrNoRows {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: query users: %v", ErrUnavailable, err)
	}

	return &models.UserRecord{
		PartitionKey:    row.PartitionKey,
		RowKey:          row.RowKey,
		Email:           row.Email,
		EnrolledCourses: row.EnrolledCourses,
		MatchToken:      strconv.FormatInt(row.Version, 10),
	}, nil
}

// UpdateEnrollments writes the enrollment attributes only when the version
// still matches the one captured at read time.
func (s *PostgresStore) UpdateEnrollments(ctx context.Context, user *models.UserRecord, update EnrollmentUpdate) error {
	version, err := strconv.ParseInt(user.MatchToken, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid match token %q: %w", user.MatchToken, err)
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE users
		 SET enrolled_courses = $1, total_enrolled_courses = $2, updated_at = $3, version = version + 1
		 WHERE partition_key = $4 AND row_key = $5 AND version = $6`,
		update.EnrolledCourses, update.TotalEnrolledCourses, update.UpdatedAt,
		user.PartitionKey, user.RowKey, version)
	if err != nil {
		return fmt.Errorf("%w: update user: %v", ErrUnavailable, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: update user: %v", ErrUnavailable, err)
	}
	if affected == 0 {
		return ErrConflict
	}
	return nil
}
