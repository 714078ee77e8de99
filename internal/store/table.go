package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"enrollment-service/internal/models"
)

// TableStore talks to an Azure-Table-style REST endpoint addressed by a SAS
// URL of the form https://host/table?<sas-token>. Optimistic concurrency
// uses the entity ETag captured at read time via If-Match.
type TableStore struct {
	baseURL  string
	sasToken string
	client   *http.Client
}

// NewTableStore creates a table store client. The SAS URL is a credential
// and must be injected; there is no default.
func NewTableStore(sasURL string, timeout time.Duration) (*TableStore, error) {
	if sasURL == "" {
		return nil, fmt.Errorf("table store SAS URL is required")
	}

	parts := strings.SplitN(sasURL, "?", 2)
	if len(parts) != 2 || parts[1] == "" {
		return nil, fmt.Errorf("table store SAS URL has no token")
	}

	return &TableStore{
		baseURL:  parts[0],
		sasToken: parts[1],
		client:   &http.Client{Timeout: timeout},
	}, nil
}

type tableEntity struct {
	ETag            string `json:"odata.etag"`
	PartitionKey    string `json:"PartitionKey"`
	RowKey          string `json:"RowKey"`
	Email           string `json:"email"`
	EnrolledCourses string `json:"enrolledCourses"`
}

type tableQueryResult struct {
	Value []tableEntity `json:"value"`
}

// FindUserByEmail queries the table's lower-cased email attribute.
func (s *TableStore) FindUserByEmail(ctx context.Context, email string) (*models.UserRecord, error) {
	filter := fmt.Sprintf("email eq '%s'", strings.ReplaceAll(strings.ToLower(email), "'", "''"))
	queryURL := fmt.Sprintf("%s?%s&$filter=%s", s.baseURL, s.sasToken, url.QueryEscape(filter))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, queryURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build user query: %w", err)
	}
	req.Header.Set("Accept", "application/json;odata=minimalmetadata")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: query users: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: query users: status %d", ErrUnavailable, resp.StatusCode)
	}

	var result tableQueryResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("%w: decode user query: %v", ErrUnavailable, err)
	}

	if len(result.Value) == 0 {
		return nil, ErrUserNotFound
	}

	entity := result.Value[0]
	return &models.UserRecord{
		PartitionKey:    entity.PartitionKey,
		RowKey:          entity.RowKey,
		Email:           entity.Email,
		EnrolledCourses: entity.EnrolledCourses,
		MatchToken:      entity.ETag,
	}, nil
}

// UpdateEnrollments merges the enrollment attributes into the entity,
// guarded by the ETag from the read. HTTP 412 means another writer got
// there first.
func (s *TableStore) UpdateEnrollments(ctx context.Context, user *models.UserRecord, update EnrollmentUpdate) error {
	entityURL := fmt.Sprintf("%s(PartitionKey='%s',RowKey='%s')?%s",
		s.baseURL, url.PathEscape(user.PartitionKey), url.PathEscape(user.RowKey), s.sasToken)

	body, err := json.Marshal(map[string]interface{}{
		"enrolledCourses":      update.EnrolledCourses,
		"totalEnrolledCourses": update.TotalEnrolledCourses,
		"updatedAt":            update.UpdatedAt.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("marshal enrollment update: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "MERGE", entityURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build enrollment update: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("If-Match", user.MatchToken)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: update user: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode == http.StatusNoContent || (resp.StatusCode >= 200 && resp.StatusCode < 300):
		return nil
	case resp.StatusCode == http.StatusPreconditionFailed:
		return ErrConflict
	case resp.StatusCode == http.StatusNotFound:
		return ErrUserNotFound
	default:
		return fmt.Errorf("%w: update user: status %d", ErrUnavailable, resp.StatusCode)
	}
}
