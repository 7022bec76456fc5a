package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultTimeout is the default HTTP client timeout for catalog calls
	DefaultTimeout = 10 * time.Second
)

var (
	ErrCourseNotFound     = errors.New("course not found in catalog")
	ErrCatalogUnavailable = errors.New("catalog service unavailable")
)

// Course is the catalog's view of a purchasable course. Prices here are
// authoritative; client-submitted prices are never trusted.
type Course struct {
	ID             uuid.UUID `json:"id"`
	Title          string    `json:"title"`
	Thumbnail      string    `json:"thumbnail"`
	InstructorID   uuid.UUID `json:"instructor_id"`
	InstructorName string    `json:"instructor_name"`
	OriginalPrice  float64   `json:"original_price"`
	// FinalPrice is the list price after any catalog-side sale discount
	FinalPrice      float64 `json:"final_price"`
	DiscountPercent float64 `json:"discount_percent"`
	IsPublished     bool    `json:"is_published"`
}

// Service resolves course details from the catalog
type Service interface {
	GetCourse(ctx context.Context, courseID uuid.UUID) (*Course, error)
	GetCourses(ctx context.Context, courseIDs []uuid.UUID) (map[uuid.UUID]*Course, error)
}

// Client is an HTTP client for the catalog service
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Config holds configuration for the catalog client
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// NewClient creates a new catalog service client
func NewClient(config Config) (*Client, error) {
	if config.BaseURL == "" {
		return nil, errors.New("catalog service base URL is required")
	}
	if config.Timeout == 0 {
		config.Timeout = DefaultTimeout
	}

	return &Client{
		baseURL: strings.TrimSuffix(config.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}, nil
}

type courseResponse struct {
	Success bool    `json:"success"`
	Data    *Course `json:"data"`
}

// GetCourse fetches a single course by ID
func (c *Client) GetCourse(ctx context.Context, courseID uuid.UUID) (*Course, error) {
	url := fmt.Sprintf("%s/api/v1/courses/%s", c.baseURL, courseID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create catalog request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCatalogUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrCourseNotFound
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("catalog returned status %d: %s", resp.StatusCode, string(body))
	}

	var parsed courseResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode catalog response: %w", err)
	}
	if parsed.Data == nil {
		return nil, ErrCourseNotFound
	}

	return parsed.Data, nil
}

// GetCourses fetches multiple courses, keyed by course ID. Courses missing
// from the catalog are absent from the result map.
func (c *Client) GetCourses(ctx context.Context, courseIDs []uuid.UUID) (map[uuid.UUID]*Course, error) {
	courses := make(map[uuid.UUID]*Course, len(courseIDs))
	for _, id := range courseIDs {
		if _, ok := courses[id]; ok {
			continue
		}
		course, err := c.GetCourse(ctx, id)
		if err != nil {
			if errors.Is(err, ErrCourseNotFound) {
				continue
			}
			return nil, err
		}
		courses[id] = course
	}
	return courses, nil
}
