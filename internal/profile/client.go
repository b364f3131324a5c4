package profile

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"fundscope/internal/model"
)

const defaultTimeout = 10 * time.Second

// ErrNotFound is returned when the profile service does not know a user.
var ErrNotFound = errors.New("profile not found")

// Client resolves user profiles over HTTP.
type Client struct {
	http *resty.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	c := resty.New()
	c.SetTimeout(timeout)
	c.SetBaseURL(baseURL)
	c.SetHeader("Accept", "application/json")
	return &Client{http: c}
}

// ProfileFor fetches GET /users/{id}.
func (c *Client) ProfileFor(ctx context.Context, userID string) (model.UserProfile, error) {
	if userID == "" {
		return model.UserProfile{}, fmt.Errorf("user id is required")
	}
	var out model.UserProfile
	res, err := c.http.R().
		SetContext(ctx).
		SetPathParam("id", userID).
		SetResult(&out).
		Get("/users/{id}")
	if err != nil {
		return model.UserProfile{}, fmt.Errorf("get profile %s: %w", userID, err)
	}
	if res.StatusCode() == http.StatusNotFound {
		return model.UserProfile{}, ErrNotFound
	}
	if res.IsError() {
		return model.UserProfile{}, fmt.Errorf("get profile %s: %d %s", userID, res.StatusCode(), res.Status())
	}
	if out.ID == "" {
		out.ID = userID
	}
	return out, nil
}
