package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/killallgit/genesis/pkg/logger"
)

type Model struct {
	Name string `json:"name"`
}

type ModelsResponse struct {
	Models []Model `json:"models"`
}

// ListModels fetches the models the backend can serve
func (c *Client) ListModels(ctx context.Context) ([]Model, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+modelsPath, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create models request: %w", err)
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch models: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &StatusError{Code: resp.StatusCode, Body: errorMessage(data)}
	}

	var modelsResp ModelsResponse
	if err := json.NewDecoder(resp.Body).Decode(&modelsResp); err != nil {
		return nil, fmt.Errorf("failed to decode models response: %w", err)
	}
	if modelsResp.Models == nil {
		modelsResp.Models = []Model{}
	}
	return modelsResp.Models, nil
}

// ModelNames lists the selectable models with the auto alias first
func ModelNames(autoAlias string, models []Model) []string {
	names := make([]string, 0, len(models)+1)
	if autoAlias != "" {
		names = append(names, autoAlias)
	}
	for _, m := range models {
		if m.Name != "" && m.Name != autoAlias {
			names = append(names, m.Name)
		}
	}
	return names
}

// HealthStatus represents the health status of the backend
type HealthStatus struct {
	Available bool
	Error     error
	Models    []Model
}

// CheckHealth reports whether the backend is reachable and which models it lists
func (c *Client) CheckHealth(ctx context.Context) *HealthStatus {
	log := logger.WithComponent("backend_health")
	log.Debug("Checking backend health", "base_url", c.baseURL)

	models, err := c.ListModels(ctx)
	if err != nil {
		log.Error("Backend health check failed", "error", err)
		var statusErr *StatusError
		if errors.As(err, &statusErr) {
			// Reachable, but the model list is unavailable
			return &HealthStatus{Available: true, Error: err, Models: []Model{}}
		}
		return &HealthStatus{
			Available: false,
			Error:     fmt.Errorf("cannot connect to backend at %s: %w", c.baseURL, err),
		}
	}

	log.Debug("Backend health check successful", "model_count", len(models))
	return &HealthStatus{Available: true, Models: models}
}

// CheckHealthWithTimeout performs a health check with a specific timeout
func (c *Client) CheckHealthWithTimeout(timeout time.Duration) *HealthStatus {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return c.CheckHealth(ctx)
}
