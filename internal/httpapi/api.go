package httpapi

import (
	"encoding/json"

	"swaggerd/internal/domain"
)

type HealthResponse struct {
	Status string `json:"status"`
}

type ListServersResponse struct {
	Servers []string `json:"servers"`
}

type ListToolsResponse struct {
	Tools []domain.ToolInfo `json:"tools"`
}

// AddServerRequest mirrors domain.UpstreamConfig; validation tags live on
// the domain type.
type AddServerRequest = domain.UpstreamConfig

type AddServerResponse struct {
	Added string `json:"added"`
	Tools int    `json:"tools"`
}

type ExportServerResponse = json.RawMessage

type ToolEnabledRequest struct {
	Prefix  string `json:"prefix" validate:"required"`
	Name    string `json:"name" validate:"required"`
	Enabled bool   `json:"enabled"`
}

type ToolEnabledResponse struct {
	Tool    string `json:"tool"`
	Enabled bool   `json:"enabled"`
}

type SearchEnabledRequest struct {
	Prefix  string `json:"prefix" validate:"required"`
	Enabled bool   `json:"enabled"`
}

type SearchEnabledResponse struct {
	Prefix  string `json:"prefix"`
	Enabled bool   `json:"enabled"`
}

type SearchResponse struct {
	Results []domain.SearchResult `json:"results"`
}
