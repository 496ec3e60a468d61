package dto

import (
	"memchat/internal/memory"
	"memchat/internal/models"
)

type WriteMemoryRequest struct {
	Content  string                `json:"content" validate:"required"`
	Domain   string                `json:"domain" validate:"required"`
	Metadata *models.WriteMetadata `json:"metadata,omitempty"`
}

type SearchResponse struct {
	Query   string                      `json:"query"`
	Domain  string                      `json:"domain,omitempty"`
	Count   int                         `json:"count"`
	Results []*models.KnowledgeDocument `json:"results"`
}

type ImportResponse struct {
	Domains   int `json:"domains"`
	Documents int `json:"documents"`
}

// FindingsResponse lists every validation problem of a rejected payload.
type FindingsResponse struct {
	Error    string           `json:"error"`
	Findings []memory.Finding `json:"findings"`
}
