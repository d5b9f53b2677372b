package dto

import "github.com/civicdesk/urbanism-api/internal/models"

// DashboardStats aggregates counters shown on the admin and clerk dashboards.
type DashboardStats struct {
	OpenTotal      int                          `json:"open_total"`
	Unassigned     int                          `json:"unassigned"`
	ByStatus       map[models.RequestStatus]int `json:"by_status"`
	ByType         map[models.RequestType]int   `json:"by_type"`
	ClerkWorkloads []models.ClerkWorkload       `json:"clerk_workloads"`
}

// ExportResponse describes a generated queue export download.
type ExportResponse struct {
	URL       string `json:"url"`
	Format    string `json:"format"`
	ExpiresAt string `json:"expires_at"`
}
