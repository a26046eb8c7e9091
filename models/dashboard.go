package models

// DashboardStats holds the counters shown on a user's dashboard.
type DashboardStats struct {
	TotalRequests        int `json:"total_requests"`
	PendingRequests      int `json:"pending_requests"`
	CompletedRequests    int `json:"completed_requests"`
	TotalDonations       int `json:"total_donations"`
	PendingDonations     int `json:"pending_donations"`
	CompletedDonations   int `json:"completed_donations"` // Confirmed donations given by the user
	AvailableDonorsCount int `json:"available_donors_count"`
	UrgentRequestsCount  int `json:"urgent_requests_count"` // Pending high/critical requests
}

// DashboardResponse is the payload for GET /dashboard/stats.
type DashboardResponse struct {
	Stats           DashboardStats         `json:"stats"`
	RecentRequests  []BloodRequestResponse `json:"recent_requests"`
	RecentDonations []DonationResponse     `json:"recent_donations"`
}
