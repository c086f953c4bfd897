package auth

// OAuth scopes understood by the insights service.
const (
	ScopeActivitiesWrite = "activities:write"
	ScopeActivitiesRead  = "activities:read"
	// ScopeInsightsAdmin lets a caller read another user's insights via user_id.
	ScopeInsightsAdmin = "insights:admin"
)
