package session_api_client

const (
	// API Endpoints
	SessionStatusEndpoint   = "/api/sessions/%s/status"
	CurrentQuestionEndpoint = "/api/sessions/%s/question"
	SubmitAnswerEndpoint    = "/api/sessions/%s/answers"
	SessionStatsEndpoint    = "/api/sessions/%s/stats"

	// Headers
	AuthorizationHeader = "Authorization"
	APIKeyHeader        = "X-API-Key"
)
