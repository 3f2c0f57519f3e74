package common

// Shared constants to avoid magic strings/numbers across packages.

// HTTP headers and content types
const (
	ContentTypeJSON        = "application/json"
	ContentTypeNDJSON      = "application/x-ndjson"
	ContentTypeOctetStream = "application/octet-stream"
)

// API paths
const (
	PathHealth = "/health"
	PathJobs   = "/api/jobs"
)

// Defaults and limits
const (
	DefaultChunkSize      = 2 * 1024 * 1024
	DefaultMaxUploadBytes = 100 * 1024 * 1024
	DefaultUploadAttempts = 3
	SQLiteBusyTimeoutMS   = 5000
)

// FeedbackRounds is the number of coaching passes the service runs per job.
const FeedbackRounds = 5

// Deck MIME types
const (
	MimePDF  = "application/pdf"
	MimePPT  = "application/vnd.ms-powerpoint"
	MimePPTX = "application/vnd.openxmlformats-officedocument.presentationml.presentation"
	MimeZip  = "application/zip"
)
