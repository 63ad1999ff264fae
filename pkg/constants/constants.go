// Package constants defines application-wide constants for timeouts, limits, and call defaults.
package constants

import "time"

// Time-related constants
const (
	// DefaultTimeout is the default timeout for most operations
	DefaultTimeout = 30 * time.Second

	// WebSocketPingInterval is the interval for WebSocket ping/pong
	WebSocketPingInterval = 54 * time.Second

	// WebSocketPongWait is how long a mailbox subscriber may stay silent
	WebSocketPongWait = 60 * time.Second

	// WebSocketWriteWait bounds a single frame write
	WebSocketWriteWait = 10 * time.Second

	// GracefulShutdownTimeout is the timeout for graceful server shutdown
	GracefulShutdownTimeout = 30 * time.Second
)

// Audit log constants
const (
	// AuditLogRetention is how long an appointment's audit trail is kept
	AuditLogRetention = 90 * 24 * time.Hour

	// AuditMaxEvents caps the events kept per appointment
	AuditMaxEvents = 200
)

// JWT-related constants
const (
	// AccessTokenExpiry is the default access token lifetime
	AccessTokenExpiry = 15 * time.Minute
)

// Database connection constants
const (
	// MaxConnLifetime is the maximum lifetime of a database connection
	MaxConnLifetime = 1 * time.Hour

	// MaxConnIdleTime is the maximum idle time for a database connection
	MaxConnIdleTime = 30 * time.Minute

	// HealthCheckPeriod is the interval between database health checks
	HealthCheckPeriod = 1 * time.Minute

	// DBConnectRetries is how many times startup retries the database before degrading
	DBConnectRetries = 3
)

// WebSocket limits
const (
	// WebSocketMaxConnections caps concurrent mailbox subscribers per instance
	WebSocketMaxConnections = 1000

	// WebSocketSendBuffer is the per-client outbound frame queue
	WebSocketSendBuffer = 256

	// WebSocketMaxMessageSize caps inbound frames; clients only send control frames
	WebSocketMaxMessageSize = 4096
)

// Call session constants
const (
	// ReconnectPromptDelay is the pause between entering the error state and asking to reconnect
	ReconnectPromptDelay = 1 * time.Second

	// TimerTick is the call timer resolution
	TimerTick = 1 * time.Second

	// SampleInterval is the frame pacing of synthetic media
	SampleInterval = 33 * time.Millisecond

	// MaxDescriptorBytes caps a single serialized negotiation descriptor
	MaxDescriptorBytes = 64 * 1024

	// MaxChatMessageLength caps one in-call chat line
	MaxChatMessageLength = 2000
)

// Dashboard paths per role
const (
	DoctorDashboardPath  = "/doctor-dashboard"
	PatientDashboardPath = "/patient-dashboard"
)

// DefaultSTUNServers are the public relay-discovery servers handed to every peer connection
var DefaultSTUNServers = []string{
	"stun:stun.l.google.com:19302",
	"stun:stun1.l.google.com:19302",
	"stun:stun2.l.google.com:19302",
	"stun:stun.ekiga.net",
	"stun:stun.ideasip.com",
	"stun:stun.schlund.de",
	"stun:stun.stunprotocol.org:3478",
	"stun:stun.voiparound.com",
	"stun:stun.voipbuster.com",
	"stun:stun.voipstunt.com",
	"stun:stun.voxgratia.org",
}

// Language model defaults
const (
	DefaultLLMModel       = "llama4-8b"
	DefaultLLMBaseURL     = "https://api.groq.com/openai/v1"
	DefaultLLMTemperature = 0.5
	DefaultLLMMaxTokens   = 1024
	LLMRequestTimeout     = 20 * time.Second

	// consecutive model failures before answers go straight to the canned tables
	LLMBreakerThreshold = 3
	LLMBreakerCooldown  = 30 * time.Second
)
