package types

// Client message type constants defined exactly as specified
// to ensure compatibility with all dispatch logic across the system
const (
	MessageTypeSubscribe      = "subscribe"
	MessageTypeUnsubscribe    = "unsubscribe"
	MessageTypeCreateSession  = "create_session"
	MessageTypeRequestHistory = "request_history"
	MessageTypeInput          = "input"
	MessageTypePublish        = "publish"
	MessageTypeListSessions   = "list_sessions"
	MessageTypeKillSession    = "kill_session"
)

// Server message type constants
const (
	ServerTypeWelcome              = "welcome"
	ServerTypeSubscribeAck         = "subscribe_ack"
	ServerTypeHistoryPage          = "history_page"
	ServerTypeSessionCreated       = "session_created"
	ServerTypeSessionList          = "session_list"
	ServerTypeEvent                = "event"
	ServerTypeSessionRemoved       = "session_removed"
	ServerTypeOwnershipTransferred = "ownership_transferred"
	ServerTypeError                = "error"
)

// Error codes carried on error frames
const (
	ErrorCodeSessionNotFound  = "session_not_found"
	ErrorCodePermissionDenied = "permission_denied"
	ErrorCodeLogUnavailable   = "log_unavailable"
	ErrorCodeRateLimited      = "rate_limited"
	ErrorCodeInvalidMessage   = "invalid_message"
)

// ClientMessage is the single inbound envelope
// ARCHITECTURAL DISCOVERY: One flat envelope with per-type field subsets keeps
// parsing to a single json.Unmarshal; Validate enforces the subset per type
type ClientMessage struct {
	Type       string                 `json:"type"`
	SessionID  string                 `json:"session_id,omitempty"`
	SessionIDs []string               `json:"session_ids,omitempty"`
	CatchUp    bool                   `json:"catch_up,omitempty"`
	Name       string                 `json:"name,omitempty"`
	RequestID  string                 `json:"request_id,omitempty"`
	BeforeSeq  uint64                 `json:"before_seq,omitempty"`
	Limit      int                    `json:"limit,omitempty"`
	Content    string                 `json:"content,omitempty"`
	Kind       string                 `json:"kind,omitempty"`
	Payload    map[string]interface{} `json:"payload,omitempty"`
}

// Welcome is sent once per connection and carries the server-assigned client id.
type Welcome struct {
	Type     string `json:"type"`
	ClientID string `json:"client_id"`
}

// SubscribeAck answers one session id of a subscribe request
// FUNCTIONAL DISCOVERY: CurrentSeq is captured in the same critical section
// that registers the subscriber, so history (seq <= CurrentSeq) and live
// delivery (seq > CurrentSeq) partition the stream with no gap or overlap
type SubscribeAck struct {
	Type       string   `json:"type"`
	SessionID  string   `json:"session_id"`
	CurrentSeq uint64   `json:"current_seq"`
	History    []*Event `json:"history"`
	HasMore    bool     `json:"has_more"`
}

// HistoryPage answers a request_history message
type HistoryPage struct {
	Type      string   `json:"type"`
	SessionID string   `json:"session_id"`
	Events    []*Event `json:"events"`
	HasMore   bool     `json:"has_more"`
	OldestSeq uint64   `json:"oldest_seq"`
}

// SessionCreated answers a create_session message
type SessionCreated struct {
	Type      string      `json:"type"`
	RequestID string      `json:"request_id"`
	Session   SessionInfo `json:"session"`
}

// SessionList answers a list_sessions message
type SessionList struct {
	Type      string        `json:"type"`
	RequestID string        `json:"request_id"`
	Sessions  []SessionInfo `json:"sessions"`
}

// EventMessage is the live fan-out frame for one appended event
type EventMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	Event     *Event `json:"event"`
}

// SessionRemoved notifies subscribers that a session is gone
type SessionRemoved struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	Reason    string `json:"reason"`
}

// OwnershipTransferred notifies remaining subscribers of a new owner
type OwnershipTransferred struct {
	Type        string `json:"type"`
	SessionID   string `json:"session_id"`
	NewOwnerID  string `json:"new_owner_id"`
	YouAreOwner bool   `json:"you_are_owner"`
}

// ErrorMessage reports a per-request failure without closing the connection
type ErrorMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id,omitempty"`
	Code      string `json:"code"`
	Message   string `json:"message"`
}
