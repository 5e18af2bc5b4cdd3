package domain

import "time"

// Role identifies who authored a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Delivery is the coarse state a UI shows for a turn.
type Delivery string

const (
	DeliveryIdle    Delivery = "idle"
	DeliveryPending Delivery = "pending"
	DeliveryError   Delivery = "error"
)

// StreamingState tracks where a reply is in the orchestrator.
type StreamingState string

const (
	StreamingQueued    StreamingState = "queued"
	StreamingActive    StreamingState = "streaming"
	StreamingCompleted StreamingState = "completed"
	StreamingFallback  StreamingState = "fallback"
	StreamingError     StreamingState = "error"
)

// ConversationTurn is one exchange unit of a chat session.
type ConversationTurn struct {
	ID        string       `json:"id"`
	SessionID string       `json:"session_id"`
	Role      Role         `json:"role"`
	Content   string       `json:"content"`
	CreatedAt time.Time    `json:"created_at"`
	Delivery  Delivery     `json:"delivery,omitempty"`
	Metadata  TurnMetadata `json:"metadata"`
}

// TurnMetadata carries orchestration details alongside the content.
type TurnMetadata struct {
	Hidden            bool           `json:"hidden,omitempty"`
	ForwardedTo       []string       `json:"forwarded_to,omitempty"`
	CouncilMemberID   string         `json:"council_member_id,omitempty"`
	CouncilMemberName string         `json:"council_member_name,omitempty"`
	StreamingState    StreamingState `json:"streaming_state,omitempty"`
	TraceID           string         `json:"trace_id,omitempty"`
	TokensUsed        int            `json:"tokens_used,omitempty"`
	Retrieved         []RagMatch     `json:"retrieved,omitempty"`
	Error             string         `json:"error,omitempty"`
}

// Clone returns a deep copy so callers can't mutate stored slices.
func (t ConversationTurn) Clone() ConversationTurn {
	out := t
	if t.Metadata.ForwardedTo != nil {
		out.Metadata.ForwardedTo = append([]string(nil), t.Metadata.ForwardedTo...)
	}
	if t.Metadata.Retrieved != nil {
		out.Metadata.Retrieved = append([]RagMatch(nil), t.Metadata.Retrieved...)
	}
	return out
}

// RagMatch is a piece of retrieved supporting material.
type RagMatch struct {
	ID      string  `json:"id"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
	Source  string  `json:"source,omitempty"`
}

// StreamRequest is an outbound unit of work for the council. Immutable once built.
type StreamRequest struct {
	Text      string
	SessionID string
	Panel     string
	Metadata  map[string]any
}

// CouncilMember is a named recipient messages can be forwarded to.
type CouncilMember struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Handle    string `json:"handle"`
	Specialty string `json:"specialty,omitempty"`
	Panel     string `json:"panel"`
}

// CouncilReply is the non-streaming council response body.
type CouncilReply struct {
	Reply   string `json:"reply,omitempty"`
	Message string `json:"message,omitempty"`
	Content string `json:"content,omitempty"`
}

// Text returns the first non-empty of reply, message and content, in that
// order, or fallback when none is present.
func (r *CouncilReply) Text(fallback string) string {
	if r == nil {
		return fallback
	}
	for _, candidate := range []string{r.Reply, r.Message, r.Content} {
		if candidate != "" {
			return candidate
		}
	}
	return fallback
}

// QueueEntry pairs a request with the placeholder turn its reply lands in.
type QueueEntry struct {
	Request       StreamRequest
	PlaceholderID string
}

// Completion is the terminal outcome applied to a placeholder.
type Completion struct {
	Content    string
	State      StreamingState
	TraceID    string
	TokensUsed int
	Retrieved  []RagMatch
}

// SearchResult is a vector search hit.
type SearchResult struct {
	Key        string
	Similarity float64
	Data       []byte
	IndexedAt  time.Time
}
