package event

type Type string

const (
	TypeUserRegistered Type = "user.registered"
	TypeSessionIssued  Type = "session.issued"
	TypeSessionRotated Type = "session.rotated"
	TypeSessionRevoked Type = "session.revoked"
	TypeLoginFailed    Type = "login.failed"
	TypeRefreshDenied  Type = "refresh.denied"
)

// Event never carries token values or passwords.
type Event struct {
	ID        string            `json:"id"`
	Type      Type              `json:"type"`
	Payload   map[string]string `json:"payload,omitempty"`
	Timestamp string            `json:"timestamp"`
	ActorID   string            `json:"actor_id,omitempty"` // user the event concerns
}

type Bus interface {
	Publish(e Event)
	Subscribe() (<-chan Event, func()) // Returns channel and unsubscribe function
}
