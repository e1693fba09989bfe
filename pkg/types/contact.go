package types

// Contact is an address plus the medium by which a user can be
// notified. Medium is a free-form tag ("email", "workEmail",
// "smsPhone", "xmpp"); notification channels claim media by suffix.
type Contact struct {
	Medium  string `json:"medium"`
	Address string `json:"address"`
}

// User owns probes and receives notifications. Resolving a contact to
// its user happens outside this module.
type User struct {
	ID       string    `json:"id"`
	Login    string    `json:"login"`
	Email    string    `json:"email,omitempty"`
	Contacts []Contact `json:"contacts,omitempty"`
}

// Alarm carries the upstream correlation state a notification needs.
// The correlation state machine itself is external; only the fields
// the dispatch engine reads are modeled here.
type Alarm struct {
	ID               int    `json:"id"`
	User             string `json:"user"`
	Monitor          string `json:"monitor"`
	Closed           bool   `json:"closed"`
	NumEvents        int    `json:"num_events"`
	NumNotifications int    `json:"num_notifications"`
}
