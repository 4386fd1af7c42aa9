package model

// SessionSnapshot is what survives of a session between requests: the
// transcript and the collection the session last ingested into.
type SessionSnapshot struct {
	Identity      string     `json:"identity"`
	SessionID     string     `json:"session_id"`
	Transcript    []ChatTurn `json:"transcript"`
	CollectionRef string     `json:"collection_ref,omitempty"`
}
