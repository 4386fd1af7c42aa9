package model

import "time"

// ChatTurn is one question with the answer recorded for it.
type ChatTurn struct {
	Question string    `json:"question"`
	Answer   string    `json:"answer"`
	AskedAt  time.Time `json:"asked_at"`
}
