package server

import (
	"github.com/mohammad-safakhou/atlast/models"
)

// HTTPError is a generic error envelope returned by the server.
type HTTPError struct {
	Error string `json:"error"`
}

// StartSessionRequest selects the difficulty tier. Empty means GLOBAL_EASY.
type StartSessionRequest struct {
	Difficulty string `json:"difficulty"`
}

type StartSessionResponse struct {
	SessionID  string `json:"session_id"`
	Difficulty string `json:"difficulty"`
	Status     string `json:"status"`
	Message    string `json:"message"`
}

// QuestionResponse is returned with 200 when a riddle is ready and 202 while the buffer refills.
type QuestionResponse struct {
	Status      string              `json:"status"`
	Data        *models.ContentItem `json:"data,omitempty"`
	QueueStatus string              `json:"queue_status,omitempty"`
	Message     string              `json:"message,omitempty"`
	RetryAfter  int                 `json:"retry_after,omitempty"`
}

type VerifyAnswerRequest struct {
	SessionID  string `json:"session_id"`
	UserAnswer string `json:"user_answer"`
}

type LocationSearchResponse struct {
	Query   string   `json:"query"`
	Results []string `json:"results"`
}
