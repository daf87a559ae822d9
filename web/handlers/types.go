package handlers

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"

	"github.com/stratumhq/stratum/pkg/types"
)

// ErrorResponse is the standard error response format for the API.
type ErrorResponse struct {
	Error   string                 `json:"error"`
	Code    string                 `json:"code"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// TurnRequest is the request format for POST /api/turns.
type TurnRequest struct {
	OwnerID   string        `json:"owner_id"`
	SessionID string        `json:"session_id,omitempty"`
	Content   string        `json:"content"`
	Entities  []string      `json:"entities,omitempty"`
	Signals   types.Signals `json:"signals"`
}

// TurnResponse is the response format for POST /api/turns.
type TurnResponse struct {
	ItemID     string  `json:"item_id"`
	Importance float64 `json:"importance"`
	Tier       string  `json:"tier"`
}

// RedactRequest is the request format for POST /api/redact.
type RedactRequest struct {
	OwnerID     string   `json:"owner_id"`
	ChunkID     string   `json:"chunk_id"`
	Identifiers []string `json:"identifiers,omitempty"`
}

// RedactResponse is the response format for POST /api/redact.
type RedactResponse struct {
	ChunkID  string `json:"chunk_id"`
	Redacted bool   `json:"redacted"`
	Payload  string `json:"payload"`
}

// parseInt parses an integer from a string, returning defaultValue if
// parsing fails.
func parseInt(s string, defaultValue int) int {
	if s == "" {
		return defaultValue
	}
	val, err := strconv.Atoi(s)
	if err != nil {
		return defaultValue
	}
	return val
}

// respondJSON writes a JSON response with the given status code.
func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Headers already sent; log and move on.
		log.Printf("handlers: encode JSON response: %v", err)
	}
}

// respondError writes an error response with the given status code.
func respondError(w http.ResponseWriter, statusCode int, message string, err error) {
	errResp := ErrorResponse{
		Error: message,
		Code:  http.StatusText(statusCode),
	}
	if err != nil {
		errResp.Details = map[string]interface{}{
			"error": err.Error(),
		}
	}
	respondJSON(w, statusCode, errResp)
}
