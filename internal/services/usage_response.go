package services

import "time"

// UsageResponse is the wire shape of the usage read endpoint.
type UsageResponse struct {
	Success      bool       `json:"success"`
	MessagesLeft *int       `json:"messagesLeft,omitempty"`
	MessagesUsed *int       `json:"messagesUsed,omitempty"`
	MaxMessages  *int       `json:"maxMessages,omitempty"`
	ResetTime    *time.Time `json:"resetTime"`
	Error        string     `json:"error,omitempty"`
}

func (s UsageStats) Response() UsageResponse {
	left, used, limit := s.MessagesLeft, s.MessagesUsed, s.MaxMessages
	return UsageResponse{
		Success:      true,
		MessagesLeft: &left,
		MessagesUsed: &used,
		MaxMessages:  &limit,
		ResetTime:    s.ResetTime,
	}
}

func UsageErrorResponse(message string) UsageResponse {
	return UsageResponse{Error: message}
}
