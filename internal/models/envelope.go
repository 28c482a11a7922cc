package models

// RequestEnvelope is the common prefix of every widget request body.
// Operation-specific fields are decoded separately by each handler.
type RequestEnvelope struct {
	Event       string `json:"event"`
	AccessToken string `json:"accessToken"`
}

// Response is the widget response envelope. Code is omitted on success for
// legacy operations; Message carries user-facing failure text. AccessToken is
// echoed back whenever the caller did not supply one, establishing
// client-side identity continuity. It is a correlation token, not a
// security credential.
type Response struct {
	Code        int         `json:"code"`
	Message     string      `json:"message,omitempty"`
	Data        interface{} `json:"data,omitempty"`
	AccessToken string      `json:"accessToken,omitempty"`
}

// CommentPage is the payload of a paginated top-level read.
type CommentPage struct {
	Comments []*Comment `json:"comments"`
	// Count is the total number of visible top-level comments for the page
	// URL, under the same visibility predicate as the page query.
	Count int64 `json:"count"`
	More  bool  `json:"more"`
}

// AdminCommentPage is the payload of an admin search.
type AdminCommentPage struct {
	Comments []*Comment `json:"comments"`
	Count    int64      `json:"count"`
	Page     int        `json:"page"`
	Per      int        `json:"per"`
}
