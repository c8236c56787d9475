package tool

import "fmt"

// Call is a function call requested by the model, correlated by ID.
type Call struct {
	ID   string         `json:"id"`
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

// Response answers a Call. Response carries either a "result" or an "error" key.
type Response struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	Response map[string]any `json:"response"`
}

func successResponse(call Call, result any) Response {
	payload := map[string]any{"success": true}
	if result != nil {
		payload = map[string]any{"result": result}
	}
	return Response{ID: call.ID, Name: call.Name, Response: payload}
}

func errorResponse(call Call, err error) Response {
	return Response{
		ID:   call.ID,
		Name: call.Name,
		Response: map[string]any{
			"error": err.Error(),
			"kind":  string(KindOf(err)),
		},
	}
}

type StatusKind int

const (
	StatusIdle StatusKind = iota
	StatusPending
	StatusSucceeded
	StatusFailed
	StatusCancelled
)

func (k StatusKind) String() string {
	switch k {
	case StatusPending:
		return "pending"
	case StatusSucceeded:
		return "succeeded"
	case StatusFailed:
		return "failed"
	case StatusCancelled:
		return "cancelled"
	default:
		return "idle"
	}
}

func (k StatusKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Status is the state of the most recent tool call.
type Status struct {
	Kind   StatusKind `json:"kind"`
	Name   string     `json:"name,omitempty"`
	Reason string     `json:"reason,omitempty"`
}

func (s Status) String() string {
	switch s.Kind {
	case StatusPending:
		return fmt.Sprintf("pending(%s)", s.Name)
	case StatusSucceeded:
		return fmt.Sprintf("succeeded(%s)", s.Name)
	case StatusFailed:
		return fmt.Sprintf("failed(%s: %s)", s.Name, s.Reason)
	case StatusCancelled:
		return fmt.Sprintf("cancelled(%s)", s.Name)
	default:
		return "idle"
	}
}
