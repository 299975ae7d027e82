package cashsession

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SessionStatus is the drawer lifecycle. Closed is terminal: corrections
// happen in a new session, never by editing a closed one.
type SessionStatus string

const (
	SessionOpen   SessionStatus = "open"
	SessionClosed SessionStatus = "closed"
)

// Session is one cash-drawer shift. Once closed every field is read-only.
type Session struct {
	ID            uuid.UUID     `json:"id"`
	Status        SessionStatus `json:"status"`
	OpeningFloat  float64       `json:"opening_float"`
	ClosingAmount float64       `json:"closing_amount"`
	OpenedBy      string        `json:"opened_by"`
	ClosedBy      string        `json:"closed_by,omitempty"`
	OpenedAt      time.Time     `json:"opened_at"`
	ClosedAt      *time.Time    `json:"closed_at,omitempty"`
	Declarations  []Declaration `json:"declarations,omitempty"`
}

// Declaration is the operator's counted amount for one payment method.
// Re-declaring the same method overwrites the previous count.
type Declaration struct {
	SessionID     uuid.UUID `json:"session_id"`
	MethodID      uuid.UUID `json:"method_id"`
	Amount        float64   `json:"amount"`
	Justification string    `json:"justification,omitempty"`
	DeclaredAt    time.Time `json:"declared_at"`
}

// CloseViolation is one unmet closing requirement.
type CloseViolation struct {
	MethodID uuid.UUID `json:"method_id"`
	Method   string    `json:"method"`
	Message  string    `json:"message"`
}

// CloseBlockedError carries the full checklist of closing violations so the
// operator sees everything at once instead of fixing them one by one.
type CloseBlockedError struct {
	Violations []CloseViolation
}

func (e *CloseBlockedError) Error() string {
	msgs := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		msgs = append(msgs, fmt.Sprintf("%s: %s", v.Method, v.Message))
	}
	return "session cannot close: " + strings.Join(msgs, "; ")
}

// minimum justification length when declared and theoretical diverge
const minJustificationLen = 10

// variances at or above this require a justification
const varianceThreshold = "0.01"
