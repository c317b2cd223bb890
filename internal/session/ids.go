package session

import "github.com/google/uuid"

// newTestReqID generates a unique TestReqID (tag 112). A UUID is overkill
// for the field's FIX purpose (any unique string the session itself will
// recognize on echo) but avoids a separate counter to persist across
// restarts.
func newTestReqID() string {
	return uuid.NewString()
}
