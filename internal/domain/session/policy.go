package session

import (
	"fmt"
	"time"
)

// ResetPolicy decides whether captures should roll over into a fresh
// session instead of continuing the active one's numbering.
type ResetPolicy interface {
	Name() string
	RollOver(active Session, now time.Time) bool
}

// SessionScoped numbers continue for as long as the session lives. Only an
// explicit new session or Reset starts again at 1.
type SessionScoped struct{}

func (SessionScoped) Name() string { return "session" }
func (SessionScoped) RollOver(Session, time.Time) bool { return false }

// Daily starts a new session for the first capture of each calendar day,
// so numbering restarts at 1 without reissuing a number still in use.
type Daily struct {
	Location *time.Location
}

func (Daily) Name() string { return "daily" }

func (d Daily) RollOver(active Session, now time.Time) bool {
	if active.SequenceCounter <= 1 {
		return false
	}
	loc := d.Location
	if loc == nil {
		loc = time.Local
	}
	ly, lm, ld := active.LastUsedAt.In(loc).Date()
	ny, nm, nd := now.In(loc).Date()
	return ly != ny || lm != nm || ld != nd
}

// ParseResetPolicy maps a config value to a policy.
func ParseResetPolicy(name string) (ResetPolicy, error) {
	switch name {
	case "", "session":
		return SessionScoped{}, nil
	case "daily":
		return Daily{}, nil
	default:
		return nil, fmt.Errorf("unknown reset policy %q", name)
	}
}
