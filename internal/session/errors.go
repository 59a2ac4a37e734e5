package session

import (
	"errors"
	"fmt"
)

// Operation failures. Every one is a hard stop: the whole entry point
// aborts with no partial state mutation. The strings are the reasons
// surfaced to callers.
var (
	ErrUnauthorized   = errors.New("Missing required authority")
	ErrMaintenance    = errors.New("Maintenance is active")
	ErrCooldownActive = errors.New("Cannot regenerate your game yet")
	ErrNoActiveGame   = errors.New("You have no running game")
	ErrUnknownUser    = errors.New("No user found")
	ErrOwnership      = errors.New("You do not own all assets")
	ErrMintUnknown    = errors.New("Asset mint number not found")
	ErrNoRewardTier   = errors.New("No reward found")
)

// IncompleteSetError is returned by Complete when the collected count is
// below the required threshold.
type IncompleteSetError struct {
	Required int
	Got      int
}

func (e *IncompleteSetError) Error() string {
	return fmt.Sprintf("You need to collect at least %d mints, got %d", e.Required, e.Got)
}
