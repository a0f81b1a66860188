package app

import "errors"

// Failure set for the table state machine. Handlers wrap these with context
// via fmt.Errorf("...: %w", err); the app boundary maps any error to
// ExecTxResult{Code: 1}.
var (
	ErrInsufficientChips    = errors.New("insufficient chips")
	ErrNotYourTurn          = errors.New("not your turn")
	ErrMustCallOrFold       = errors.New("cannot check facing a bet")
	ErrRaiseTooSmall        = errors.New("raise below minimum")
	ErrBettingNotComplete   = errors.New("betting round not complete")
	ErrInvalidPhase         = errors.New("invalid phase for operation")
	ErrInvalidCard          = errors.New("invalid card")
	ErrInvalidSeat          = errors.New("invalid seat")
	ErrInvalidAction        = errors.New("invalid action")
	ErrTimeExpired          = errors.New("action time expired")
	ErrUnauthorizedCallback = errors.New("unauthorized callback")
	ErrUnexpectedCallback   = errors.New("no matching pending request")
	ErrInvalidProof         = errors.New("proof verification failed")
	ErrAwaitingCallback     = errors.New("awaiting confidential computation")
	ErrHandHalted           = errors.New("hand halted")
)
