package rules

// ReasonCode is the closed enumeration of verdict reasons surfaced to
// clients. New codes must not be invented outside this file.
type ReasonCode string

const (
	ReasonOK ReasonCode = "OK"

	// Structural failures.
	ReasonInvalidInput      ReasonCode = "INVALID_INPUT"
	ReasonInvalidActionType ReasonCode = "INVALID_ACTION_TYPE"
	ReasonInvalidUnitID     ReasonCode = "INVALID_UNIT_ID"
	ReasonInvalidPosition   ReasonCode = "INVALID_POSITION"
	ReasonInvalidAbilityID  ReasonCode = "INVALID_ABILITY_ID"

	// Turn-state failures.
	ReasonGameNotActive    ReasonCode = "GAME_NOT_ACTIVE"
	ReasonWrongPhase       ReasonCode = "WRONG_PHASE"
	ReasonAlreadySubmitted ReasonCode = "ALREADY_SUBMITTED"
	ReasonTimeExpired      ReasonCode = "TIME_EXPIRED"

	// Authorization and action-specific failures.
	ReasonUnitNotFound         ReasonCode = "UNIT_NOT_FOUND"
	ReasonUnitNotOwned         ReasonCode = "UNIT_NOT_OWNED"
	ReasonUnitDestroyed        ReasonCode = "UNIT_DESTROYED"
	ReasonUnitAlreadyActed     ReasonCode = "UNIT_ALREADY_ACTED"
	ReasonOutOfBounds          ReasonCode = "OUT_OF_BOUNDS"
	ReasonRangeExceeded        ReasonCode = "RANGE_EXCEEDED"
	ReasonPositionOccupied     ReasonCode = "POSITION_OCCUPIED"
	ReasonPathBlocked          ReasonCode = "PATH_BLOCKED"
	ReasonAbilityNotFound      ReasonCode = "ABILITY_NOT_FOUND"
	ReasonAbilityNotAvailable  ReasonCode = "ABILITY_NOT_AVAILABLE"
	ReasonInsufficientAura     ReasonCode = "INSUFFICIENT_AURA"
	ReasonTargetPosRequired    ReasonCode = "TARGET_POSITION_REQUIRED"
	ReasonTargetUnitRequired   ReasonCode = "TARGET_UNIT_REQUIRED"
	ReasonTargetOutOfRange     ReasonCode = "TARGET_OUT_OF_RANGE"
	ReasonCannotTargetFriendly ReasonCode = "CANNOT_TARGET_FRIENDLY"
	ReasonCannotTargetEnemy    ReasonCode = "CANNOT_TARGET_ENEMY"

	// Security. Deliberately generic: the concrete violation kind is logged
	// server-side only and never revealed to the submitting client.
	ReasonSecurityViolation ReasonCode = "SECURITY_VIOLATION"

	// System failures.
	ReasonMatchNotFound ReasonCode = "MATCH_NOT_FOUND"
	ReasonNotInMatch    ReasonCode = "NOT_IN_MATCH"
	ReasonInternalError ReasonCode = "INTERNAL_ERROR"
)

// Verdict is the outcome of validating one proposed action. Verdicts are
// never persisted; they are returned to the submitting client and logged.
type Verdict struct {
	Accepted bool
	Reason   ReasonCode
	Message  string
}

// Accept returns an accepting verdict.
func Accept() Verdict {
	return Verdict{Accepted: true, Reason: ReasonOK}
}

// Reject returns a rejecting verdict with the given reason and message.
func Reject(reason ReasonCode, message string) Verdict {
	return Verdict{Accepted: false, Reason: reason, Message: message}
}
