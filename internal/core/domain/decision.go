package domain

// Reason is the machine-readable code attached to a denied admission.
// The UI maps each code to a localized message.
type Reason string

const (
	ReasonNone                 Reason = ""
	ReasonNotAuthenticated     Reason = "not_authenticated"
	ReasonSpaceNotFound        Reason = "space_not_found"
	ReasonSpaceNotOpen         Reason = "space_not_open"
	ReasonSpaceClosed          Reason = "space_closed"
	ReasonQuotaReached         Reason = "quota_reached"
	ReasonEmailNotAllowed      Reason = "email_not_allowed"
	ReasonEmailBlocked         Reason = "email_blocked"
	ReasonNotSubscribed        Reason = "not_subscribed"
	ReasonNotMember            Reason = "not_member"
	ReasonNotFollowing         Reason = "not_following"
	ReasonVerificationRequired Reason = "verification_required"
	ReasonVerificationExpired  Reason = "verification_expired"
	ReasonVerificationFailed   Reason = "verification_failed"
	ReasonInvalidRule          Reason = "invalid_rule"
)

// Retryable reports whether the user may get a different answer by trying
// again without changing anything (a transient provider failure).
func (r Reason) Retryable() bool {
	return r == ReasonVerificationFailed
}

// NotSatisfiedReason maps a requirement to the denial code used when the
// participant definitively does not meet it.
func NotSatisfiedReason(req Requirement) Reason {
	switch req {
	case RequirementSubscriber:
		return ReasonNotSubscribed
	case RequirementMember:
		return ReasonNotMember
	case RequirementFollower:
		return ReasonNotFollowing
	}
	return ReasonInvalidRule
}

type Decision struct {
	Allowed  bool     `json:"allowed"`
	Reason   Reason   `json:"reason,omitempty"`
	Provider Provider `json:"provider,omitempty"`
	Detail   string   `json:"-"`
}

func Admit() Decision {
	return Decision{Allowed: true}
}

func Deny(reason Reason, detail string) Decision {
	return Decision{Reason: reason, Detail: detail}
}

func DenyProvider(provider Provider, reason Reason, detail string) Decision {
	return Decision{Reason: reason, Provider: provider, Detail: detail}
}

type VerificationStatus int

const (
	VerificationSatisfied VerificationStatus = iota
	VerificationNotSatisfied
	VerificationFailed
)

func (s VerificationStatus) String() string {
	switch s {
	case VerificationSatisfied:
		return "satisfied"
	case VerificationNotSatisfied:
		return "not_satisfied"
	case VerificationFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Verification is the outcome of one provider relationship check.
type Verification struct {
	Status VerificationStatus
	Err    error
}

func Satisfied() Verification {
	return Verification{Status: VerificationSatisfied}
}

func NotSatisfied() Verification {
	return Verification{Status: VerificationNotSatisfied}
}

func VerificationError(err error) Verification {
	return Verification{Status: VerificationFailed, Err: err}
}
