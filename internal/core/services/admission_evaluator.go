package services

import (
	"context"
	"errors"

	"spacegate/internal/core/domain"
	"spacegate/internal/core/ports"
	"spacegate/pkg/tracing"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

type AdmissionConfig struct {
	// EnforceBlocklistWithoutAllowlist makes an email rule with only a block
	// list reject blocked addresses. When false such a rule is inert, which
	// is the historical behaviour.
	EnforceBlocklistWithoutAllowlist bool
}

type admissionEvaluator struct {
	vault     ports.TokenVault
	verifiers map[domain.Provider]ports.ProviderVerifier
	cfg       AdmissionConfig
	logger    *zap.SugaredLogger
}

func NewAdmissionEvaluator(
	vault ports.TokenVault,
	verifiers []ports.ProviderVerifier,
	cfg AdmissionConfig,
	logger *zap.SugaredLogger,
) ports.AdmissionEvaluator {
	byProvider := make(map[domain.Provider]ports.ProviderVerifier, len(verifiers))
	for _, v := range verifiers {
		byProvider[v.Provider()] = v
	}
	return &admissionEvaluator{
		vault:     vault,
		verifiers: byProvider,
		cfg:       cfg,
		logger:    logger,
	}
}

// Evaluate runs the configured checks in order (email, YouTube, Twitch) and
// stops at the first denial. Nothing is retried.
func (e *admissionEvaluator) Evaluate(ctx context.Context, rules *domain.GatekeeperRuleSet, applicant domain.Applicant, ownerID domain.UserID) domain.Decision {
	ctx, span := tracing.StartSpan(ctx, "admission.evaluate")
	defer span.End()

	decision := e.evaluate(ctx, rules, applicant, ownerID)

	span.SetAttributes(
		attribute.Bool("admission.allowed", decision.Allowed),
		tracing.ReasonKey.String(string(decision.Reason)),
	)
	if !decision.Allowed {
		e.logger.Infow("admission denied",
			"user_id", applicant.UserID,
			"reason", decision.Reason,
			"provider", decision.Provider,
			"detail", decision.Detail,
		)
	}
	return decision
}

func (e *admissionEvaluator) evaluate(ctx context.Context, rules *domain.GatekeeperRuleSet, applicant domain.Applicant, ownerID domain.UserID) domain.Decision {
	if rules == nil {
		return domain.Admit()
	}

	if d, done := e.checkEmail(rules.Email, applicant); done {
		return d
	}

	for _, rule := range rules.ProviderRules() {
		if d := e.checkProvider(ctx, rule, applicant, ownerID); !d.Allowed {
			return d
		}
	}

	return domain.Admit()
}

// checkEmail returns done=true with a denial when the email rule rejects the applicant.
func (e *admissionEvaluator) checkEmail(rule *domain.EmailRule, applicant domain.Applicant) (domain.Decision, bool) {
	enforceAllow := rule.HasAllowList()
	enforceBlockOnly := !enforceAllow && rule.HasBlockList() && e.cfg.EnforceBlocklistWithoutAllowlist
	if !enforceAllow && !enforceBlockOnly {
		return domain.Decision{}, false
	}

	if err := rule.Validate(); err != nil {
		return domain.Deny(domain.ReasonInvalidRule, err.Error()), true
	}
	if applicant.Email == "" || !applicant.EmailVerified {
		return domain.Deny(domain.ReasonEmailNotAllowed, "no verified email"), true
	}

	if enforceBlockOnly {
		if matchesAny(applicant.Email, rule.Blocked) {
			return domain.Deny(domain.ReasonEmailBlocked, ""), true
		}
		return domain.Decision{}, false
	}

	if reason := CheckEmail(applicant.Email, rule.Allowed, rule.Blocked); reason != domain.ReasonNone {
		return domain.Deny(reason, ""), true
	}
	return domain.Decision{}, false
}

func (e *admissionEvaluator) checkProvider(ctx context.Context, rule domain.ProviderRule, applicant domain.Applicant, ownerID domain.UserID) domain.Decision {
	if err := rule.Validate(); err != nil {
		return domain.DenyProvider(rule.Provider, domain.ReasonInvalidRule, err.Error())
	}
	verifier, ok := e.verifiers[rule.Provider]
	if !ok {
		return domain.DenyProvider(rule.Provider, domain.ReasonInvalidRule, "no verifier registered")
	}

	cred, err := e.vault.Resolve(ctx, applicant.UserID, rule.Provider)
	switch {
	case errors.Is(err, domain.ErrCredentialNotFound):
		return domain.DenyProvider(rule.Provider, domain.ReasonVerificationRequired, "")
	case errors.Is(err, domain.ErrCredentialExpired):
		return domain.DenyProvider(rule.Provider, domain.ReasonVerificationExpired, "")
	case err != nil:
		return domain.DenyProvider(rule.Provider, domain.ReasonVerificationFailed, err.Error())
	}

	result := verifier.Verify(ctx, rule.Requirement, cred, ownerID, rule.TargetID)
	switch result.Status {
	case domain.VerificationSatisfied:
		return domain.Admit()
	case domain.VerificationNotSatisfied:
		return domain.DenyProvider(rule.Provider, domain.NotSatisfiedReason(rule.Requirement), "")
	default:
		detail := "verification failed"
		if result.Err != nil {
			detail = result.Err.Error()
		}
		return domain.DenyProvider(rule.Provider, domain.ReasonVerificationFailed, detail)
	}
}
