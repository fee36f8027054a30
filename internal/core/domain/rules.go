package domain

import (
	"fmt"
	"strings"

	"spacegate/pkg/validation"
)

type Provider string

const (
	ProviderYouTube Provider = "youtube"
	ProviderTwitch  Provider = "twitch"
)

func (p Provider) Valid() bool {
	return p == ProviderYouTube || p == ProviderTwitch
}

type Requirement string

const (
	RequirementNone       Requirement = "none"
	RequirementSubscriber Requirement = "subscriber"
	RequirementMember     Requirement = "member"
	RequirementFollower   Requirement = "follower"
)

// IsActive treats an empty requirement the same as "none".
func (r Requirement) IsActive() bool {
	return r != "" && r != RequirementNone
}

var supportedRequirements = map[Provider][]Requirement{
	ProviderYouTube: {RequirementSubscriber, RequirementMember},
	ProviderTwitch:  {RequirementFollower, RequirementSubscriber},
}

// SupportsRequirement reports whether p can verify r.
func SupportsRequirement(p Provider, r Requirement) bool {
	for _, s := range supportedRequirements[p] {
		if s == r {
			return true
		}
	}
	return false
}

// GatekeeperRuleSet is the admission configuration attached to a space.
// Every sub-rule is optional.
type GatekeeperRuleSet struct {
	Email   *EmailRule   `json:"email,omitempty"`
	YouTube *YouTubeRule `json:"youtube,omitempty"`
	Twitch  *TwitchRule  `json:"twitch,omitempty"`
}

type EmailRule struct {
	Allowed []string `json:"allowed,omitempty"`
	Blocked []string `json:"blocked,omitempty"`
}

type YouTubeRule struct {
	ChannelID   string      `json:"channel_id"`
	Requirement Requirement `json:"requirement"`
}

type TwitchRule struct {
	BroadcasterID string      `json:"broadcaster_id"`
	Requirement   Requirement `json:"requirement"`
}

// ProviderRule is the provider-neutral view of a YouTube or Twitch sub-rule.
type ProviderRule struct {
	Provider    Provider
	TargetID    string
	Requirement Requirement
}

func (r ProviderRule) Validate() error {
	if !r.Provider.Valid() {
		return fmt.Errorf("%w: unknown provider %q", ErrInvalidRule, r.Provider)
	}
	if !SupportsRequirement(r.Provider, r.Requirement) {
		return fmt.Errorf("%w: %s does not support requirement %q", ErrInvalidRule, r.Provider, r.Requirement)
	}
	if strings.TrimSpace(r.TargetID) == "" {
		return fmt.Errorf("%w: %s rule has no target id", ErrInvalidRule, r.Provider)
	}
	return nil
}

// HasAllowList reports whether the email rule is in force. A rule with only
// a block list is inert unless the caller opts into enforcing it.
func (e *EmailRule) HasAllowList() bool {
	return e != nil && len(e.Allowed) > 0
}

func (e *EmailRule) HasBlockList() bool {
	return e != nil && len(e.Blocked) > 0
}

// ProviderRules returns the active provider sub-rules in evaluation order:
// YouTube first, then Twitch.
func (g *GatekeeperRuleSet) ProviderRules() []ProviderRule {
	if g == nil {
		return nil
	}
	var rules []ProviderRule
	if g.YouTube != nil && g.YouTube.Requirement.IsActive() {
		rules = append(rules, ProviderRule{
			Provider:    ProviderYouTube,
			TargetID:    g.YouTube.ChannelID,
			Requirement: g.YouTube.Requirement,
		})
	}
	if g.Twitch != nil && g.Twitch.Requirement.IsActive() {
		rules = append(rules, ProviderRule{
			Provider:    ProviderTwitch,
			TargetID:    g.Twitch.BroadcasterID,
			Requirement: g.Twitch.Requirement,
		})
	}
	return rules
}

// IsEmpty reports whether no sub-rule requires a check.
func (g *GatekeeperRuleSet) IsEmpty() bool {
	if g == nil {
		return true
	}
	return !g.Email.HasAllowList() && !g.Email.HasBlockList() && len(g.ProviderRules()) == 0
}

// Validate checks every allow and block pattern.
func (e *EmailRule) Validate() error {
	if e == nil {
		return nil
	}
	for _, p := range e.Allowed {
		if err := validation.ValidateEmailPattern(p); err != nil {
			return fmt.Errorf("%w: allowed pattern %q: %v", ErrInvalidRule, p, err)
		}
	}
	for _, p := range e.Blocked {
		if err := validation.ValidateEmailPattern(p); err != nil {
			return fmt.Errorf("%w: blocked pattern %q: %v", ErrInvalidRule, p, err)
		}
	}
	return nil
}

// Validate reports the first malformed sub-rule, wrapping ErrInvalidRule.
func (g *GatekeeperRuleSet) Validate() error {
	if g == nil {
		return nil
	}
	if err := g.Email.Validate(); err != nil {
		return err
	}
	for _, r := range g.ProviderRules() {
		if err := r.Validate(); err != nil {
			return err
		}
	}
	return nil
}
