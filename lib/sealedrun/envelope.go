// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sealedrun

import (
	"fmt"
	"sort"
	"strings"
)

// Actor identifies who acted.
type Actor struct {
	ID   string `json:"id"`
	Role string `json:"role"`
}

// BoundScope lists the items the authority was exercised over. At
// least one item must be bound.
type BoundScope struct {
	Decisions []string `json:"decisions"`
	Claims    []string `json:"claims"`
	Patches   []string `json:"patches"`
	Prompts   []string `json:"prompts"`
	Datasets  []string `json:"datasets"`
}

// PolicySnapshot records the policy the decision was made under.
type PolicySnapshot struct {
	PolicyVersion string   `json:"policy_version"`
	PolicyHash    string   `json:"policy_hash"`
	PromptHashes  []string `json:"prompt_hashes"`
	SchemaVersion string   `json:"schema_version"`
}

// Refusal records whether the actor could refuse and which checks ran.
// ChecksPerformed must be non-empty even when no refusal occurred.
type Refusal struct {
	RefusalAvailable  bool     `json:"refusal_available"`
	RefusalTriggered  bool     `json:"refusal_triggered"`
	RefusalReasonCode string   `json:"refusal_reason_code"`
	ChecksPerformed   []string `json:"checks_performed"`
}

// GateOutcome is the result of one enforcement gate.
type GateOutcome struct {
	Gate   string `json:"gate"`
	Result string `json:"result"`
}

// GatePass is the only gate result a sealable envelope may carry.
const GatePass = "pass"

// Enforcement records the enforcement gates that ran.
type Enforcement struct {
	EnforcementEmitted bool          `json:"enforcement_emitted"`
	GateOutcomes       []GateOutcome `json:"gate_outcomes"`
}

// Provenance ties the envelope to the sealed run that embeds it.
// Filled by [Seal]; templates leave it empty.
type Provenance struct {
	RunID                   string `json:"run_id"`
	CreatedAt               string `json:"created_at"`
	ObservedAt              string `json:"observed_at"`
	DeterministicInputsHash string `json:"deterministic_inputs_hash"`
}

// AuthorityEnvelope is the bound record of who acted, under what
// policy, with what refusal and enforcement checks performed.
type AuthorityEnvelope struct {
	Actor          Actor          `json:"actor"`
	AuthorityType  string         `json:"authority_type"`
	Scope          BoundScope     `json:"scope"`
	PolicySnapshot PolicySnapshot `json:"policy_snapshot"`
	Refusal        Refusal        `json:"refusal"`
	Enforcement    Enforcement    `json:"enforcement"`
	Provenance     Provenance     `json:"provenance"`
}

// ViolationKind separates missing or malformed fields from fields that
// are present but record a disallowed outcome.
type ViolationKind int

const (
	// Structural violations are missing or mistyped fields.
	Structural ViolationKind = iota
	// Logic violations are well-formed values that fail a policy
	// predicate, such as a failed gate.
	Logic
)

func (k ViolationKind) String() string {
	if k == Logic {
		return "logic"
	}
	return "structural"
}

// Violation is one failed envelope predicate.
type Violation struct {
	Field   string
	Message string
	Kind    ViolationKind
}

func (v Violation) String() string {
	return v.Field + ": " + v.Message
}

// EnvelopeError lists every violated envelope predicate.
type EnvelopeError struct {
	Violations []Violation
}

func (e *EnvelopeError) Error() string {
	parts := make([]string, len(e.Violations))
	for index, violation := range e.Violations {
		parts[index] = violation.String()
	}
	return "authority envelope invalid: " + strings.Join(parts, "; ")
}

// scopeLists are the bound scope list fields, in a fixed order.
var scopeLists = []string{"claims", "datasets", "decisions", "patches", "prompts"}

// ValidateEnvelope checks an authority envelope in the canonical value
// model and returns every violated predicate. Provenance is not checked
// here: it is filled by sealing and checked against the commit hash by
// verification.
func ValidateEnvelope(envelope any) []Violation {
	var violations []Violation
	structural := func(field, format string, args ...any) {
		violations = append(violations, Violation{Field: field, Message: fmt.Sprintf(format, args...), Kind: Structural})
	}
	logic := func(field, format string, args ...any) {
		violations = append(violations, Violation{Field: field, Message: fmt.Sprintf(format, args...), Kind: Logic})
	}

	root, ok := envelope.(map[string]any)
	if !ok {
		structural("authority_envelope", "not an object")
		return violations
	}

	if actor, ok := root["actor"].(map[string]any); !ok {
		structural("actor", "missing")
	} else if id, _ := actor["id"].(string); id == "" {
		structural("actor.id", "missing or empty")
	}

	if authorityType, _ := root["authority_type"].(string); authorityType == "" {
		structural("authority_type", "missing or empty")
	}

	if scope, ok := root["scope"].(map[string]any); !ok {
		structural("scope", "missing")
	} else {
		bound := 0
		for _, name := range scopeLists {
			value, present := scope[name]
			if !present || value == nil {
				continue
			}
			items, ok := value.([]any)
			if !ok {
				structural("scope."+name, "not a list")
				continue
			}
			bound += len(items)
		}
		if bound == 0 {
			structural("scope", "no bound scope items")
		}
	}

	if snapshot, ok := root["policy_snapshot"].(map[string]any); !ok {
		structural("policy_snapshot", "missing")
	} else {
		if version, _ := snapshot["policy_version"].(string); version == "" {
			structural("policy_snapshot.policy_version", "missing or empty")
		}
		if hash, _ := snapshot["policy_hash"].(string); hash == "" {
			structural("policy_snapshot.policy_hash", "missing or empty")
		}
	}

	if refusal, ok := root["refusal"].(map[string]any); !ok {
		structural("refusal", "missing")
	} else {
		if _, ok := refusal["refusal_available"].(bool); !ok {
			structural("refusal.refusal_available", "missing or not a boolean")
		}
		if checks, _ := refusal["checks_performed"].([]any); len(checks) == 0 {
			structural("refusal.checks_performed", "empty; record the checks performed even when nothing was refused")
		}
	}

	if enforcement, ok := root["enforcement"].(map[string]any); !ok {
		structural("enforcement", "missing")
	} else {
		switch emitted := enforcement["enforcement_emitted"].(type) {
		case bool:
			if !emitted {
				logic("enforcement.enforcement_emitted", "is false")
			}
		default:
			structural("enforcement.enforcement_emitted", "missing or not a boolean")
		}

		if raw, present := enforcement["gate_outcomes"]; present && raw != nil {
			outcomes, ok := raw.([]any)
			if !ok {
				structural("enforcement.gate_outcomes", "not a list")
			}
			var failed []string
			for index, rawOutcome := range outcomes {
				outcome, ok := rawOutcome.(map[string]any)
				if !ok {
					structural(fmt.Sprintf("enforcement.gate_outcomes[%d]", index), "not an object")
					continue
				}
				result, _ := outcome["result"].(string)
				if result != GatePass {
					gate, _ := outcome["gate"].(string)
					failed = append(failed, fmt.Sprintf("%s=%q", gate, result))
				}
			}
			if len(failed) > 0 {
				sort.Strings(failed)
				logic("enforcement.gate_outcomes", "non-passing gates: %s", strings.Join(failed, ", "))
			}
		}
	}

	return violations
}
