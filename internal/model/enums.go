package model

import (
	"strings"

	"github.com/antzucaro/matchr"
)

// EntityType is the closed set of memory record kinds.
type EntityType string

const (
	EntityTypeDecision   EntityType = "decision"
	EntityTypeCheckpoint EntityType = "checkpoint"
	EntityTypeInsight    EntityType = "insight"
	EntityTypeContext    EntityType = "context"
)

// entityTypes is the canonical, ordered closed set used for parsing and suggestions.
var entityTypes = []EntityType{EntityTypeDecision, EntityTypeCheckpoint, EntityTypeInsight, EntityTypeContext}

// ParseEntityType case-insensitively normalizes raw into one of the closed
// set of entity types. On mismatch it returns ok=false along with the
// closest match by Jaro-Winkler similarity, for a "did you mean" hint.
func ParseEntityType(raw string) (t EntityType, suggestion EntityType, ok bool) {
	lower := strings.ToLower(strings.TrimSpace(raw))
	for _, candidate := range entityTypes {
		if string(candidate) == lower {
			return candidate, "", true
		}
	}
	return "", nearestEntityType(lower), false
}

func nearestEntityType(lower string) EntityType {
	var best EntityType
	var bestScore float64
	for _, candidate := range entityTypes {
		score := matchr.JaroWinkler(lower, string(candidate), false)
		if score > bestScore {
			bestScore = score
			best = candidate
		}
	}
	return best
}

// Outcome is the closed set of entity outcome states.
type Outcome string

const (
	OutcomePending    Outcome = "PENDING"
	OutcomeSuccess    Outcome = "SUCCESS"
	OutcomePartial    Outcome = "PARTIAL"
	OutcomeFailed     Outcome = "FAILED"
	OutcomeSuperseded Outcome = "SUPERSEDED"
)

var outcomes = []Outcome{OutcomePending, OutcomeSuccess, OutcomePartial, OutcomeFailed, OutcomeSuperseded}

// ParseOutcome case-insensitively normalizes raw ("Success", "failed", ...)
// to uppercase canonical form. On mismatch it returns the nearest known
// outcome by Jaro-Winkler similarity as a suggestion.
func ParseOutcome(raw string) (o Outcome, suggestion Outcome, ok bool) {
	upper := strings.ToUpper(strings.TrimSpace(raw))
	for _, candidate := range outcomes {
		if string(candidate) == upper {
			return candidate, "", true
		}
	}
	var best Outcome
	var bestScore float64
	for _, candidate := range outcomes {
		score := matchr.JaroWinkler(upper, string(candidate), false)
		if score > bestScore {
			bestScore = score
			best = candidate
		}
	}
	return "", best, false
}

// LinkCreatedBy distinguishes links proposed by an assistant from ones
// created directly by a user.
type LinkCreatedBy string

const (
	CreatedByLLM  LinkCreatedBy = "llm"
	CreatedByUser LinkCreatedBy = "user"
)

// LinkCategory is the query/boost convenience derived from relationship;
// never persisted as its own column (see DESIGN.md open-question notes).
type LinkCategory string

const (
	CategoryEvolution      LinkCategory = "evolution"
	CategoryImplementation LinkCategory = "implementation"
	CategoryAssociation    LinkCategory = "association"
	CategoryTemporal       LinkCategory = "temporal"
)

// relationshipCategories maps well-known relationship tokens to a category.
// Anything absent from this table falls back to CategoryAssociation.
var relationshipCategories = map[string]LinkCategory{
	"refines":         CategoryEvolution,
	"supersedes":      CategoryEvolution,
	"replaces":        CategoryEvolution,
	"implements":      CategoryImplementation,
	"depends_on":      CategoryImplementation,
	"requires":        CategoryImplementation,
	"relates_to":      CategoryAssociation,
	"references":      CategoryAssociation,
	"precedes":        CategoryTemporal,
	"follows":         CategoryTemporal,
	"concurrent_with": CategoryTemporal,
}

// CategoryForRelationship derives the link's category from its free-form
// relationship token. This is computed on read, never stored.
func CategoryForRelationship(relationship string) LinkCategory {
	if cat, ok := relationshipCategories[strings.ToLower(strings.TrimSpace(relationship))]; ok {
		return cat
	}
	return CategoryAssociation
}

// AuditAction is the closed set of audit log actions.
type AuditAction string

const (
	ActionProposed   AuditAction = "proposed"
	ActionApproved   AuditAction = "approved"
	ActionRejected   AuditAction = "rejected"
	ActionDeprecated AuditAction = "deprecated"
)

// AuditActor identifies who performed an audited action.
type AuditActor string

const (
	ActorLLM    AuditActor = "llm"
	ActorUser   AuditActor = "user"
	ActorSystem AuditActor = "system"
)

// RestartStatus is the outcome of a checkpoint-resume attempt.
type RestartStatus string

const (
	RestartSuccess RestartStatus = "success"
	RestartFailure RestartStatus = "failure"
)

// RestartFailureReason classifies why a restart failed.
type RestartFailureReason string

const (
	FailureNoCheckpoint       RestartFailureReason = "NO_CHECKPOINT"
	FailureLoadError          RestartFailureReason = "LOAD_ERROR"
	FailureContextIncomplete RestartFailureReason = "CONTEXT_INCOMPLETE"
)

// RestartMode distinguishes a full narrative+link resume from a lightweight summary.
type RestartMode string

const (
	ModeFull    RestartMode = "full"
	ModeSummary RestartMode = "summary"
)
