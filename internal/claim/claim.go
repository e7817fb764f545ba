// Package claim defines the Claim type and its closed enumerations —
// produced by the Claim Extractor from a Clause (spec.md §3 / §4.2).
package claim

// Modality is the closed set of normative verbs a Claim carries.
type Modality string

const (
	ModalityMust       Modality = "MUST"
	ModalityShall      Modality = "SHALL"
	ModalityMay        Modality = "MAY"
	ModalityMustNot    Modality = "MUST_NOT"
	ModalityShallNot   Modality = "SHALL_NOT"
	ModalityProhibited Modality = "PROHIBITED"
	ModalityPermitted  Modality = "PERMITTED"
	ModalityIs         Modality = "IS"
	ModalityDefines    Modality = "DEFINES"
)

var validModalities = map[Modality]bool{
	ModalityMust: true, ModalityShall: true, ModalityMay: true,
	ModalityMustNot: true, ModalityShallNot: true, ModalityProhibited: true,
	ModalityPermitted: true, ModalityIs: true, ModalityDefines: true,
}

// ValueType is the closed set of normalized-value kinds a Claim carries.
type ValueType string

const (
	ValueTypeDuration     ValueType = "DURATION"
	ValueTypeAmount       ValueType = "AMOUNT"
	ValueTypeJurisdiction ValueType = "JURISDICTION"
	ValueTypeDate         ValueType = "DATE"
	ValueTypePercentage   ValueType = "PERCENTAGE"
	ValueTypeParty        ValueType = "PARTY"
	ValueTypeNone         ValueType = "NONE"
)

var validValueTypes = map[ValueType]bool{
	ValueTypeDuration: true, ValueTypeAmount: true, ValueTypeJurisdiction: true,
	ValueTypeDate: true, ValueTypePercentage: true, ValueTypeParty: true, ValueTypeNone: true,
}

// Topic is the closed set of subject-matter buckets a Claim belongs to,
// used by the Conflict Graph Builder's topic-bucket pruning (spec.md §4.3).
type Topic string

const (
	TopicPayment         Topic = "PAYMENT"
	TopicTermination     Topic = "TERMINATION"
	TopicJurisdiction    Topic = "JURISDICTION"
	TopicIndemnification Topic = "INDEMNIFICATION"
	TopicConfidentiality Topic = "CONFIDENTIALITY"
	TopicLockUp          Topic = "LOCK_UP"
	TopicObligations     Topic = "OBLIGATIONS"
	TopicDefinitions     Topic = "DEFINITIONS"
	TopicGeneral         Topic = "GENERAL"
)

var validTopics = map[Topic]bool{
	TopicPayment: true, TopicTermination: true, TopicJurisdiction: true,
	TopicIndemnification: true, TopicConfidentiality: true, TopicLockUp: true,
	TopicObligations: true, TopicDefinitions: true, TopicGeneral: true,
}

// Claim is a structured statement extracted from a single clause.
type Claim struct {
	ClauseID        string
	Subject         string
	Action          string
	Modality        Modality
	Object          string
	ValueType       ValueType
	NormalizedValue string
	OriginalValue   string
	Conditions      []string
	Exceptions      []string
	SourceQuote     string
	Topic           Topic
	IsOverride      bool
	OverridesClause string

	// OrderIndex and SeqInClause order claims deterministically: by the
	// owning clause's document position, then by LLM emission order
	// within that clause (spec.md §4.2 "Batching").
	OrderIndex  int
	SeqInClause int
}

// ValidModality reports whether m is one of the nine legal values.
func ValidModality(m Modality) bool { return validModalities[m] }

// ValidValueType reports whether v is one of the seven legal values.
func ValidValueType(v ValueType) bool { return validValueTypes[v] }

// ValidTopic reports whether t is one of the nine legal values.
func ValidTopic(t Topic) bool { return validTopics[t] }
