package orchestratornode

import (
	"strings"
	"time"

	contractx "github.com/wwexlabs/freightdesk/agent/contract"
	memoryx "github.com/wwexlabs/freightdesk/agent/memory"
	statex "github.com/wwexlabs/freightdesk/agent/state"
)

// Phase is the per-turn state machine. Every turn starts at
// PhaseExtract and ends at PhaseEnd; the conversation itself lives on
// in ConversationState across turns.
type Phase string

const (
	PhaseStart         Phase = "START"
	PhaseExtract       Phase = "EXTRACT"
	PhaseMemoryLookup  Phase = "MEMORY_LOOKUP"
	PhaseCarrierLookup Phase = "CARRIER_LOOKUP"
	PhaseDisambiguate  Phase = "DISAMBIGUATE"
	PhaseRequestInfo   Phase = "REQUEST_INFO"
	PhaseEscalate      Phase = "ESCALATE"
	PhaseRespond       Phase = "RESPOND"
	PhaseMemoryUpdate  Phase = "MEMORY_UPDATE"
	PhaseEnd           Phase = "END"
)

// Input is everything the transition policy is allowed to see. It
// carries no I/O handles, so Decide stays a pure function.
type Input struct {
	Extraction          contractx.ExtractionResult
	ConfidenceThreshold float64
	State               *statex.ConversationState
	ValidatePRO         func(pro string) (carrier string, ok bool)
}

// Decision is the policy's verdict on how the turn proceeds after
// MEMORY_LOOKUP.
type Decision struct {
	Phase Phase

	// Terminal action for phases that skip the carrier.
	Action contractx.Action

	// Lookup directives for PhaseCarrierLookup.
	LookupPRO      string
	LookupCarrier  string
	LookupCriteria contractx.Criteria

	// Resolved is set when a pending disambiguation pick selected a
	// candidate; the lookup re-fetches it by PRO for fresh status.
	Resolved bool

	// ReferenceResolved marks that the PRO came from a prior turn's
	// antecedent rather than this utterance.
	ReferenceResolved bool
}

// Decide is the (state, event) -> next-phase transition function.
// Confidence below the threshold always routes to REQUEST_INFO,
// independent of intent.
func Decide(in Input) Decision {
	ex := in.Extraction

	if ex.Confidence < in.ConfidenceThreshold {
		return Decision{Phase: PhaseRequestInfo, Action: contractx.ActionRequestInfo}
	}

	switch ex.Intent {
	case contractx.IntentPreference:
		return Decision{Phase: PhaseRespond, Action: contractx.ActionAcknowledge}

	case contractx.IntentDisambiguate:
		return decideDisambiguation(in)

	case contractx.IntentUnknown:
		// no recognized intent means no action without a clarifying
		// question, whatever entities came along for the ride
		return Decision{Phase: PhaseRequestInfo, Action: contractx.ActionRequestInfo}
	}

	// TRACK / REPORT_DELAY resolve the same way: we need a shipment.
	pro := ex.PRO.Value
	referenceResolved := false
	if pro == "" && refersToPrior(ex) && criteriaFrom(ex).Empty() {
		if recent, ok := in.State.RecentTrackPRO(); ok {
			pro = recent
			referenceResolved = true
		} else {
			// a reference with no antecedent and nothing to search on
			return Decision{Phase: PhaseRequestInfo, Action: contractx.ActionRequestInfo}
		}
	}

	if pro != "" {
		carrier, ok := in.ValidatePRO(pro)
		if !ok {
			// a malformed PRO is missing information, not an error
			return Decision{Phase: PhaseRequestInfo, Action: contractx.ActionRequestInfo}
		}
		return Decision{
			Phase:             PhaseCarrierLookup,
			LookupPRO:         strings.ToUpper(pro),
			LookupCarrier:     carrier,
			ReferenceResolved: referenceResolved,
		}
	}

	if c := criteriaFrom(ex); !c.Empty() {
		return Decision{Phase: PhaseCarrierLookup, LookupCriteria: c}
	}

	return Decision{Phase: PhaseRequestInfo, Action: contractx.ActionRequestInfo}
}

// decideDisambiguation interprets the turn against the pending
// candidate set before normal intent routing.
func decideDisambiguation(in Input) Decision {
	st := in.State
	if st == nil || len(st.Candidates) == 0 {
		return Decision{Phase: PhaseRequestInfo, Action: contractx.ActionRequestInfo}
	}

	ordinal := in.Extraction.Ordinal
	if ordinal == -1 {
		ordinal = len(st.Candidates)
	}
	if rec, ok := st.CandidateAt(ordinal); ok {
		return Decision{Phase: PhaseCarrierLookup, LookupPRO: rec.PRO, Resolved: true}
	}

	// the customer may have answered with a PRO instead of a position
	if pro := in.Extraction.PRO.Value; pro != "" {
		for _, rec := range st.Candidates {
			if strings.EqualFold(rec.PRO, pro) {
				return Decision{Phase: PhaseCarrierLookup, LookupPRO: rec.PRO, Resolved: true}
			}
		}
	}

	// unresolvable pick: re-ask, candidates stay pending
	return Decision{Phase: PhaseDisambiguate, Action: contractx.ActionDisambiguate}
}

// refersToPrior reports whether the utterance leans on an antecedent
// ("where is it now?") instead of naming a shipment.
func refersToPrior(ex contractx.ExtractionResult) bool {
	if ex.Intent != contractx.IntentTrack && ex.Intent != contractx.IntentReportDelay {
		return false
	}
	return !ex.PRO.Present()
}

func criteriaFrom(ex contractx.ExtractionResult) contractx.Criteria {
	c := contractx.Criteria{
		Origin:      ex.Origin.Value,
		Destination: ex.Destination.Value,
		Carrier:     ex.Carrier.Value,
	}
	if ex.DateFrom.Present() {
		if t, ok := parseDay(ex.DateFrom.Value); ok {
			c.PickupFrom = t
		}
	}
	if ex.DateTo.Present() {
		if t, ok := parseDay(ex.DateTo.Value); ok {
			c.PickupTo = t
		}
	}
	return c
}

// ChooseChannel picks the escalation channel: an explicit customer
// preference wins over the procedural recommendation; with neither,
// email is the default. Urgent turns without a stated preference
// escalate by phone when a matching rule recommends it.
func ChooseChannel(preference string, rules []memoryx.ProcedureRule, urgent bool) contractx.NotifyChannel {
	switch strings.ToLower(strings.TrimSpace(preference)) {
	case "email":
		return contractx.ChannelEmail
	case "phone":
		return contractx.ChannelPhone
	case "webhook":
		return contractx.ChannelWebhook
	}

	for _, r := range rules {
		if r.Weight <= 0 {
			continue
		}
		if r.Channel == contractx.ChannelPhone && !urgent {
			continue
		}
		return r.Channel
	}

	return contractx.ChannelEmail
}

func parseDay(s string) (time.Time, bool) {
	t, err := time.Parse("2006-01-02", strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
