package contract

import "context"

// Extractor turns a raw utterance into a structured ExtractionResult.
// Oracle failures are expressed as a zero-confidence UNKNOWN result,
// never as an error; the error return is reserved for context
// cancellation and programmer mistakes.
type Extractor interface {
	Extract(ctx context.Context, text string, tc TurnContext) (ExtractionResult, error)
}

// CarrierGateway fronts the carrier tracking systems.
type CarrierGateway interface {
	// LookupByPRO resolves a single shipment. An unknown PRO is a
	// LookupNotFound result, not an error; ErrCarrierUnavailable and
	// ErrRateLimited surface as LookupError results.
	LookupByPRO(ctx context.Context, pro string) (LookupResult, error)

	// LookupByCriteria searches shipments matching partial criteria.
	LookupByCriteria(ctx context.Context, c Criteria) ([]ShipmentRecord, error)

	// ValidatePRO reports the carrier whose PRO format matches.
	ValidatePRO(pro string) (carrier string, ok bool)
}

// EscalationSink hands a conversation off to a human agent over the
// requested channel.
type EscalationSink interface {
	Notify(ctx context.Context, ch NotifyChannel, p EscalationPayload) (DeliveryResult, error)
}
