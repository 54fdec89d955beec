package negotiation

import (
	"github.com/wolfman30/vendor-negotiation/internal/observability/metrics"
	"github.com/wolfman30/vendor-negotiation/pkg/logging"
)

const (
	reasonMissing      = "missing"
	reasonInvalid      = "invalid"
	reasonCoerced      = "coerced"
	reasonNormalized   = "normalized"
	reasonDropped      = "dropped"
	reasonInconsistent = "inconsistent"
)

// Repair describes one fix applied while sanitising a conversation state.
type Repair struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
	From   any    `json:"from,omitempty"`
	To     any    `json:"to,omitempty"`
}

// Recover builds a complete state from a partial, untrusted one. Missing or
// invalid fields take their defaults; values are never coerced.
func Recover(raw RawState) (ConversationState, []Repair) {
	state := NewConversationState()
	var repairs []Repair

	if v, present := raw[fieldPhase]; !present || v == nil {
		repairs = append(repairs, Repair{Field: fieldPhase, Reason: reasonMissing, To: state.Phase})
	} else {
		state.Phase, repairs = parsePhaseField(v, repairs)
	}

	if v, present := raw[fieldAskedPreference]; !present || v == nil {
		repairs = append(repairs, Repair{Field: fieldAskedPreference, Reason: reasonMissing, To: false})
	} else if b, ok := v.(bool); ok {
		state.AskedPreference = b
	} else {
		repairs = append(repairs, Repair{Field: fieldAskedPreference, Reason: reasonInvalid, From: v, To: false})
	}

	if v, present := raw[fieldLastVendorOffer]; !present {
		repairs = append(repairs, Repair{Field: fieldLastVendorOffer, Reason: reasonMissing})
	} else {
		state.LastVendorOffer, repairs = parseOfferField(v, repairs)
	}

	if v, present := raw[fieldDetectedPreference]; !present || v == nil {
		repairs = append(repairs, Repair{Field: fieldDetectedPreference, Reason: reasonMissing, To: state.DetectedPreference})
	} else {
		state.DetectedPreference, repairs = parsePreferenceField(v, repairs)
	}

	return reconcile(state, repairs)
}

// ValidateAndFixRaw repairs a structurally complete but untrusted state.
// Unlike Recover it coerces a non-boolean askedPreference instead of
// resetting it.
func ValidateAndFixRaw(raw RawState) (ConversationState, []Repair) {
	var (
		state   ConversationState
		repairs []Repair
	)
	state.Phase, repairs = parsePhaseField(raw[fieldPhase], repairs)

	switch v := raw[fieldAskedPreference].(type) {
	case bool:
		state.AskedPreference = v
	default:
		state.AskedPreference = CoerceBool(v)
		repairs = append(repairs, Repair{Field: fieldAskedPreference, Reason: reasonCoerced, From: v, To: state.AskedPreference})
	}

	state.LastVendorOffer, repairs = parseOfferField(raw[fieldLastVendorOffer], repairs)
	state.DetectedPreference, repairs = parsePreferenceField(raw[fieldDetectedPreference], repairs)

	return reconcile(state, repairs)
}

// ValidateAndFix repairs a typed state: unknown enum values fall back to
// their defaults, offer fields that fail validation are dropped, and the
// phase is reconciled with the presence of an offer.
func ValidateAndFix(state ConversationState) (ConversationState, []Repair) {
	var repairs []Repair

	if !state.Phase.Valid() {
		repairs = append(repairs, Repair{Field: fieldPhase, Reason: reasonInvalid, From: state.Phase, To: PhaseWaitingForOffer})
		state.Phase = PhaseWaitingForOffer
	}
	if state.LastVendorOffer != nil {
		clean, dropped := sanitizeOffer(*state.LastVendorOffer)
		for _, field := range dropped {
			repairs = append(repairs, Repair{Field: fieldLastVendorOffer + "." + field, Reason: reasonDropped})
		}
		state.LastVendorOffer = &clean
	}
	if !state.DetectedPreference.Valid() {
		repairs = append(repairs, Repair{Field: fieldDetectedPreference, Reason: reasonInvalid, From: state.DetectedPreference, To: PreferenceNeither})
		state.DetectedPreference = PreferenceNeither
	}

	return reconcile(state, repairs)
}

// RepairState always returns a valid state: complete candidates go through
// ValidateAndFixRaw, partial ones through Recover.
func RepairState(raw RawState) (ConversationState, []Repair) {
	if raw.Complete() {
		return ValidateAndFixRaw(raw)
	}
	return Recover(raw)
}

func reconcile(state ConversationState, repairs []Repair) (ConversationState, []Repair) {
	switch {
	case state.Phase == PhaseWaitingForOffer && state.LastVendorOffer != nil:
		repairs = append(repairs, Repair{Field: fieldPhase, Reason: reasonInconsistent, From: state.Phase, To: PhaseNegotiating})
		state.Phase = PhaseNegotiating
	case state.Phase == PhaseTerminal && state.LastVendorOffer == nil:
		repairs = append(repairs, Repair{Field: fieldPhase, Reason: reasonInconsistent, From: state.Phase, To: PhaseWaitingForOffer})
		state.Phase = PhaseWaitingForOffer
	}
	return state, repairs
}

func parsePhaseField(v any, repairs []Repair) (Phase, []Repair) {
	p, ok := ParsePhase(v)
	if !ok {
		return PhaseWaitingForOffer, append(repairs, Repair{Field: fieldPhase, Reason: reasonInvalid, From: v, To: PhaseWaitingForOffer})
	}
	if s, _ := stringValue(v); s != string(p) {
		repairs = append(repairs, Repair{Field: fieldPhase, Reason: reasonNormalized, From: v, To: p})
	}
	return p, repairs
}

func parsePreferenceField(v any, repairs []Repair) (Preference, []Repair) {
	p, ok := ParsePreference(v)
	if !ok {
		return PreferenceNeither, append(repairs, Repair{Field: fieldDetectedPreference, Reason: reasonInvalid, From: v, To: PreferenceNeither})
	}
	if s, _ := stringValue(v); s != string(p) {
		repairs = append(repairs, Repair{Field: fieldDetectedPreference, Reason: reasonNormalized, From: v, To: p})
	}
	return p, repairs
}

func parseOfferField(v any, repairs []Repair) (*Offer, []Repair) {
	if v == nil {
		return nil, repairs
	}
	offer, dropped, ok := offerFromRaw(v)
	if !ok {
		return nil, append(repairs, Repair{Field: fieldLastVendorOffer, Reason: reasonInvalid, From: v})
	}
	for _, field := range dropped {
		repairs = append(repairs, Repair{Field: fieldLastVendorOffer + "." + field, Reason: reasonDropped})
	}
	return offer, repairs
}

// Repairer applies the repair functions and reports what changed.
type Repairer struct {
	logger  *logging.Logger
	metrics *metrics.ResilienceMetrics
}

func NewRepairer(logger *logging.Logger, m *metrics.ResilienceMetrics) *Repairer {
	if logger == nil {
		logger = logging.Default()
	}
	return &Repairer{logger: logger, metrics: m}
}

// RepairState sanitises an untrusted state. It never fails.
func (r *Repairer) RepairState(raw RawState) ConversationState {
	mode := "recover"
	if raw.Complete() {
		mode = "validate"
	}
	state, repairs := RepairState(raw)
	r.report(mode, repairs)
	return state
}

// Fix sanitises a typed state. It never fails.
func (r *Repairer) Fix(state ConversationState) ConversationState {
	fixed, repairs := ValidateAndFix(state)
	r.report("validate", repairs)
	return fixed
}

func (r *Repairer) report(mode string, repairs []Repair) {
	if r == nil || len(repairs) == 0 {
		return
	}
	fields := make([]string, 0, len(repairs))
	for _, rep := range repairs {
		fields = append(fields, rep.Field)
		r.metrics.ObserveRepair(rep.Field)
	}
	r.logger.Warn("conversation state repaired",
		"mode", mode,
		"fields", fields,
		"repairs", repairs,
	)
}
