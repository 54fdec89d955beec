package negotiation

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Phase is the discrete stage of a single negotiation conversation.
type Phase string

const (
	PhaseWaitingForOffer      Phase = "WAITING_FOR_OFFER"
	PhaseNegotiating          Phase = "NEGOTIATING"
	PhaseWaitingForPreference Phase = "WAITING_FOR_PREFERENCE"
	PhaseTerminal             Phase = "TERMINAL"
)

// Preference is the weighting the vendor asked us to favour.
type Preference string

const (
	PreferencePrice   Preference = "PRICE"
	PreferenceTerms   Preference = "TERMS"
	PreferenceNeither Preference = "NEITHER"
)

// Intent is the classified purpose of an inbound vendor message.
type Intent string

const (
	IntentGreet         Intent = "GREET"
	IntentHandleRefusal Intent = "HANDLE_REFUSAL"
	IntentAccept        Intent = "ACCEPT"
	IntentCounterDirect Intent = "COUNTER_DIRECT"
	IntentAskForOffer   Intent = "ASK_FOR_OFFER"
)

var (
	validPhases = map[Phase]struct{}{
		PhaseWaitingForOffer:      {},
		PhaseNegotiating:          {},
		PhaseWaitingForPreference: {},
		PhaseTerminal:             {},
	}
	validPreferences = map[Preference]struct{}{
		PreferencePrice:   {},
		PreferenceTerms:   {},
		PreferenceNeither: {},
	}
	validIntents = map[Intent]struct{}{
		IntentGreet:         {},
		IntentHandleRefusal: {},
		IntentAccept:        {},
		IntentCounterDirect: {},
		IntentAskForOffer:   {},
	}
)

func (p Phase) Valid() bool {
	_, ok := validPhases[p]
	return ok
}

func (p Preference) Valid() bool {
	_, ok := validPreferences[p]
	return ok
}

func (i Intent) Valid() bool {
	_, ok := validIntents[i]
	return ok
}

// Offer is a structured negotiation position. Every field is optional; an
// Offer with no fields set means the message carried no usable terms.
type Offer struct {
	TotalPrice       *float64       `json:"total_price,omitempty"`
	PaymentTerms     *string        `json:"payment_terms,omitempty"`
	PaymentTermsDays *int           `json:"payment_terms_days,omitempty"`
	DeliveryDate     *string        `json:"delivery_date,omitempty"`
	DeliveryDays     *int           `json:"delivery_days,omitempty"`
	Meta             map[string]any `json:"meta,omitempty"`
}

// IsEmpty reports whether no field of the offer is set.
func (o Offer) IsEmpty() bool {
	return o.TotalPrice == nil &&
		o.PaymentTerms == nil &&
		o.PaymentTermsDays == nil &&
		o.DeliveryDate == nil &&
		o.DeliveryDays == nil &&
		len(o.Meta) == 0
}

// ConversationState is the negotiation snapshot for one deal.
//
// WAITING_FOR_OFFER implies LastVendorOffer is nil and TERMINAL implies it is
// set; RepairState enforces both.
type ConversationState struct {
	Phase              Phase      `json:"phase"`
	AskedPreference    bool       `json:"askedPreference"`
	LastVendorOffer    *Offer     `json:"lastVendorOffer"`
	DetectedPreference Preference `json:"detectedPreference"`
}

// NewConversationState returns the initial state of a conversation.
func NewConversationState() ConversationState {
	return ConversationState{
		Phase:              PhaseWaitingForOffer,
		AskedPreference:    false,
		LastVendorOffer:    nil,
		DetectedPreference: PreferenceNeither,
	}
}

const (
	fieldPhase              = "phase"
	fieldAskedPreference    = "askedPreference"
	fieldLastVendorOffer    = "lastVendorOffer"
	fieldDetectedPreference = "detectedPreference"
)

var stateFields = []string{fieldPhase, fieldAskedPreference, fieldLastVendorOffer, fieldDetectedPreference}

// RawState is an untrusted conversation state as loaded from an external
// record. Keys may be missing and values may have any shape.
type RawState map[string]any

// DecodeRawState parses a JSON object into a RawState, keeping numbers as
// json.Number.
func DecodeRawState(data []byte) (RawState, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw RawState
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("negotiation: decode state: %w", err)
	}
	if raw == nil {
		raw = RawState{}
	}
	return raw, nil
}

// Complete reports whether every state key is present, regardless of value.
func (r RawState) Complete() bool {
	for _, key := range stateFields {
		if _, ok := r[key]; !ok {
			return false
		}
	}
	return true
}

// RawStateOf converts a typed state to its raw form.
func RawStateOf(state ConversationState) RawState {
	raw := RawState{
		fieldPhase:              string(state.Phase),
		fieldAskedPreference:    state.AskedPreference,
		fieldLastVendorOffer:    nil,
		fieldDetectedPreference: string(state.DetectedPreference),
	}
	if state.LastVendorOffer != nil {
		raw[fieldLastVendorOffer] = *state.LastVendorOffer
	}
	return raw
}
