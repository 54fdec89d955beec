package negotiation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyFallback(t *testing.T) {
	tests := []struct {
		message string
		want    Intent
	}{
		{"Hello there!", IntentGreet},
		{"No, not interested", IntentHandleRefusal},
		{"$95 Net 60", IntentCounterDirect},
		{"Good morning, any update?", IntentGreet},
		{"hey", IntentGreet},
		{"Hi, we can do $80", IntentGreet},
		{"We can't go lower than that", IntentHandleRefusal},
		{"Let's talk later", IntentHandleRefusal},
		{"No deal", IntentHandleRefusal},
		{"Sounds good, send the PO", IntentAccept},
		{"We accept your terms", IntentAccept},
		{"That's a deal", IntentAccept},
		{"Agreed, ship it", IntentAccept},
		{"Deal!", IntentAccept},
		{"I'm a car dealer", IntentAskForOffer},
		{"Our dealership opens at 9", IntentAskForOffer},
		{"We could do 12 dollars per unit", IntentCounterDirect},
		{"4.50 per unit is our best", IntentCounterDirect},
		{"How about net-90?", IntentCounterDirect},
		{"What quantities do you need?", IntentAskForOffer},
		{"", IntentAskForOffer},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ClassifyFallback(tt.message), "message %q", tt.message)
	}
}

func TestIntentRulesReturnsCopy(t *testing.T) {
	rules := IntentRules()
	require.Len(t, rules, 4)
	rules[0].Intent = IntentAccept
	assert.Equal(t, IntentGreet, IntentRules()[0].Intent)
}

func TestParseOfferFallback(t *testing.T) {
	offer := ParseOfferFallback("I can offer $95 with Net 60 terms")
	require.NotNil(t, offer.TotalPrice)
	require.NotNil(t, offer.PaymentTerms)
	assert.Equal(t, 95.0, *offer.TotalPrice)
	assert.Equal(t, "Net 60", *offer.PaymentTerms)
	assert.Nil(t, offer.DeliveryDays)
}

func TestParseOfferFallbackTakesFirstMatches(t *testing.T) {
	offer := ParseOfferFallback("Was $1,250.50 NET90, now $1,100 net 30")
	require.NotNil(t, offer.TotalPrice)
	assert.Equal(t, 1250.5, *offer.TotalPrice)
	require.NotNil(t, offer.PaymentTerms)
	assert.Equal(t, "Net 90", *offer.PaymentTerms)
}

func TestParseOfferFallbackOnlyProposesStandardTerms(t *testing.T) {
	offer := ParseOfferFallback("Net 45 works for us")
	assert.True(t, offer.IsEmpty())

	offer = ParseOfferFallback("ninety five dollars")
	assert.True(t, offer.IsEmpty())
}
