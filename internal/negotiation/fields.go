package negotiation

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"
)

const (
	minPaymentTermDays = 1
	maxPaymentTermDays = 120
)

var paymentTermsPattern = regexp.MustCompile(`(?i)^\s*net\s*-?\s*(\d{1,4})\s*$`)

// Each Parse* function maps an untrusted value to its valid form, or reports
// false so the caller can drop the field.

func ParsePhase(raw any) (Phase, bool) {
	s, ok := stringValue(raw)
	if !ok {
		return "", false
	}
	p := Phase(strings.ToUpper(strings.TrimSpace(s)))
	return p, p.Valid()
}

func ParsePreference(raw any) (Preference, bool) {
	s, ok := stringValue(raw)
	if !ok {
		return "", false
	}
	p := Preference(strings.ToUpper(strings.TrimSpace(s)))
	return p, p.Valid()
}

func ParseIntent(raw any) (Intent, bool) {
	s, ok := stringValue(raw)
	if !ok {
		return "", false
	}
	i := Intent(strings.ToUpper(strings.TrimSpace(s)))
	return i, i.Valid()
}

// CoerceBool converts loosely typed flags: strings go through
// strconv.ParseBool and otherwise count as true when non-empty, numbers are
// true when non-zero, nil is false.
func CoerceBool(raw any) bool {
	switch v := raw.(type) {
	case nil:
		return false
	case bool:
		return v
	case string:
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			return b
		}
		return strings.TrimSpace(v) != ""
	}
	if f, ok := numberValue(raw); ok {
		return f != 0 && !math.IsNaN(f)
	}
	return true
}

// NormalizePaymentTerms accepts "Net <N>" with 1 <= N <= 120, in any case and
// spacing, and returns the canonical "Net <N>".
func NormalizePaymentTerms(raw any) (string, bool) {
	s, ok := stringValue(raw)
	if !ok {
		return "", false
	}
	m := paymentTermsPattern.FindStringSubmatch(s)
	if m == nil {
		return "", false
	}
	days, err := strconv.Atoi(m[1])
	if err != nil || days < minPaymentTermDays || days > maxPaymentTermDays {
		return "", false
	}
	return "Net " + strconv.Itoa(days), true
}

// ParsePrice accepts finite, non-negative numbers.
func ParsePrice(raw any) (float64, bool) {
	f, ok := numberValue(raw)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
		return 0, false
	}
	return f, true
}

// ParseDayCount accepts non-negative whole numbers.
func ParseDayCount(raw any) (int, bool) {
	f, ok := numberValue(raw)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) || f < 0 || f != math.Trunc(f) || f > math.MaxInt32 {
		return 0, false
	}
	return int(f), true
}

// ParseDeliveryDate accepts any non-blank string verbatim.
func ParseDeliveryDate(raw any) (string, bool) {
	s, ok := stringValue(raw)
	if !ok || strings.TrimSpace(s) == "" {
		return "", false
	}
	return s, true
}

func ParseMeta(raw any) (map[string]any, bool) {
	switch v := raw.(type) {
	case map[string]any:
		if v == nil {
			return nil, false
		}
		return v, true
	case RawState:
		return map[string]any(v), v != nil
	}
	return nil, false
}

// OfferFromRaw builds an offer from an untrusted object, dropping every field
// that fails validation. It reports false only when raw is not an object.
func OfferFromRaw(raw any) (*Offer, bool) {
	offer, _, ok := offerFromRaw(raw)
	return offer, ok
}

func offerFromRaw(raw any) (*Offer, []string, bool) {
	var obj map[string]any
	switch v := raw.(type) {
	case Offer:
		clean, dropped := sanitizeOffer(v)
		return &clean, dropped, true
	case *Offer:
		if v == nil {
			return nil, nil, false
		}
		clean, dropped := sanitizeOffer(*v)
		return &clean, dropped, true
	case map[string]any:
		obj = v
	case RawState:
		obj = map[string]any(v)
	default:
		return nil, nil, false
	}
	if obj == nil {
		return nil, nil, false
	}

	var (
		offer   Offer
		dropped []string
	)
	keep := func(key string, accept func(any) bool) {
		value, present := obj[key]
		if !present || value == nil {
			return
		}
		if !accept(value) {
			dropped = append(dropped, key)
		}
	}
	keep("total_price", func(v any) bool {
		f, ok := ParsePrice(v)
		if ok {
			offer.TotalPrice = &f
		}
		return ok
	})
	keep("payment_terms", func(v any) bool {
		s, ok := NormalizePaymentTerms(v)
		if ok {
			offer.PaymentTerms = &s
		}
		return ok
	})
	keep("payment_terms_days", func(v any) bool {
		n, ok := ParseDayCount(v)
		if ok {
			offer.PaymentTermsDays = &n
		}
		return ok
	})
	keep("delivery_date", func(v any) bool {
		s, ok := ParseDeliveryDate(v)
		if ok {
			offer.DeliveryDate = &s
		}
		return ok
	})
	keep("delivery_days", func(v any) bool {
		n, ok := ParseDayCount(v)
		if ok {
			offer.DeliveryDays = &n
		}
		return ok
	})
	keep("meta", func(v any) bool {
		m, ok := ParseMeta(v)
		if ok {
			offer.Meta = m
		}
		return ok
	})
	return &offer, dropped, true
}

// SanitizeOffer re-validates a typed offer, dropping invalid fields and
// canonicalising payment terms.
func SanitizeOffer(o Offer) Offer {
	clean, _ := sanitizeOffer(o)
	return clean
}

func sanitizeOffer(o Offer) (Offer, []string) {
	var (
		clean   Offer
		dropped []string
	)
	if o.TotalPrice != nil {
		if f, ok := ParsePrice(*o.TotalPrice); ok {
			clean.TotalPrice = &f
		} else {
			dropped = append(dropped, "total_price")
		}
	}
	if o.PaymentTerms != nil {
		if s, ok := NormalizePaymentTerms(*o.PaymentTerms); ok {
			clean.PaymentTerms = &s
		} else {
			dropped = append(dropped, "payment_terms")
		}
	}
	if o.PaymentTermsDays != nil {
		if n, ok := ParseDayCount(*o.PaymentTermsDays); ok {
			clean.PaymentTermsDays = &n
		} else {
			dropped = append(dropped, "payment_terms_days")
		}
	}
	if o.DeliveryDate != nil {
		if s, ok := ParseDeliveryDate(*o.DeliveryDate); ok {
			clean.DeliveryDate = &s
		} else {
			dropped = append(dropped, "delivery_date")
		}
	}
	if o.DeliveryDays != nil {
		if n, ok := ParseDayCount(*o.DeliveryDays); ok {
			clean.DeliveryDays = &n
		} else {
			dropped = append(dropped, "delivery_days")
		}
	}
	if o.Meta != nil {
		clean.Meta = o.Meta
	}
	return clean, dropped
}

func stringValue(raw any) (string, bool) {
	switch v := raw.(type) {
	case string:
		return v, true
	case Phase:
		return string(v), true
	case Preference:
		return string(v), true
	case Intent:
		return string(v), true
	}
	return "", false
}

func numberValue(raw any) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint32:
		return float64(v), true
	case uint64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	}
	return 0, false
}
