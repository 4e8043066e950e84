package model

// AttachmentKey identifies one slot in a candle's attachment bag.
type AttachmentKey string

const (
	KeyIndicators           AttachmentKey = "indicators"
	KeyNormalizedIndicators AttachmentKey = "normalized_indicators"
	KeyReturns              AttachmentKey = "returns"
	KeyIndicatorState       AttachmentKey = "indicator_state"
)

// Attachment is a computed payload stored on a candle. Each payload type
// reports the single key it lives under, so a key always maps to one
// concrete payload type.
type Attachment interface {
	AttachmentKey() AttachmentKey
}

// Attachments is the keyed bag of payloads carried by a candle.
// The zero value is ready to use.
type Attachments struct {
	m map[AttachmentKey]Attachment
}

// Attach stores p under its key, replacing any prior payload with that key.
func (a *Attachments) Attach(p Attachment) {
	if p == nil {
		return
	}
	if a.m == nil {
		a.m = make(map[AttachmentKey]Attachment, 4)
	}
	a.m[p.AttachmentKey()] = p
}

// Get returns the payload stored under key. The payload is returned as
// stored, not copied.
func (a *Attachments) Get(key AttachmentKey) (Attachment, bool) {
	p, ok := a.m[key]
	return p, ok
}

// Has reports whether a payload is stored under key.
func (a *Attachments) Has(key AttachmentKey) bool {
	_, ok := a.m[key]
	return ok
}

// Remove deletes the payload stored under key, if any.
func (a *Attachments) Remove(key AttachmentKey) {
	delete(a.m, key)
}

// Len returns the number of attached payloads.
func (a *Attachments) Len() int { return len(a.m) }

// Each calls fn for every attached payload. Iteration order is unspecified.
func (a *Attachments) Each(fn func(AttachmentKey, Attachment)) {
	for k, v := range a.m {
		fn(k, v)
	}
}

// IndicatorsOf returns the indicator set attached to c.
func IndicatorsOf(c *Candle) (*Indicators, bool) {
	p, ok := c.Attachments.Get(KeyIndicators)
	if !ok {
		return nil, false
	}
	ind, ok := p.(*Indicators)
	return ind, ok
}

// NormalizedOf returns the normalized indicator set attached to c.
func NormalizedOf(c *Candle) (*NormalizedIndicators, bool) {
	p, ok := c.Attachments.Get(KeyNormalizedIndicators)
	if !ok {
		return nil, false
	}
	n, ok := p.(*NormalizedIndicators)
	return n, ok
}

// ReturnsOf returns the return metrics attached to c.
func ReturnsOf(c *Candle) (*Returns, bool) {
	p, ok := c.Attachments.Get(KeyReturns)
	if !ok {
		return nil, false
	}
	r, ok := p.(*Returns)
	return r, ok
}
