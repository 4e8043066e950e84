package model

import (
	"encoding/json"
	"fmt"
	"sync"
)

var (
	codecMu   sync.RWMutex
	factories = map[AttachmentKey]func() Attachment{
		KeyIndicators:           func() Attachment { return NewIndicators() },
		KeyNormalizedIndicators: func() Attachment { return NewNormalizedIndicators() },
		KeyReturns:              func() Attachment { return &Returns{} },
	}
)

// RegisterAttachment makes payloads stored under key decodable by
// UnmarshalAttachments. Packages that define their own payload types call it
// from init.
func RegisterAttachment(key AttachmentKey, newFn func() Attachment) {
	codecMu.Lock()
	defer codecMu.Unlock()
	factories[key] = newFn
}

// MarshalJSON encodes the bag as an object keyed by attachment key.
func (a Attachments) MarshalJSON() ([]byte, error) {
	if len(a.m) == 0 {
		return []byte("{}"), nil
	}
	return json.Marshal(a.m)
}

// RawAttachment holds a payload whose key has no registered type. It is
// re-encoded unchanged, so rewriting a stored candle keeps payloads written
// by other producers.
type RawAttachment struct {
	Key  AttachmentKey
	Data json.RawMessage
}

func (r *RawAttachment) AttachmentKey() AttachmentKey { return r.Key }

// MarshalJSON returns the payload as it was decoded.
func (r *RawAttachment) MarshalJSON() ([]byte, error) {
	if len(r.Data) == 0 {
		return []byte("null"), nil
	}
	return r.Data, nil
}

// UnmarshalJSON decodes an object written by MarshalJSON. Keys without a
// registered payload type are kept as *RawAttachment.
func (a *Attachments) UnmarshalJSON(data []byte) error {
	var raw map[AttachmentKey]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("attachments: %w", err)
	}

	codecMu.RLock()
	defer codecMu.RUnlock()
	for key, msg := range raw {
		newFn, ok := factories[key]
		if !ok {
			a.Attach(&RawAttachment{Key: key, Data: msg})
			continue
		}
		p := newFn()
		if err := json.Unmarshal(msg, p); err != nil {
			return fmt.Errorf("attachments: %s: %w", key, err)
		}
		a.Attach(p)
	}
	return nil
}
