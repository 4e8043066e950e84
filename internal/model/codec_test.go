package model

import (
	"encoding/json"
	"testing"
	"time"
)

func TestAttachments_JSON(t *testing.T) {
	var a Attachments
	ind := NewIndicators()
	ind.Set("sma5", 101.5)
	a.Attach(ind)
	a.Attach(&Returns{ReferenceTS: time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC), Change: 250, Pct: 0.025})

	raw, err := json.Marshal(a)
	if err != nil {
		t.Fatal(err)
	}

	var back Attachments
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatal(err)
	}
	if back.Len() != 2 {
		t.Fatalf("expected 2 payloads, got %d", back.Len())
	}
	c := &Candle{Attachments: back}
	if got, ok := IndicatorsOf(c); !ok || got.Values["sma5"] != 101.5 {
		t.Errorf("indicators did not survive: %+v", got)
	}
	if r, ok := ReturnsOf(c); !ok || r.Change != 250 {
		t.Errorf("returns did not survive: %+v", r)
	}
}

func TestAttachments_UnknownKeysKept(t *testing.T) {
	var a Attachments
	if err := json.Unmarshal([]byte(`{"mystery":{"x":1},"returns":{"change":5}}`), &a); err != nil {
		t.Fatal(err)
	}
	if a.Len() != 2 || !a.Has(KeyReturns) {
		t.Fatalf("expected returns and the unknown payload, got %d payloads", a.Len())
	}
	p, ok := a.Get("mystery")
	if !ok {
		t.Fatal("unknown payload dropped")
	}
	if raw, ok := p.(*RawAttachment); !ok || string(raw.Data) != `{"x":1}` {
		t.Errorf("unknown payload: %#v", p)
	}

	// A candle rewritten by a pipeline keeps the payload it cannot decode.
	a.Attach(&Returns{Change: 7})
	out, err := json.Marshal(a)
	if err != nil {
		t.Fatal(err)
	}
	var back map[string]json.RawMessage
	if err := json.Unmarshal(out, &back); err != nil {
		t.Fatal(err)
	}
	if string(back["mystery"]) != `{"x":1}` {
		t.Errorf("re-encoded unknown payload: %s", back["mystery"])
	}

	empty, _ := json.Marshal(Attachments{})
	if string(empty) != "{}" {
		t.Errorf("expected {}, got %s", empty)
	}
}
