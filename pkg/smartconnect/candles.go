package smartconnect

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Interval names accepted by getCandleData.
type Interval string

const (
	OneMinute Interval = "ONE_MINUTE"
	OneHour   Interval = "ONE_HOUR"
	OneDay    Interval = "ONE_DAY"
)

// dateLayout is the fromdate/todate format expected by the API.
const dateLayout = "2006-01-02 15:04"

// IST is the exchange time zone used for request dates.
var IST = time.FixedZone("IST", 5*3600+1800)

// CandleParams selects a historical range for one instrument.
type CandleParams struct {
	Exchange    string
	SymbolToken string
	Interval    Interval
	From, To    time.Time
}

// Bar is one historical OHLCV row. Prices are in rupees as returned.
type Bar struct {
	TS     time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume int64
}

// GetCandles fetches historical bars, oldest first.
func (sc *SmartConnect) GetCandles(ctx context.Context, p CandleParams) ([]Bar, error) {
	params := map[string]any{
		"exchange":    p.Exchange,
		"symboltoken": p.SymbolToken,
		"interval":    string(p.Interval),
		"fromdate":    p.From.In(IST).Format(dateLayout),
		"todate":      p.To.In(IST).Format(dateLayout),
	}
	res, err := sc.do(ctx, http.MethodPost, routeCandleData, params)
	if err != nil {
		return nil, err
	}
	return parseBars(res.Data)
}

// parseBars decodes rows of [ts, open, high, low, close, volume].
func parseBars(data json.RawMessage) ([]Bar, error) {
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}
	var rows [][]json.RawMessage
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("smartconnect: candle data: %w", err)
	}
	bars := make([]Bar, 0, len(rows))
	for i, row := range rows {
		if len(row) < 6 {
			return nil, fmt.Errorf("smartconnect: candle row %d: want 6 fields, got %d", i, len(row))
		}
		var (
			b  Bar
			ts string
			v  float64
		)
		if err := json.Unmarshal(row[0], &ts); err != nil {
			return nil, fmt.Errorf("smartconnect: candle row %d ts: %w", i, err)
		}
		t, err := time.Parse(time.RFC3339, ts)
		if err != nil {
			return nil, fmt.Errorf("smartconnect: candle row %d ts: %w", i, err)
		}
		b.TS = t
		for j, dst := range []*float64{&b.Open, &b.High, &b.Low, &b.Close, &v} {
			if err := json.Unmarshal(row[j+1], dst); err != nil {
				return nil, fmt.Errorf("smartconnect: candle row %d field %d: %w", i, j+1, err)
			}
		}
		b.Volume = int64(v)
		bars = append(bars, b)
	}
	return bars, nil
}
