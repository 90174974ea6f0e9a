// Package wire encodes and decodes the JSON bodies of the HTTP API and the
// order event payload with go-faster/jx.
package wire

import (
	"time"

	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
)

// money writes an amount as a JSON number with two decimals.
func money(e *jx.Encoder, d decimal.Decimal) {
	e.RawStr(d.StringFixed(2))
}

func timestamp(e *jx.Encoder, t time.Time) {
	e.Str(t.UTC().Format(time.RFC3339Nano))
}

func optStr(e *jx.Encoder, name, v string) {
	if v == "" {
		return
	}
	e.FieldStart(name)
	e.Str(v)
}
