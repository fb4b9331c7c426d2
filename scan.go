package stablestore

import (
	"bytes"
	"context"
	"log/slog"
)

// traceScans logs every cursor move at debug level.
const traceScans = false

// RawRange selects a contiguous run of keys in a bucket. The constructor
// names encode the bound kinds, lower bound first: O is open, I inclusive,
// E exclusive. RawIE(a, b) is a <= k < b.
//
// Bounds are exact byte strings. A non-nil Prefix further restricts the
// range to keys starting with it, and any bound must itself carry the prefix.
type RawRange struct {
	Prefix   []byte
	Lower    []byte
	Upper    []byte
	LowerInc bool
	UpperInc bool
	Reverse  bool
}

func RawOO() RawRange                            { return RawRange{} }
func RawIO(l []byte) RawRange                    { return RawRange{Lower: l, LowerInc: true} }
func RawEO(l []byte) RawRange                    { return RawRange{Lower: l} }
func RawOI(u []byte) RawRange                    { return RawRange{Upper: u, UpperInc: true} }
func RawOE(u []byte) RawRange                    { return RawRange{Upper: u} }
func RawII(l, u []byte) RawRange                 { return RawRange{Lower: l, LowerInc: true, Upper: u, UpperInc: true} }
func RawIE(l, u []byte) RawRange                 { return RawRange{Lower: l, LowerInc: true, Upper: u} }
func RawEI(l, u []byte) RawRange                 { return RawRange{Lower: l, Upper: u, UpperInc: true} }
func RawEE(l, u []byte) RawRange                 { return RawRange{Lower: l, Upper: u} }
func RawPrefix(p []byte) RawRange                { return RawRange{Prefix: p} }
func (rang RawRange) Prefixed(p []byte) RawRange { rang.Prefix = p; return rang }
func (rang RawRange) Reversed() RawRange         { rang.Reverse = true; return rang }

// after narrows the range to the keys strictly past k in iteration order.
// Batched scans use it to resume where the previous batch stopped.
func (rang RawRange) after(k []byte) RawRange {
	if rang.Reverse {
		rang.Upper, rang.UpperInc = k, false
	} else {
		rang.Lower, rang.LowerInc = k, false
	}
	return rang
}

// startBound is the bound the scan seeks to: the upper one when reversed.
func (rang *RawRange) startBound() (bound []byte, inclusive bool) {
	if rang.Reverse {
		return rang.Upper, rang.UpperInc
	}
	return rang.Lower, rang.LowerInc
}

// stopBound is the bound that ends the scan.
func (rang *RawRange) stopBound() (bound []byte, inclusive bool) {
	if rang.Reverse {
		return rang.Lower, rang.LowerInc
	}
	return rang.Upper, rang.UpperInc
}

func (rang *RawRange) seekForward(c storageCursor, tr scanTracer) ([]byte, []byte) {
	switch {
	case rang.Lower != nil:
		k, v := c.Seek(rang.Lower)
		tr.trace("SEEK lower", rang.Lower, k)
		if k != nil && !rang.LowerInc && bytes.Equal(k, rang.Lower) {
			k, v = c.Next()
		}
		return k, v
	case rang.Prefix != nil:
		k, v := c.Seek(rang.Prefix)
		tr.trace("SEEK prefix", rang.Prefix, k)
		return k, v
	default:
		k, v := c.First()
		tr.trace("FIRST", nil, k)
		return k, v
	}
}

func (rang *RawRange) seekReverse(c storageCursor, tr scanTracer) ([]byte, []byte) {
	switch {
	case rang.Upper != nil:
		k, v := c.Seek(rang.Upper)
		tr.trace("SEEK upper", rang.Upper, k)
		if k == nil {
			return c.Last()
		}
		if rang.UpperInc && bytes.Equal(k, rang.Upper) {
			return k, v
		}
		return c.Prev()
	case rang.Prefix != nil:
		k, v := c.SeekLast(rang.Prefix)
		tr.trace("SEEK_LAST prefix", rang.Prefix, k)
		return k, v
	default:
		k, v := c.Last()
		tr.trace("LAST", nil, k)
		return k, v
	}
}

func (rang *RawRange) first(c storageCursor, tr scanTracer) ([]byte, []byte) {
	if b, _ := rang.startBound(); b != nil && rang.Prefix != nil && !bytes.HasPrefix(b, rang.Prefix) {
		panic("range bound does not match prefix")
	}
	var k, v []byte
	if rang.Reverse {
		k, v = rang.seekReverse(c, tr)
	} else {
		k, v = rang.seekForward(c, tr)
	}
	return rang.filter(k, v, tr)
}

func (rang *RawRange) step(c storageCursor, tr scanTracer) ([]byte, []byte) {
	var k, v []byte
	if rang.Reverse {
		k, v = c.Prev()
		tr.trace("PREV", nil, k)
	} else {
		k, v = c.Next()
		tr.trace("NEXT", nil, k)
	}
	return rang.filter(k, v, tr)
}

// filter returns k and v if k still lies within the range, or nils.
func (rang *RawRange) filter(k, v []byte, tr scanTracer) ([]byte, []byte) {
	if k == nil {
		return nil, nil
	}
	if rang.Prefix != nil && !bytes.HasPrefix(k, rang.Prefix) {
		tr.trace("STOP prefix", rang.Prefix, k)
		return nil, nil
	}
	if stop, inc := rang.stopBound(); stop != nil {
		c := bytes.Compare(k, stop)
		if rang.Reverse {
			c = -c
		}
		if c > 0 || (c == 0 && !inc) {
			tr.trace("STOP bound", stop, k)
			return nil, nil
		}
	}
	return k, v
}

func (rang *RawRange) newCursor(c storageCursor, logger *slog.Logger) *RawRangeCursor {
	return &RawRangeCursor{rang: *rang, c: c, tr: scanTracer{logger}}
}

type scanTracer struct {
	logger *slog.Logger
}

func (tr scanTracer) trace(op string, arg, key []byte) {
	if traceScans {
		tr.logger.LogAttrs(context.Background(), slog.LevelDebug, "scan: "+op, hexAttr("arg", arg), hexAttr("key", key))
	}
}

// RawRangeCursor walks a RawRange within a single storage transaction.
type RawRangeCursor struct {
	rang    RawRange
	c       storageCursor
	tr      scanTracer
	k, v    []byte
	started bool
}

func (c *RawRangeCursor) Next() bool {
	switch {
	case !c.started:
		c.started = true
		c.k, c.v = c.rang.first(c.c, c.tr)
	case c.k != nil:
		c.k, c.v = c.rang.step(c.c, c.tr)
	}
	return c.k != nil
}

func (c *RawRangeCursor) Key() []byte   { return c.k }
func (c *RawRangeCursor) Value() []byte { return c.v }
