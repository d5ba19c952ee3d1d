// Package syntax defines the block-level bitstream syntax: symbol order,
// context derivation, motion vector prediction and reconstruction. Every
// function runs against a Coder, so the encoder's writer, its rate
// estimator and the decoder walk exactly the same code and keep their
// adaptive contexts in step.
package syntax

import (
	"github.com/deepteams/av1/internal/bitio"
	"github.com/deepteams/av1/internal/cdf"
)

// Coder codes one value at a time. Writers and estimators consume the
// value passed in and return it unchanged; readers ignore it and return
// the decoded value.
type Coder interface {
	Symbol(k cdf.Kind, ctx int, s int) int
	Bool(k cdf.Kind, ctx int, b bool) bool
	Literal(v uint32, n int) uint32
	Reading() bool
}

// Writer codes symbols into a SymbolWriter, adapting Store.
type Writer struct {
	W     *bitio.SymbolWriter
	Store *cdf.Store
}

// Symbol implements Coder.
func (w *Writer) Symbol(k cdf.Kind, ctx int, s int) int {
	n := cdf.Symbols(k)
	f := w.Store.Mutable(k, ctx)
	w.W.WriteSymbol(s, f, n)
	cdf.Update(f, s, n)
	return s
}

// Bool implements Coder.
func (w *Writer) Bool(k cdf.Kind, ctx int, b bool) bool {
	f := w.Store.Mutable(k, ctx)
	w.W.WriteBool(b, f)
	cdf.Update(f, b2i(b), 2)
	return b
}

// Literal implements Coder.
func (w *Writer) Literal(v uint32, n int) uint32 {
	w.W.WriteLiteral(v, n)
	return v
}

// Reading implements Coder.
func (w *Writer) Reading() bool { return false }

// Estimator accumulates the cost of the symbols it is given, in 1/256 bit,
// adapting Store exactly as a Writer would.
type Estimator struct {
	Store *cdf.Store
	Bits  int
}

// Symbol implements Coder.
func (e *Estimator) Symbol(k cdf.Kind, ctx int, s int) int {
	n := cdf.Symbols(k)
	f := e.Store.Mutable(k, ctx)
	e.Bits += cdf.Cost(f, s)
	cdf.Update(f, s, n)
	return s
}

// Bool implements Coder.
func (e *Estimator) Bool(k cdf.Kind, ctx int, b bool) bool {
	f := e.Store.Mutable(k, ctx)
	s := b2i(b)
	e.Bits += cdf.Cost(f, s)
	cdf.Update(f, s, 2)
	return b
}

// Literal implements Coder.
func (e *Estimator) Literal(v uint32, n int) uint32 {
	e.Bits += cdf.LiteralCost(n)
	return v
}

// Reading implements Coder.
func (e *Estimator) Reading() bool { return false }

// Reader decodes symbols from a SymbolReader, adapting Store.
type Reader struct {
	R     *bitio.SymbolReader
	Store *cdf.Store
}

// Symbol implements Coder.
func (r *Reader) Symbol(k cdf.Kind, ctx int, _ int) int {
	n := cdf.Symbols(k)
	f := r.Store.Mutable(k, ctx)
	s := r.R.ReadSymbol(f, n)
	cdf.Update(f, s, n)
	return s
}

// Bool implements Coder.
func (r *Reader) Bool(k cdf.Kind, ctx int, _ bool) bool {
	f := r.Store.Mutable(k, ctx)
	b := r.R.ReadBool(f)
	cdf.Update(f, b2i(b), 2)
	return b
}

// Literal implements Coder.
func (r *Reader) Literal(_ uint32, n int) uint32 {
	return r.R.ReadLiteral(n)
}

// Reading implements Coder.
func (r *Reader) Reading() bool { return true }

func b2i(b bool) int {
	if b {
		return 1
	}
	return 0
}
