package merge

import (
	"context"
	"errors"

	"github.com/dreamware/ncmerge/internal/codec"
	"github.com/dreamware/ncmerge/internal/container"
	"github.com/dreamware/ncmerge/internal/ctxlog"
)

// Part names used in errors, reports and logs.
const (
	PartA = "a"
	PartB = "b"
)

// Result is the output of a merge.
type Result struct {
	Data   []byte
	Report *Report
}

// Merger merges two parts through a codec adapter. It holds no per-merge
// state and is safe for concurrent use.
type Merger struct {
	adapter codec.Adapter
}

// New returns a Merger using adapter, or the classic-family adapter when
// adapter is nil.
func New(adapter codec.Adapter) *Merger {
	if adapter == nil {
		adapter = codec.NewCDF()
	}
	return &Merger{adapter: adapter}
}

// Merge combines parts A and B into one serialized container in A's format.
// Definitions are first-writer-wins, attributes and payloads last-writer-wins.
func (m *Merger) Merge(ctx context.Context, a, b []byte) (*Result, error) {
	dst, rep, err := m.Assemble(ctx, a, b)
	if err != nil {
		return nil, err
	}

	buf, err := m.adapter.Finalize(dst)
	if err != nil {
		return nil, &Error{Kind: KindSerializationFailure, Op: "finalize", Err: err}
	}
	defer buf.Release()
	if buf.Len() == 0 || buf.Bytes() == nil {
		return nil, &Error{Kind: KindSerializationFailure, Op: "finalize", Err: errors.New("empty output buffer")}
	}
	data := make([]byte, buf.Len())
	copy(data, buf.Bytes())

	ctxlog.FromContext(ctx).Debug("merge complete", "format", rep.Format, "bytes", len(data),
		"skipped", len(rep.Skipped), "payload_skips", len(rep.PayloadSkips))
	return &Result{Data: data, Report: rep}, nil
}

// Assemble runs every merge step except serialization and returns the
// destination container in data mode.
func (m *Merger) Assemble(ctx context.Context, a, b []byte) (*container.Container, *Report, error) {
	log := ctxlog.FromContext(ctx)

	srcA, err := m.adapter.Open(a)
	if err != nil {
		return nil, nil, &Error{Kind: KindInvalidInput, Op: "open", Name: PartA, Err: err}
	}
	srcB, err := m.adapter.Open(b)
	if err != nil {
		return nil, nil, &Error{Kind: KindInvalidInput, Op: "open", Name: PartB, Err: err}
	}

	rep := &Report{Format: srcA.Format().String()}
	if srcA.Format() != srcB.Format() {
		rep.Mismatch = &FormatMismatch{A: srcA.Format().String(), B: srcB.Format().String()}
		log.Warn("parts declare different formats, using part a's",
			"error", &Error{Kind: KindFormatMismatch, Op: "choose format", Err: errors.New(rep.Mismatch.A + " vs " + rep.Mismatch.B)})
	}

	dst, err := m.adapter.Create(srcA.Format())
	if err != nil {
		return nil, nil, &Error{Kind: KindDefinitionConflict, Op: "create", Err: err}
	}

	parts := []struct {
		name string
		src  *container.Container
	}{{PartA, srcA}, {PartB, srcB}}

	for _, p := range parts {
		s, err := MergeSchema(ctx, dst, p.src)
		rep.addSchema(p.name, s)
		if err != nil {
			return nil, nil, wrapPart(p.name, err)
		}
	}
	if err := dst.EndDef(); err != nil {
		return nil, nil, &Error{Kind: KindDefinitionConflict, Op: "end define mode", Err: err}
	}
	for _, p := range parts {
		d, err := CopyData(ctx, dst, p.src)
		rep.addData(p.name, d)
		if err != nil {
			return nil, nil, wrapPart(p.name, err)
		}
	}
	return dst, rep, nil
}

// wrapPart records which part a merge error came from.
func wrapPart(part string, err error) error {
	var me *Error
	if !errors.As(err, &me) {
		return err
	}
	return &Error{Kind: me.Kind, Op: me.Op + " from part " + part, Name: me.Name, Err: me.Err}
}
