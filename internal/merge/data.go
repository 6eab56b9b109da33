package merge

import (
	"context"
	"errors"
	"fmt"

	"github.com/dreamware/ncmerge/internal/container"
	"github.com/dreamware/ncmerge/internal/ctxlog"
)

// CopyData writes the payload of every src variable that dst holds by name,
// replacing whatever dst held before. dst must be in data mode.
//
// Record variables take all of the source's records: a longer source grows
// the unlimited dimension and a shorter one leaves fill records behind it.
// A payload whose type or fixed shape does not fit the destination variable
// is skipped and recorded.
func CopyData(ctx context.Context, dst, src *container.Container) (*DataReport, error) {
	log := ctxlog.FromContext(ctx)
	rep := &DataReport{}
	for _, sv := range src.Variables() {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		dv, ok := dst.Variable(sv.Name())
		if !ok {
			continue
		}
		if reason := shapeMismatch(dv, sv); reason != "" {
			log.Warn("skipping payload", "variable", sv.Name(), "reason", reason)
			rep.Skipped = append(rep.Skipped, Skip{Name: sv.Name(), Reason: reason})
			continue
		}
		if err := dst.PutData(sv.Name(), sv.Data()); err != nil {
			if errors.Is(err, container.ErrBadDataSize) {
				log.Warn("skipping payload", "variable", sv.Name(), "error", err)
				rep.Skipped = append(rep.Skipped, Skip{Name: sv.Name(), Reason: err.Error()})
				continue
			}
			return rep, &Error{Kind: KindSerializationFailure, Op: "write payload", Name: sv.Name(), Err: err}
		}
		rep.Copied = append(rep.Copied, sv.Name())
	}
	return rep, nil
}

// shapeMismatch explains why src's payload cannot be written to dst, or
// returns "" when it can. Record counts may differ.
func shapeMismatch(dst, src *container.Variable) string {
	if dst.Type() != src.Type() {
		return fmt.Sprintf("type %v does not match destination type %v", src.Type(), dst.Type())
	}
	if dst.IsRecord() != src.IsRecord() {
		return "record and fixed variables cannot exchange payloads"
	}
	ds, ss := dst.Shape(), src.Shape()
	if len(ds) != len(ss) {
		return fmt.Sprintf("rank %d does not match destination rank %d", len(ss), len(ds))
	}
	for i := range ds {
		if i == 0 && dst.IsRecord() {
			continue
		}
		if ds[i] != ss[i] {
			return fmt.Sprintf("shape %v does not match destination shape %v", ss, ds)
		}
	}
	return ""
}
