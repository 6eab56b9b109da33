package merge

import (
	"context"
	"errors"
	"fmt"

	"github.com/dreamware/ncmerge/internal/container"
	"github.com/dreamware/ncmerge/internal/ctxlog"
)

// MergeSchema copies into dst every definition of src that dst does not
// already hold by name. dst must be in define mode.
//
// Global attributes are copied first, then dimensions, then variables.
// Attributes always overwrite; dimensions, variables and their storage
// layout never do. A failure on a global attribute or a dimension aborts
// with a KindDefinitionConflict error. A failure while adding a variable
// removes that variable again and is only recorded in the report.
func MergeSchema(ctx context.Context, dst, src *container.Container) (*SchemaReport, error) {
	log := ctxlog.FromContext(ctx)
	rep := &SchemaReport{}

	globals, err := src.Attributes(container.Global)
	if err != nil {
		return rep, err
	}
	for _, a := range globals {
		if err := dst.PutAttribute(container.Global, a.Name, a.Value); err != nil {
			return rep, &Error{Kind: KindDefinitionConflict, Op: "copy global attribute", Name: a.Name, Err: err}
		}
	}

	for _, d := range src.Dimensions() {
		if existing, ok := dst.Dimension(d.Name); ok {
			if dimensionsDiffer(existing, d) {
				log.Warn("dimension differs from existing definition, keeping existing",
					"dimension", d.Name, "kept_len", existing.Len, "kept_unlimited", existing.Unlimited,
					"ignored_len", d.Len, "ignored_unlimited", d.Unlimited)
				rep.DimensionConflicts = append(rep.DimensionConflicts, DimensionConflict{Kept: existing, Ignored: d})
			}
			continue
		}
		length := d.Len
		if d.Unlimited {
			length = 0
		}
		if err := dst.DefineDimension(d.Name, length, d.Unlimited); err != nil {
			return rep, &Error{Kind: KindDefinitionConflict, Op: "define dimension", Name: d.Name, Err: err}
		}
	}

	for _, v := range src.Variables() {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		if _, ok := dst.Variable(v.Name()); ok {
			copyVariableAttributes(ctx, dst, v, rep)
			continue
		}
		if err := defineVariable(ctx, dst, v, rep); err != nil {
			log.Warn("skipping variable", "variable", v.Name(), "error", err)
			rep.Skipped = append(rep.Skipped, Skip{Name: v.Name(), Reason: err.Error()})
			continue
		}
		rep.Defined = append(rep.Defined, v.Name())
	}
	return rep, nil
}

// dimensionsDiffer reports whether a source dimension cannot be represented
// by the existing destination dimension. Unlimited lengths are not compared.
func dimensionsDiffer(dst, src container.Dimension) bool {
	if dst.Unlimited != src.Unlimited {
		return true
	}
	return !dst.Unlimited && dst.Len != src.Len
}

// defineVariable adds v to dst with its attributes and storage layout. On
// error nothing of v is left in dst.
func defineVariable(ctx context.Context, dst *container.Container, v *container.Variable, rep *SchemaReport) error {
	if _, err := dst.DefineVariable(v.Name(), v.Type(), v.Dims()); err != nil {
		return err
	}
	rollback := func(cause error) error {
		if err := dst.DeleteVariable(v.Name()); err != nil {
			return errors.Join(cause, fmt.Errorf("rollback: %w", err))
		}
		return cause
	}
	for _, a := range v.Attributes() {
		if err := dst.PutAttribute(v.Name(), a.Name, a.Value); err != nil {
			return rollback(fmt.Errorf("attribute %q: %w", a.Name, err))
		}
	}

	var dropped bool
	if ch := v.Chunking(); ch != nil {
		if err := dst.SetChunking(v.Name(), *ch); err != nil {
			if !errors.Is(err, container.ErrNotEnhanced) {
				return rollback(fmt.Errorf("chunking: %w", err))
			}
			dropped = true
		}
	}
	if comp := v.Compression(); comp != nil {
		if err := dst.SetCompression(v.Name(), *comp); err != nil {
			if !errors.Is(err, container.ErrNotEnhanced) {
				return rollback(fmt.Errorf("compression: %w", err))
			}
			dropped = true
		}
	}
	if dropped {
		ctxlog.FromContext(ctx).Warn("destination format cannot store chunking or compression, dropping layout",
			"variable", v.Name(), "format", dst.Format().String())
		rep.DroppedLayouts = append(rep.DroppedLayouts, Skip{Name: v.Name(), Reason: container.ErrNotEnhanced.Error()})
	}
	return nil
}

// copyVariableAttributes overwrites the attributes of an existing
// destination variable. Failures are recorded and never abort.
func copyVariableAttributes(ctx context.Context, dst *container.Container, v *container.Variable, rep *SchemaReport) {
	for _, a := range v.Attributes() {
		if err := dst.PutAttribute(v.Name(), a.Name, a.Value); err != nil {
			ctxlog.FromContext(ctx).Warn("attribute not copied",
				"variable", v.Name(), "attribute", a.Name, "error", err)
			rep.AttributeFailures = append(rep.AttributeFailures, Skip{
				Name:   v.Name() + "." + a.Name,
				Reason: err.Error(),
			})
		}
	}
}
