// Package merge combines two containers that describe the same dataset into
// one.
//
// A merge opens both parts, creates an empty destination in part A's
// format, and merges the schema of A and then B into it. The destination
// then leaves define mode, the payloads of A and then B are copied in, and
// the result is serialized.
//
// The policy is override, applied asymmetrically:
//
//   - dimensions, variables and a variable's chunking and compression are
//     defined by whichever part has them first; later same-named
//     definitions are ignored (differing dimensions are logged);
//   - attributes, global or per variable, are always overwritten, so B's
//     values win on collisions;
//   - payloads are written for every shared variable, so B's data wins.
//
// All names are resolved through the destination's own indices; nothing
// positional is carried between containers.
//
// A part that cannot be opened, a dimension or global attribute that
// cannot be defined, and a failed serialization abort the merge with an
// *Error whose Kind classifies the failure. A variable that cannot be
// defined is removed again and skipped. A payload that does not fit its
// destination variable is skipped. Both are logged through the context
// logger and listed in the Report. Parts of differing formats are only a
// warning.
//
// Chunking and compression only exist in the enhanced formats, which the
// CDF adapter models in memory but cannot open from or write to bytes. A
// layout is therefore carried only when MergeSchema is called on in-memory
// enhanced containers; a Merge of uploaded classic, 64-bit offset or cdf5
// parts never produces one.
//
// Appending the records of B to those of A along the unlimited dimension is
// not supported: a shared record variable ends up with B's records, padded
// with fill when A had more.
package merge
