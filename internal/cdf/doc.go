// Package cdf reads and writes the classic family of netCDF binary
// formats: classic (version 1), 64-bit offset (version 2) and cdf5
// (version 5).
//
// All three share one layout. A header lists the dimensions, global
// attributes and variables; each variable entry records the byte offset of
// its data. Fixed-size variables follow the header in definition order.
// Record variables, whose outermost dimension is the unlimited one, are
// stored interleaved: record r of every record variable, then record r+1.
// All values are big-endian and every header field and fixed payload is
// padded to four bytes.
//
// The versions differ only in field widths: version 1 uses 32-bit offsets,
// version 2 64-bit offsets, and version 5 additionally widens every count
// and adds the unsigned and 64-bit integer types.
package cdf
