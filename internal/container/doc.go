// Package container is the in-memory model of a netCDF-style scientific
// container: dimensions, typed variables with their payloads, attributes,
// and the chunking and compression descriptors of the enhanced formats.
//
// A container follows the two-phase protocol of the format family. It is
// created in define mode, where dimensions, variables, attributes and
// storage layout may be added; EndDef moves it to data mode, where only
// payload bytes may change. Containers decoded from bytes are sealed
// read-only.
//
// Payloads are kept in the external representation of the classic format
// (big-endian, row-major, outermost dimension first) so that copying a
// variable between containers is a byte copy. The model keeps every
// payload consistent with its variable's shape: new variables start as fill
// values, and growing the unlimited dimension appends fill records to every
// record variable.
//
// Example:
//
//	c, _ := container.New(container.FormatClassic)
//	_ = c.DefineDimension("time", 3, false)
//	_, _ = c.DefineVariable("temp", container.Float, []string{"time"})
//	_ = c.PutAttribute("temp", "units", container.Text("K"))
//	_ = c.EndDef()
//	_ = c.PutData("temp", container.EncodeFloat32s(1, 2, 3))
package container
