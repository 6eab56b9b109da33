package container

// Description is a serializable summary of a container's schema. It carries
// no payload bytes, only their sizes.
type Description struct {
	Format     string          `json:"format"`
	Dimensions []DimensionInfo `json:"dimensions"`
	Variables  []VariableInfo  `json:"variables"`
	Attributes []AttributeInfo `json:"attributes,omitempty"`
}

// DimensionInfo summarizes a dimension.
type DimensionInfo struct {
	Name      string `json:"name"`
	Length    uint64 `json:"length"`
	Unlimited bool   `json:"unlimited,omitempty"`
}

// VariableInfo summarizes a variable.
type VariableInfo struct {
	Name        string          `json:"name"`
	Type        string          `json:"type"`
	Dimensions  []string        `json:"dimensions"`
	Shape       []uint64        `json:"shape"`
	Attributes  []AttributeInfo `json:"attributes,omitempty"`
	Chunking    *Chunking       `json:"chunking,omitempty"`
	Compression *Compression    `json:"compression,omitempty"`
	Bytes       uint64          `json:"bytes"`
}

// AttributeInfo summarizes an attribute with its decoded value.
type AttributeInfo struct {
	Name  string `json:"name"`
	Type  string `json:"type"`
	Value any    `json:"value"`
}

// Describe summarizes the schema of c.
func Describe(c *Container) Description {
	desc := Description{
		Format:     c.format.String(),
		Dimensions: make([]DimensionInfo, 0, len(c.dims)),
		Variables:  make([]VariableInfo, 0, len(c.vars)),
		Attributes: describeAttributes(c.attrs),
	}
	for _, d := range c.dims {
		desc.Dimensions = append(desc.Dimensions, DimensionInfo{Name: d.Name, Length: d.Len, Unlimited: d.Unlimited})
	}
	for _, v := range c.vars {
		desc.Variables = append(desc.Variables, VariableInfo{
			Name:        v.name,
			Type:        v.typ.String(),
			Dimensions:  v.Dims(),
			Shape:       v.Shape(),
			Attributes:  describeAttributes(v.attrs),
			Chunking:    v.Chunking(),
			Compression: v.Compression(),
			Bytes:       uint64(len(v.data)),
		})
	}
	return desc
}

func describeAttributes(list attrList) []AttributeInfo {
	if len(list) == 0 {
		return nil
	}
	out := make([]AttributeInfo, len(list))
	for i, a := range list {
		out[i] = AttributeInfo{Name: a.Name, Type: a.Value.typ.String(), Value: a.Value.Values()}
	}
	return out
}
