package config

import (
	"reflect"

	"github.com/invopop/jsonschema"

	"go.viam.com/pccrop/spatialmath"
)

var transformType = reflect.TypeOf(spatialmath.Transform{})

// Schema returns the JSON schema of job documents. Unknown fields are not allowed, matching how
// jobs are decoded.
func Schema() *jsonschema.Schema {
	r := &jsonschema.Reflector{
		ExpandedStruct: true,
		Mapper: func(t reflect.Type) *jsonschema.Schema {
			if t != transformType && t != reflect.PointerTo(transformType) {
				return nil
			}
			return &jsonschema.Schema{
				Type:        "array",
				Description: "4x4 homogeneous transform as 4 rows of 4 numbers",
				Items: &jsonschema.Schema{
					Type:  "array",
					Items: &jsonschema.Schema{Type: "number"},
				},
			}
		},
	}
	return r.Reflect(&Job{})
}
