package config

import (
	"encoding/json"
	"testing"

	"go.viam.com/test"
)

func TestSchema(t *testing.T) {
	raw, err := json.Marshal(Schema())
	test.That(t, err, test.ShouldBeNil)

	var doc struct {
		Type                 string                     `json:"type"`
		Required             []string                   `json:"required"`
		AdditionalProperties *bool                      `json:"additionalProperties"`
		Properties           map[string]json.RawMessage `json:"properties"`
	}
	test.That(t, json.Unmarshal(raw, &doc), test.ShouldBeNil)
	test.That(t, doc.Type, test.ShouldEqual, "object")
	test.That(t, doc.Required, test.ShouldResemble, []string{"input"})
	test.That(t, doc.AdditionalProperties, test.ShouldNotBeNil)
	test.That(t, *doc.AdditionalProperties, test.ShouldBeFalse)
	for _, name := range []string{"input", "volume", "transform", "outputs", "render"} {
		test.That(t, doc.Properties, test.ShouldContainKey, name)
	}
	test.That(t, string(doc.Properties["transform"]), test.ShouldContainSubstring, `"array"`)
	test.That(t, string(doc.Properties["transform"]), test.ShouldContainSubstring, `"number"`)
	test.That(t, string(raw), test.ShouldContainSubstring, "point_size")
}
