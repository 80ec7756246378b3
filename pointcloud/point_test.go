package pointcloud

import (
	"image/color"
	"sort"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"
)

func TestDataMarshal(t *testing.T) {
	for _, d := range []Data{
		NewBasicData(),
		NewColoredData(color.NRGBA{10, 20, 30, 255}),
		NewValueData(-7),
		NewNormalData(r3.Vector{X: 0.5, Y: -0.5, Z: 0.25}).SetColor(color.NRGBA{1, 2, 3, 4}).SetValue(9),
	} {
		raw, err := d.MarshalBinary()
		test.That(t, err, test.ShouldBeNil)
		back := NewBasicData()
		test.That(t, back.UnmarshalBinary(raw), test.ShouldBeNil)
		test.That(t, back, test.ShouldResemble, d)
	}

	test.That(t, NewBasicData().UnmarshalBinary(nil), test.ShouldNotBeNil)
	err := NewBasicData().UnmarshalBinary([]byte{dataFlagColor, 1, 2})
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "invalid packet size")
}

func TestDataClone(t *testing.T) {
	d := NewColoredData(color.NRGBA{10, 20, 30, 255})
	cp := d.Clone()
	cp.SetColor(color.NRGBA{0, 0, 0, 255})
	r, g, b := d.RGB255()
	test.That(t, []uint8{r, g, b}, test.ShouldResemble, []uint8{10, 20, 30})
}

func TestVectorsSort(t *testing.T) {
	vs := Vectors{NewVector(2, 0, 0), NewVector(1, 5, 0), NewVector(1, 2, 0)}
	sort.Sort(vs)
	test.That(t, vs, test.ShouldResemble, Vectors{NewVector(1, 2, 0), NewVector(1, 5, 0), NewVector(2, 0, 0)})
}
