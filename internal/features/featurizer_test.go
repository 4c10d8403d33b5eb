package features

import "testing"

func sampleFields() map[string]string {
	return map[string]string{
		"20":  "LC123",
		"32B": "USD100000,00",
		"59":  "BENE",
	}
}

func TestFeaturizeDimension(t *testing.T) {
	vec := Featurize(sampleFields(), "BANKBEBB", "BANKUS33")
	if len(vec) != Dim() {
		t.Fatalf("expected %d dimensions, got %d", Dim(), len(vec))
	}
}

func TestFeaturizeDeterministic(t *testing.T) {
	a := Featurize(sampleFields(), "BANKBEBB", "BANKUS33")
	b := Featurize(sampleFields(), "BANKBEBB", "BANKUS33")
	for i := range a {
		if a[i] != b[i] {
			t.Fatal("featurization should be deterministic")
		}
	}
}

func TestFeaturizeBounded(t *testing.T) {
	vec := Featurize(sampleFields(), "BANKBEBB", "BANKUS33")
	for i, x := range vec {
		if x < 0 || x > 1 {
			t.Errorf("feature %d out of [0,1]: %f", i, x)
		}
	}
}

func TestFeaturizeTagPresenceMatters(t *testing.T) {
	base := Featurize(sampleFields(), "BANKBEBB", "BANKUS33")

	extra := sampleFields()
	extra["71B"] = "CHARGES OUR"
	withExtra := Featurize(extra, "BANKBEBB", "BANKUS33")

	same := true
	for i := range base {
		if base[i] != withExtra[i] {
			same = false
			break
		}
	}
	if same {
		t.Error("adding a well-known tag should change the structural vector")
	}
}

func TestFeaturizeSameShapeDifferentAmounts(t *testing.T) {
	a := sampleFields()
	b := sampleFields()
	b["32B"] = "USD109000,00"

	va := Featurize(a, "BANKBEBB", "BANKUS33")
	vb := Featurize(b, "BANKBEBB", "BANKUS33")
	// Same prefix, same length, same character mix: the shape features
	// should not distinguish the two amounts.
	for i := range va {
		if va[i] != vb[i] {
			t.Fatalf("structurally identical messages should featurize identically (index %d: %f vs %f)",
				i, va[i], vb[i])
		}
	}
}

func TestFeaturizePartiesMatter(t *testing.T) {
	a := Featurize(sampleFields(), "BANKBEBB", "BANKUS33")
	b := Featurize(sampleFields(), "BANKDEFF", "BANKGB22")
	same := true
	for i := range a {
		if a[i] != b[i] {
			same = false
			break
		}
	}
	if same {
		t.Error("different trading pairs should featurize differently")
	}
}
