package provenance

import "testing"

func TestEncodeV2RoundTrip(t *testing.T) {
	got := Encode("data", "data/二期/电表/电压/样例.csv", "T123", true)
	want := "data/二期/电表/电压/样例.csv|batch=T123|ver=2"
	if got != want {
		t.Fatalf("Encode() = %q, want %q", got, want)
	}
}

func TestEncodeDisabledUsesBasename(t *testing.T) {
	got := Encode("data", "data/sub/m1.csv", "T1", false)
	if got != "m1.csv" {
		t.Fatalf("Encode() = %q, want m1.csv", got)
	}
}

func TestEncodeOutsideBaseDirFallsBackToBasename(t *testing.T) {
	got := Encode("data", "/other/root/m1.csv", "T1", true)
	want := "data/m1.csv|batch=T1|ver=2"
	if got != want {
		t.Fatalf("Encode() = %q, want %q", got, want)
	}
}

func TestDecodeV2(t *testing.T) {
	p := Decode("data/a/b.csv|batch=T1|ver=2")
	if p.Version != 2 || p.Path != "data/a/b.csv" || p.BatchID != "T1" {
		t.Fatalf("Decode() = %+v", p)
	}
}

func TestDecodeV1BareBasename(t *testing.T) {
	p := Decode("m1.csv")
	if p.Version != 1 || p.Path != "m1.csv" || p.BatchID != "" {
		t.Fatalf("Decode() = %+v", p)
	}
}
