package whispercpp

import "testing"

func TestDecode(t *testing.T) {
	in := `{
	  "result": {"language": "en"},
	  "transcription": [
	    {"timestamps": {"from": "00:00:00,000", "to": "00:00:02,500"}, "offsets": {"from": 0, "to": 2500}, "text": " Unplug the drill."},
	    {"offsets": {"from": 2500, "to": 2600}, "text": "   "},
	    {"offsets": {"from": 2600, "to": 5120}, "text": " Open the chuck."}
	  ]
	}`
	segs, err := decode([]byte(in))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(segs) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(segs))
	}
	if segs[0].Start != 0 || segs[0].End != 2.5 || segs[0].Text != "Unplug the drill." {
		t.Fatalf("unexpected first segment: %+v", segs[0])
	}
	if segs[1].Start != 2.6 || segs[1].End != 5.12 {
		t.Fatalf("unexpected second segment: %+v", segs[1])
	}
}

func TestDecode_Invalid(t *testing.T) {
	if _, err := decode([]byte("{")); err == nil {
		t.Fatalf("expected error")
	}
}
