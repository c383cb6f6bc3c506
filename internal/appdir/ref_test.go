package appdir

import "testing"

func TestSplitJoinRoundTrip(t *testing.T) {
	cases := []Ref{
		{Name: "myapp", Version: "1.2.3", Platform: "linux-x86_64"},
		{Name: "myapp", Version: "1.2.3-rc.1", Platform: "macosx-x86_64"},
		{Name: "my-app", Version: "2.0", Platform: "win32"},
	}
	for _, want := range cases {
		dirname := Join(want)
		got, err := Split(dirname)
		if err != nil {
			t.Fatalf("Split(%q): %v", dirname, err)
		}
		if got != want {
			t.Errorf("round trip mismatch: got %+v, want %+v", got, want)
		}
	}
}

func TestSplitRejectsGarbage(t *testing.T) {
	for _, bad := range []string{"", "noseparators", "only-one"} {
		if _, err := Split(bad); err == nil {
			t.Errorf("Split(%q): expected error, got nil", bad)
		}
	}
}

func TestSplitVersionWithDashes(t *testing.T) {
	got, err := Split("myapp-1.2.3-beta.4-linux-x86_64")
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	want := Ref{Name: "myapp", Version: "1.2.3-beta.4", Platform: "linux-x86_64"}
	if got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}
}
