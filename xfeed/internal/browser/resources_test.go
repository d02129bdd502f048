package browser

import "testing"

func TestShouldBlock(t *testing.T) {
	set := map[string]bool{"images": true, "media": true}
	cases := []struct {
		resType string
		want    bool
	}{
		{"Image", true},
		{"Media", true},
		{"Font", false},
		{"Stylesheet", false},
		{"Document", false},
		{"XHR", false},
	}
	for _, c := range cases {
		if got := shouldBlock(set, c.resType); got != c.want {
			t.Errorf("shouldBlock(%q) = %v, want %v", c.resType, got, c.want)
		}
	}
}

func TestManager_NewPageBeforeStart(t *testing.T) {
	m := NewManager(Config{})
	if _, err := m.NewPage(); err == nil {
		t.Fatal("NewPage before Start must fail")
	}
	m.Close()
	if _, err := m.Start(t.Context()); err != ErrClosed {
		t.Fatalf("Start after Close = %v, want ErrClosed", err)
	}
}
