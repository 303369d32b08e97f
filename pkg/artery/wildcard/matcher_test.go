package wildcard

import "testing"

func TestMatchesExactPath(t *testing.T) {
	m := New("/user/bigActor/large")
	if !m.Matches("/user/bigActor/large") {
		t.Fatal("expected exact path to match")
	}
	if m.Matches("/user/bigActor/ordinary") {
		t.Fatal("did not expect a different leaf to match")
	}
}

func TestMatchesWildcardSegment(t *testing.T) {
	m := New("/user/*/large")
	cases := []string{"/user/a/large", "/user/b/large"}
	for _, c := range cases {
		if !m.Matches(c) {
			t.Fatalf("expected %q to match the wildcard pattern", c)
		}
	}
	if m.Matches("/user/a/b/large") {
		t.Fatal("a wildcard segment must not absorb more than one path segment")
	}
}

func TestNoPatternsMatchesNothing(t *testing.T) {
	m := New()
	if m.Matches("/user/anything") {
		t.Fatal("expected an empty matcher to match nothing")
	}
}

func TestNilMatcherMatchesNothing(t *testing.T) {
	var m *Matcher
	if m.Matches("/user/anything") {
		t.Fatal("expected a nil matcher to match nothing")
	}
}
