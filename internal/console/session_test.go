package console

import (
	"net/url"
	"testing"
)

func TestParamsFromQueryKeepsKnownKeys(t *testing.T) {
	q := url.Values{"token": {"abc"}, "page": {"settings"}, "task_id": {"7"}}
	p := ParamsFromQuery(q)
	if len(p) != 2 || p.Token() != "abc" || p.Page() != "settings" {
		t.Fatalf("unexpected params: %v", p)
	}
	if got := p.Encode(); got != "page=settings&token=abc" {
		t.Fatalf("unexpected encoding: %q", got)
	}
}

func TestNavigationMarksCurrentPage(t *testing.T) {
	items := Navigation(PageTaskData)
	if len(items) != 5 {
		t.Fatalf("expected 5 navigation entries, got %d", len(items))
	}
	for _, it := range items {
		if it.Active != (it.Page == PageTaskData) {
			t.Fatalf("unexpected active flag on %+v", it)
		}
	}
	if items[len(items)-1].Page != PageLogout {
		t.Fatalf("logout must be the last entry")
	}
}
