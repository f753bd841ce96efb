package pagination

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func ctxFor(t *testing.T, target string) echo.Context {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	return e.NewContext(req, httptest.NewRecorder())
}

func TestFromContextDefaults(t *testing.T) {
	p := FromContext(ctxFor(t, "/"))
	if p.Limit != DefaultLimit {
		t.Errorf("expected default limit %d, got %d", DefaultLimit, p.Limit)
	}
	if p.Offset != 0 {
		t.Errorf("expected default offset 0, got %d", p.Offset)
	}
}

func TestFromContextCustomValues(t *testing.T) {
	p := FromContext(ctxFor(t, "/?limit=50&offset=10"))
	if p.Limit != 50 {
		t.Errorf("expected limit 50, got %d", p.Limit)
	}
	if p.Offset != 10 {
		t.Errorf("expected offset 10, got %d", p.Offset)
	}
}

func TestFromContextClampsLimit(t *testing.T) {
	p := FromContext(ctxFor(t, "/?limit=5000"))
	if p.Limit != MaxLimit {
		t.Errorf("expected clamped limit %d, got %d", MaxLimit, p.Limit)
	}
}

func TestFromContextNegativeOffset(t *testing.T) {
	p := FromContext(ctxFor(t, "/?offset=-4"))
	if p.Offset != 0 {
		t.Errorf("expected offset 0, got %d", p.Offset)
	}
}

func TestSQL(t *testing.T) {
	p := Params{Limit: 20, Offset: 40}
	if got := p.SQL(); got != "LIMIT 20 OFFSET 40" {
		t.Errorf("unexpected clause %q", got)
	}
}

func TestNewResponse(t *testing.T) {
	r := NewResponse([]int{1, 2, 3}, 10, 3, 0)
	if r.Total != 10 || r.Limit != 3 || r.Offset != 0 {
		t.Errorf("unexpected response %+v", r)
	}
	if !r.HasMore {
		t.Error("expected has_more true")
	}

	last := NewResponse([]int{1}, 10, 3, 9)
	if last.HasMore {
		t.Error("expected has_more false on last page")
	}
}

func TestHasNextAndNextOffset(t *testing.T) {
	p := Params{Limit: 10, Offset: 0}
	if !p.HasNext(25) {
		t.Error("expected next page at offset 0 of 25")
	}
	if p.NextOffset() != 10 {
		t.Errorf("expected next offset 10, got %d", p.NextOffset())
	}
	if (Params{Limit: 10, Offset: 20}).HasNext(25) {
		t.Error("did not expect next page at offset 20 of 25")
	}
}
