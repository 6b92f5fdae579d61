package harness

import (
	"encoding/hex"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/roach88/relq/internal/sqlite"
)

// checkError matches a compilation failure against the expected error
// code or message fragment.
func checkError(res *CaseResult, want Expect, err error) {
	switch {
	case want.Error == "":
		res.fail("unexpected error: %v", err)
	case want.Error == res.Code:
	case strings.Contains(err.Error(), want.Error):
	default:
		res.fail("error %q does not match %q", err, want.Error)
	}
}

func checkSQL(res *CaseResult, want, got string) {
	want, got = strings.TrimSpace(want), strings.TrimSpace(got)
	if want == got {
		return
	}
	res.fail("SQL differs:\n%s", Diff(want, got))
}

// checkRows compares rows by their rendered form, so that YAML values and
// driver values of the same stored value are equal: 1 and true, 3 and 3.0.
func checkRows(res *CaseResult, want, got [][]any, ordered bool) {
	w, g := renderRows(want), renderRows(got)
	if !ordered {
		sort.Strings(w)
		sort.Strings(g)
	}
	a, b := strings.Join(w, "\n"), strings.Join(g, "\n")
	if a == b {
		return
	}
	res.fail("rows differ (%d expected, %d read):\n%s", len(want), len(got), Diff(a, b))
}

// Diff renders a unified diff from want to got.
func Diff(want, got string) string {
	text, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(want + "\n"),
		B:        difflib.SplitLines(got + "\n"),
		FromFile: "expected",
		ToFile:   "actual",
		Context:  2,
	})
	if err != nil {
		return fmt.Sprintf("expected:\n%s\nactual:\n%s", want, got)
	}
	return text
}

func renderRows(rows [][]any) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		vals := make([]string, len(r))
		for j, v := range r {
			vals[j] = renderValue(v)
		}
		out[i] = "[" + strings.Join(vals, ", ") + "]"
	}
	return out
}

func renderValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "null"
	case bool:
		if x {
			return "1"
		}
		return "0"
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case uint64:
		return strconv.FormatUint(x, 10)
	case float64:
		if x == math.Trunc(x) && math.Abs(x) < 1e15 {
			return strconv.FormatInt(int64(x), 10)
		}
		return strconv.FormatFloat(x, 'g', -1, 64)
	case string:
		return strconv.Quote(x)
	case []byte:
		return "x'" + hex.EncodeToString(x) + "'"
	case time.Time:
		return strconv.Quote(sqlite.FormatDateTime(x))
	}
	return fmt.Sprint(v)
}
