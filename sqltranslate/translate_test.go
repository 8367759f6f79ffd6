package sqltranslate

import (
	"strings"
	"testing"
)

// GROUP BY/HAVING/ORDER BY/LIMIT must produce a COLLECT...INTO group, a
// LET binding for the aggregate, a FILTER referencing that binding (not a
// recomputed LENGTH(group)), a SORT, a LIMIT, and a RETURN shorthand object.
func TestTranslateSelectGroupByHaving(t *testing.T) {
	sql := "SELECT name, COUNT(*) AS c FROM u GROUP BY name HAVING COUNT(*) > 1 ORDER BY c DESC LIMIT 10"
	got, err := Translate(sql)
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}

	for _, want := range []string{
		"FOR u IN u",
		"COLLECT name = u.name INTO group",
		"LET c = LENGTH(group)",
		"FILTER c > 1",
		"SORT c DESC",
		"LIMIT 10",
		"RETURN {name, c}",
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("translated DBQL missing %q, got:\n%s", want, got)
		}
	}
}

func TestTranslateSelectWhereQualifiesBareColumns(t *testing.T) {
	got, err := Translate("SELECT id FROM widgets WHERE price > 10 AND name LIKE 'a%'")
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	for _, want := range []string{
		"FOR widgets IN widgets",
		"FILTER (widgets.price > 10 AND widgets.name LIKE \"a%\")",
		"RETURN {id: widgets.id}",
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("translated DBQL missing %q, got:\n%s", want, got)
		}
	}
}

func TestTranslateSelectStarOverJoinEmitsMerge(t *testing.T) {
	got, err := Translate("SELECT * FROM orders o JOIN users u ON o.user_id = u.id")
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	for _, want := range []string{
		"FOR o IN orders",
		"FOR u IN users",
		"FILTER o.user_id == u.id",
		"RETURN MERGE(o, u)",
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("translated DBQL missing %q, got:\n%s", want, got)
		}
	}
}

func TestTranslateSelectLeftJoinNotesInnerFallback(t *testing.T) {
	got, err := Translate("SELECT o.id FROM orders o LEFT JOIN users u ON o.user_id = u.id")
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if !strings.Contains(got, "// LEFT JOIN executed as INNER") {
		t.Fatalf("expected a LEFT JOIN fallback note, got:\n%s", got)
	}
}

func TestTranslateInsertUsesINKeyword(t *testing.T) {
	got, err := Translate("INSERT INTO widgets (id, name) VALUES (1, 'bolt')")
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	want := `INSERT {id: 1, name: "bolt"} IN widgets`
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestTranslateUpdateOrdersKeyInWith(t *testing.T) {
	got, err := Translate("UPDATE widgets SET price = 5 WHERE id = 1")
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	for _, want := range []string{
		"FOR widgets IN widgets",
		"FILTER widgets.id == 1",
		"UPDATE widgets._key IN widgets WITH {price: 5}",
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("translated DBQL missing %q, got:\n%s", want, got)
		}
	}
}

func TestTranslateDeleteEmitsRemove(t *testing.T) {
	got, err := Translate("DELETE FROM widgets WHERE id = 1")
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	for _, want := range []string{
		"FOR widgets IN widgets",
		"FILTER widgets.id == 1",
		"REMOVE widgets._key IN widgets",
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("translated DBQL missing %q, got:\n%s", want, got)
		}
	}
}

func TestTranslateRejectsUnsupportedStatement(t *testing.T) {
	if _, err := Translate("CREATE TABLE widgets (id INT)"); err == nil {
		t.Fatalf("expected an error for a DDL statement")
	}
}
