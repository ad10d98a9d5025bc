package guard

import (
	"errors"
	"testing"
)

func TestValidateAllowsSelectAndWith(t *testing.T) {
	allowed := []string{
		"SELECT * FROM employees",
		"select id, name from departments where region = 'EMEA'",
		"WITH recent AS (SELECT * FROM orders) SELECT * FROM recent",
		"  SELECT 1;",
		"(SELECT 1)",
	}
	for _, sqlText := range allowed {
		if err := Validate(sqlText); err != nil {
			t.Fatalf("Validate(%q) = %v, want nil", sqlText, err)
		}
	}
}

func TestValidateRejectsForbiddenKeywords(t *testing.T) {
	cases := map[string]string{
		"DELETE FROM users WHERE id = 1":               "DELETE",
		"CREATE TABLE audit_log (id INT)":              "CREATE",
		"select * from t where note = 'please DROP'":   "DROP",
		"Select 1; TRUNCATE accounts":                  "TRUNCATE",
		"wITh x as (select 1) insert into y select 1":  "INSERT",
		"SELECT * FROM dual; EXECUTE IMMEDIATE 'x'":    "EXECUTE",
		"call refresh_snapshot()":                      "CALL",
		"SELECT merge_strategy FROM plans WHERE merge": "MERGE",
	}
	for sqlText, keyword := range cases {
		err := Validate(sqlText)
		if err == nil {
			t.Fatalf("Validate(%q) succeeded, want violation", sqlText)
		}
		if !errors.Is(err, ErrReadOnlyViolation) {
			t.Fatalf("Validate(%q) = %v, want ErrReadOnlyViolation", sqlText, err)
		}
		var violation *ViolationError
		if !errors.As(err, &violation) {
			t.Fatalf("Validate(%q) returned %T, want *ViolationError", sqlText, err)
		}
		if violation.Keyword != keyword {
			t.Fatalf("Validate(%q) flagged %q, want %q", sqlText, violation.Keyword, keyword)
		}
	}
}

func TestValidateRejectsMultiStatement(t *testing.T) {
	err := Validate("SELECT * FROM users; SELECT * FROM orders")
	if !errors.Is(err, ErrReadOnlyViolation) {
		t.Fatalf("multi-statement input = %v, want ErrReadOnlyViolation", err)
	}

	// A delimiter inside a string literal is not a statement boundary.
	if err := Validate("SELECT * FROM notes WHERE body = 'a;b'"); err != nil {
		t.Fatalf("literal semicolon rejected: %v", err)
	}
}

func TestValidateRejectsNonSelectInput(t *testing.T) {
	for _, sqlText := range []string{"", "   ", "EXPLAIN SELECT 1", "SHOW TABLES"} {
		if err := Validate(sqlText); !errors.Is(err, ErrReadOnlyViolation) {
			t.Fatalf("Validate(%q) = %v, want ErrReadOnlyViolation", sqlText, err)
		}
	}
}

func TestViolationErrorMessageIncludesKeyword(t *testing.T) {
	err := Validate("DROP TABLE orders")
	if err == nil {
		t.Fatal("expected violation")
	}
	if got := err.Error(); got != "read-only violation: statement contains forbidden keyword DROP" {
		t.Fatalf("unexpected message: %s", got)
	}
}
