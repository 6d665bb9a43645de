package sqlcols

import (
	"reflect"
	"testing"
)

func TestColumns(t *testing.T) {
	tests := []struct {
		name   string
		sql    string
		want   []string
		wantOK bool
	}{
		{"alias and bare", "SELECT id, name AS label FROM users", []string{"id", "label"}, true},
		{"qualified", "SELECT u.id, u.email FROM users u", []string{"id", "email"}, true},
		{"lowercase", "select id from users where id = 1", []string{"id"}, true},
		{"aliased expression", "SELECT COUNT(*) AS total FROM users", []string{"total"}, true},
		{"unaliased expression skipped", "SELECT id, COUNT(*) FROM users GROUP BY id", []string{"id"}, true},
		{"delete", "DELETE FROM users", nil, false},
		{"update", "UPDATE users SET name = 'x'", nil, false},
		{"two statements", "SELECT id FROM a; SELECT id FROM b;", nil, false},
		{"garbage", "SELEKT ,,, FROM", nil, false},
		{"empty", "   ", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Columns(tt.sql)
			if ok != tt.wantOK {
				t.Fatalf("Columns(%q) ok = %v, want %v (cols %v)", tt.sql, ok, tt.wantOK, got)
			}
			if tt.wantOK && !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Columns(%q) = %v, want %v", tt.sql, got, tt.want)
			}
		})
	}
}
