package mssql

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"

	"datalake/internal/schema"
	"datalake/internal/warehouse"
)

// TestMsIdent verifies bracket quoting and escaping of closing brackets.
func TestMsIdent(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"simple", "[simple]"},
		{"brack]et", "[brack]]et]"},
	}
	for _, tc := range cases {
		if got := msIdent(tc.in); got != tc.want {
			t.Fatalf("msIdent(%q) = %q; want %q", tc.in, got, tc.want)
		}
	}
}

func TestCreateSQL(t *testing.T) {
	got := createSQL("dbo", schema.Songplays)
	for _, want := range []string{
		"IF OBJECT_ID(N'dbo.songplays', N'U') IS NULL CREATE TABLE [dbo].[songplays] (",
		"[songplay_id] NVARCHAR(450) NOT NULL",
		"[start_time] DATETIME2(3)",
		"[user_agent] NVARCHAR(MAX)",
		"[session_id] BIGINT",
		"PRIMARY KEY ([songplay_id])",
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("createSQL missing %q:\n%s", want, got)
		}
	}

	got = createSQL("", schema.Artists)
	if !strings.HasPrefix(got, "IF OBJECT_ID(N'artists', N'U') IS NULL CREATE TABLE [artists] (") {
		t.Fatalf("unexpected unqualified create:\n%s", got)
	}
	if strings.Contains(got, "PRIMARY KEY") {
		t.Fatalf("artists has no key columns:\n%s", got)
	}
}

func TestDeleteSQL(t *testing.T) {
	stmts, args := dialect.Delete("[time]", schema.Time, warehouse.Scope{Partitions: []schema.Partition{{Year: 2018, Month: 11}}})
	if len(stmts) != 1 || stmts[0] != "DELETE FROM [time] WHERE [year] = @p1 AND [month] = @p2" {
		t.Fatalf("stmts = %q", stmts)
	}
	if len(args[0]) != 2 || args[0][0] != int64(2018) || args[0][1] != int64(11) {
		t.Fatalf("args = %v", args)
	}

	stmts, _ = dialect.Delete("[users]", schema.Users, warehouse.Scope{Partitions: []schema.Partition{{Year: 2018, Month: 11}}})
	if stmts[0] != "DELETE FROM [users]" {
		t.Fatalf("unpartitioned table must be cleared whole, got %q", stmts[0])
	}
}

func TestOpenPropagatesConnectError(t *testing.T) {
	orig := newDB
	defer func() { newDB = orig }()

	newDB = func(context.Context, string) (*sql.DB, error) { return nil, errors.New("no server") }
	if _, err := warehouse.New(context.Background(), warehouse.Config{Kind: "mssql", DSN: "sqlserver://x"}); err == nil {
		t.Fatalf("warehouse.New() error = nil, want connect error")
	}
}
