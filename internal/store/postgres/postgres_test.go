package postgres

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

func TestDSN(t *testing.T) {
	tests := []struct {
		name string
		cfg  ClientConfig
		want string
	}{
		{
			name: "explicit dsn wins",
			cfg:  ClientConfig{DSN: "postgres://a@b/c", Host: "ignored"},
			want: "postgres://a@b/c",
		},
		{
			name: "defaults port and sslmode",
			cfg:  ClientConfig{Host: "db", Database: "polyarb", User: "bot", Password: "pw"},
			want: "postgres://bot:pw@db:5432/polyarb?sslmode=disable",
		},
		{
			name: "escapes credentials",
			cfg:  ClientConfig{Host: "db", Port: 6543, Database: "x", User: "bot", Password: "p@ss/word", SSLMode: "require"},
			want: "postgres://bot:p%40ss%2Fword@db:6543/x?sslmode=require",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DSN(tt.cfg))
		})
	}
}

func TestMigrationsEmbedded(t *testing.T) {
	data, err := migrationsFS.ReadFile("migrations/0001_arb_executions.sql")
	require.NoError(t, err)
	assert.Contains(t, string(data), "CREATE TABLE IF NOT EXISTS arb_executions")
}

type fakeRow struct {
	vals []any
	err  error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	if len(dest) != len(r.vals) {
		return errors.New("column count mismatch")
	}
	for i, d := range dest {
		switch p := d.(type) {
		case *string:
			*p = r.vals[i].(string)
		case *bool:
			*p = r.vals[i].(bool)
		case *[]string:
			*p = r.vals[i].([]string)
		case *time.Time:
			*p = r.vals[i].(time.Time)
		default:
			return errors.New("unexpected destination type")
		}
	}
	return nil
}

func TestScanExecution(t *testing.T) {
	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	row := fakeRow{vals: []any{
		"7b1f0c2e-0000-4000-8000-000000000001", "m1", "BTC above 100k?", "y1", "n1",
		"0.48", "0.49", "0.03", "10",
		"partial_yes", "0",
		true, "o-yes", "", []string{"0xabc"},
		false, "", "not enough liquidity", []string{},
		started, started.Add(300 * time.Millisecond),
	}}

	exec, err := scanExecution(row)
	require.NoError(t, err)
	assert.Equal(t, domain.ExecPartialYes, exec.Outcome)
	assert.Equal(t, "0.97", exec.YesAskPrice.Add(exec.NoAskPrice).String())
	assert.True(t, exec.Yes.Success)
	assert.Equal(t, []string{"0xabc"}, exec.Yes.TxHashes)
	assert.Equal(t, "not enough liquidity", exec.No.ErrorMessage)
	assert.True(t, exec.RealizedProfit.IsZero())

	row.vals[5] = "not-a-number"
	_, err = scanExecution(row)
	assert.Error(t, err)
}

func TestNonNil(t *testing.T) {
	assert.Equal(t, []string{}, nonNil(nil))
	assert.Equal(t, []string{"a"}, nonNil([]string{"a"}))
}
