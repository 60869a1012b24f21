package postgres

import (
	"math/big"
	"testing"

	"github.com/jackc/pgx/v5/pgtype"
)

func TestNumericRoundTrip(t *testing.T) {
	huge, _ := new(big.Int).SetString("123456789012345678901234567890", 10)
	for _, v := range []*big.Int{big.NewInt(0), big.NewInt(493_579), huge} {
		if got := bigInt(numeric(v)); got.Cmp(v) != 0 {
			t.Fatalf("round trip %s: got %s", v, got)
		}
	}
	if n := numeric(nil); n.Valid {
		t.Fatalf("nil should map to NULL")
	}
	if got := bigInt(pgtype.Numeric{}); got != nil {
		t.Fatalf("NULL should map to nil, got %s", got)
	}
}

func TestBigIntScaledNumeric(t *testing.T) {
	cases := []struct {
		in   pgtype.Numeric
		want int64
	}{
		{pgtype.Numeric{Int: big.NewInt(1), Exp: 6, Valid: true}, 1_000_000},
		{pgtype.Numeric{Int: big.NewInt(1_500), Exp: -2, Valid: true}, 15},
		{pgtype.Numeric{Int: big.NewInt(42), Valid: true}, 42},
	}
	for _, tc := range cases {
		if got := bigInt(tc.in); got.Int64() != tc.want {
			t.Fatalf("bigInt(%v) = %s, want %d", tc.in, got, tc.want)
		}
	}
}
