package validator

import (
	"context"
	"testing"
)

type pricedForm struct {
	Price string `validate:"required,price"`
}

type countedForm struct {
	TypeID int64 `validate:"positive"`
}

func TestPriceRule(t *testing.T) {
	for _, ok := range []string{"0", "10", "10.5", "10.00", "1234.99"} {
		if err := Validate(context.Background(), pricedForm{Price: ok}); err != nil {
			t.Fatalf("price %q rejected: %v", ok, err)
		}
	}
	for _, bad := range []string{"-1", "10.005", "ten", "10.", ".5"} {
		if err := Validate(context.Background(), pricedForm{Price: bad}); err == nil {
			t.Fatalf("price %q accepted", bad)
		}
	}
}

func TestPositiveRule(t *testing.T) {
	if err := Validate(context.Background(), countedForm{TypeID: 3}); err != nil {
		t.Fatalf("positive value rejected: %v", err)
	}
	if err := Validate(context.Background(), countedForm{TypeID: 0}); err == nil {
		t.Fatal("zero accepted by positive rule")
	}
}
