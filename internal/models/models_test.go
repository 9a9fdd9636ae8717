package models

import (
	"testing"
	"time"
)

func TestNotifiable(t *testing.T) {
	valid := AbandonedCart{
		ID:           "C1",
		Email:        "a@b.com",
		Items:        []CartItem{{Name: "Widget", UnitPrice: 1, Quantity: 1}},
		LastModified: time.Now(),
	}
	if err := valid.Notifiable(); err != nil {
		t.Errorf("valid cart rejected: %v", err)
	}

	noEmail := valid
	noEmail.Email = "   "
	if err := noEmail.Notifiable(); err != ErrMissingEmail {
		t.Errorf("cart without email: err = %v, want ErrMissingEmail", err)
	}

	noItems := valid
	noItems.Items = nil
	if err := noItems.Notifiable(); err != ErrEmptyItems {
		t.Errorf("cart without items: err = %v, want ErrEmptyItems", err)
	}
}

func TestAPIResponseHelpers(t *testing.T) {
	ok := Success(map[string]int{"n": 1})
	if ok.Status != string(APIStatusOK) || ok.Result == nil {
		t.Errorf("Success = %+v", ok)
	}

	errResp := Error("boom")
	if errResp.Status != string(APIStatusError) || errResp.Message != "boom" {
		t.Errorf("Error = %+v", errResp)
	}
}
