package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/go-sql-driver/mysql"
	"google.golang.org/grpc/codes"
	"gorm.io/gorm"
)

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", Validation("bad %s", "input"), http.StatusBadRequest},
		{"stock", Stock("out of stock"), http.StatusBadRequest},
		{"not found", NotFound("order not found"), http.StatusNotFound},
		{"conflict", Conflict("dup"), http.StatusConflict},
		{"unauthorized", Unauthorized("no token"), http.StatusUnauthorized},
		{"forbidden", Forbidden("nope"), http.StatusForbidden},
		{"unavailable", Unavailable(errors.New("x"), "busy"), http.StatusServiceUnavailable},
		{"plain", errors.New("boom"), http.StatusInternalServerError},
		{"wrapped", fmt.Errorf("failed to checkout: %w", NotFound("cart not found")), http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HTTPStatus(tt.err); got != tt.want {
				t.Errorf("HTTPStatus() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestStockIsValidation(t *testing.T) {
	err := fmt.Errorf("checkout: %w", Stock("insufficient stock for %s", "mug"))
	if !errors.Is(err, ErrStock) {
		t.Error("expected errors.Is(err, ErrStock)")
	}
	if !errors.Is(err, ErrValidation) {
		t.Error("stock error must match ErrValidation")
	}
	if errors.Is(Validation("x"), ErrStock) {
		t.Error("validation error must not match ErrStock")
	}
}

func TestGRPCCode(t *testing.T) {
	if got := GRPCCode(NotFound("x")); got != codes.NotFound {
		t.Errorf("got %v", got)
	}
	if got := GRPCCode(nil); got != codes.OK {
		t.Errorf("got %v", got)
	}
	if got := GRPCCode(errors.New("x")); got != codes.Internal {
		t.Errorf("got %v", got)
	}
}

func TestFromDB(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"record not found", gorm.ErrRecordNotFound, KindNotFound},
		{"duplicated key", gorm.ErrDuplicatedKey, KindConflict},
		{"mysql duplicate", &mysql.MySQLError{Number: 1062, Message: "Duplicate entry"}, KindConflict},
		{"mysql lock wait", &mysql.MySQLError{Number: 1205, Message: "Lock wait timeout"}, KindUnavailable},
		{"mysql deadlock", &mysql.MySQLError{Number: 1213, Message: "Deadlock"}, KindUnavailable},
		{"mysql fk", &mysql.MySQLError{Number: 1452, Message: "fk"}, KindValidation},
		{"sqlite unique", errors.New("UNIQUE constraint failed: coupons.code"), KindConflict},
		{"other", errors.New("syntax error"), KindInternal},
		{"passthrough", Stock("no stock"), KindStock},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(FromDB(tt.err, "coupon")); got != tt.want {
				t.Errorf("KindOf(FromDB()) = %v, want %v", got, tt.want)
			}
		})
	}
	if FromDB(nil, "x") != nil {
		t.Error("FromDB(nil) must be nil")
	}
}
