package grpc

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/example/storefront/pkg/apperr"
	"github.com/example/storefront/pkg/checkout"
	"github.com/example/storefront/pkg/models"
	"github.com/shopspring/decimal"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// OrderReader is the read side of checkout exposed to internal callers.
type OrderReader interface {
	GetOrder(ctx context.Context, id string) (*models.Order, error)
	ValidateCoupon(ctx context.Context, code string, subtotal decimal.Decimal) (*checkout.CouponCheck, error)
}

const OrdersService = "storefront.v1.Orders"

// Orders speaks well-known protobuf types: GetOrder takes the order id as a
// StringValue, ValidateCoupon takes a Struct with code and subtotal. Both
// answer with the JSON document of the HTTP API as a Struct.
var ordersDesc = grpc.ServiceDesc{
	ServiceName: OrdersService,
	HandlerType: (*OrderReader)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetOrder", Handler: getOrderHandler},
		{MethodName: "ValidateCoupon", Handler: validateCouponHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "storefront/v1/orders",
}

func getOrderHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	call := func(ctx context.Context, req interface{}) (interface{}, error) {
		order, err := srv.(OrderReader).GetOrder(ctx, req.(*wrapperspb.StringValue).GetValue())
		if err != nil {
			return nil, err
		}
		return toStruct(order)
	}
	if interceptor == nil {
		return call(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + OrdersService + "/GetOrder"}
	return interceptor(ctx, in, info, call)
}

func validateCouponHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	call := func(ctx context.Context, req interface{}) (interface{}, error) {
		fields := req.(*structpb.Struct).GetFields()
		subtotal, err := decimalField(fields["subtotal"])
		if err != nil {
			return nil, apperr.Invalid("validation failed", apperr.FieldError{Field: "subtotal", Message: err.Error()})
		}
		check, err := srv.(OrderReader).ValidateCoupon(ctx, fields["code"].GetStringValue(), subtotal)
		if err != nil {
			return nil, err
		}
		return toStruct(check)
	}
	if interceptor == nil {
		return call(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + OrdersService + "/ValidateCoupon"}
	return interceptor(ctx, in, info, call)
}

// decimalField accepts a decimal as a string, to keep cents exact, or as a
// number.
func decimalField(v *structpb.Value) (decimal.Decimal, error) {
	switch k := v.GetKind().(type) {
	case *structpb.Value_StringValue:
		d, err := decimal.NewFromString(k.StringValue)
		if err != nil {
			return decimal.Zero, fmt.Errorf("must be a decimal")
		}
		return d, nil
	case *structpb.Value_NumberValue:
		return decimal.NewFromFloat(k.NumberValue), nil
	default:
		return decimal.Zero, fmt.Errorf("is required")
	}
}

func toStruct(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode response: %w", err)
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(raw, out); err != nil {
		return nil, fmt.Errorf("failed to encode response: %w", err)
	}
	return out, nil
}
