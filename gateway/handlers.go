package gateway

import (
	"net/http"
	"strconv"

	"github.com/example/storefront/pkg/apperr"
	"github.com/example/storefront/pkg/auth"
	"github.com/example/storefront/pkg/cart"
	"github.com/example/storefront/pkg/checkout"
	"github.com/example/storefront/pkg/models"
	"github.com/example/storefront/pkg/promotion"
	"github.com/example/storefront/pkg/repository"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

const historyLimit = 50

// identity returns the caller set by auth.Authenticate. Routes that call it
// always run behind that middleware.
func (g *Gateway) identity(c *gin.Context) (auth.Identity, bool) {
	id, ok := auth.FromContext(c)
	if !ok {
		g.fail(c, apperr.Unauthorized("authentication required"))
	}
	return id, ok
}

// queryInt reads a positive integer query parameter, falling back to def.
func queryInt(c *gin.Context, key string, def int) int {
	n, err := strconv.Atoi(c.Query(key))
	if err != nil || n < 1 {
		return def
	}
	return n
}

// Promotions

func (g *Gateway) activePromotions(c *gin.Context) {
	active, err := g.checkout.ActivePromotions(c.Request.Context())
	if err != nil {
		g.fail(c, err)
		return
	}
	respond(c, http.StatusOK, "active promotions", active)
}

type couponValidateRequest struct {
	Subtotal *decimal.Decimal `json:"subtotal"`
}

func (g *Gateway) validateCoupon(c *gin.Context) {
	var req couponValidateRequest
	if !g.bindJSON(c, &req) {
		return
	}
	if req.Subtotal == nil {
		g.fail(c, apperr.Invalid("validation failed", apperr.FieldError{Field: "subtotal", Message: "is required"}))
		return
	}
	check, err := g.checkout.ValidateCoupon(c.Request.Context(), c.Param("code"), *req.Subtotal)
	if err != nil {
		g.fail(c, err)
		return
	}
	respond(c, http.StatusOK, "coupon is valid", check)
}

// Cart

func (g *Gateway) getCart(c *gin.Context) {
	id, ok := g.identity(c)
	if !ok {
		return
	}
	view, err := g.cart.Get(c.Request.Context(), id.UserID)
	if err != nil {
		g.fail(c, err)
		return
	}
	respond(c, http.StatusOK, "cart", view)
}

func (g *Gateway) clearCart(c *gin.Context) {
	id, ok := g.identity(c)
	if !ok {
		return
	}
	view, err := g.cart.Clear(c.Request.Context(), id.UserID)
	if err != nil {
		g.fail(c, err)
		return
	}
	respond(c, http.StatusOK, "cart cleared", view)
}

func (g *Gateway) addCartItem(c *gin.Context) {
	id, ok := g.identity(c)
	if !ok {
		return
	}
	var in cart.AddItemInput
	if !g.bindJSON(c, &in) {
		return
	}
	view, err := g.cart.AddItem(c.Request.Context(), id.UserID, in)
	if err != nil {
		g.fail(c, err)
		return
	}
	respond(c, http.StatusOK, "item added to cart", view)
}

type cartQuantityRequest struct {
	Quantity int `json:"quantity" binding:"required,min=1"`
}

func (g *Gateway) updateCartItem(c *gin.Context) {
	id, ok := g.identity(c)
	if !ok {
		return
	}
	var req cartQuantityRequest
	if !g.bindJSON(c, &req) {
		return
	}
	view, err := g.cart.UpdateItem(c.Request.Context(), id.UserID, c.Param("id"), req.Quantity)
	if err != nil {
		g.fail(c, err)
		return
	}
	respond(c, http.StatusOK, "cart item updated", view)
}

func (g *Gateway) removeCartItem(c *gin.Context) {
	id, ok := g.identity(c)
	if !ok {
		return
	}
	view, err := g.cart.RemoveItem(c.Request.Context(), id.UserID, c.Param("id"))
	if err != nil {
		g.fail(c, err)
		return
	}
	respond(c, http.StatusOK, "item removed from cart", view)
}

// Orders

func (g *Gateway) createOrder(c *gin.Context) {
	id, ok := g.identity(c)
	if !ok {
		return
	}
	var in checkout.CreateOrderInput
	if !g.bindJSON(c, &in) {
		return
	}
	in.IdempotencyKey = c.GetHeader("Idempotency-Key")

	order, err := g.checkout.CreateOrder(c.Request.Context(), id.UserID, in)
	if err != nil {
		g.fail(c, err)
		return
	}
	respond(c, http.StatusCreated, "order created", order)
}

func (g *Gateway) listMyOrders(c *gin.Context) {
	id, ok := g.identity(c)
	if !ok {
		return
	}
	page, err := g.checkout.ListMyOrders(c.Request.Context(), id.UserID, queryInt(c, "page", 1), queryInt(c, "limit", 10))
	if err != nil {
		g.fail(c, err)
		return
	}
	respond(c, http.StatusOK, "orders", page)
}

func (g *Gateway) getMyOrder(c *gin.Context) {
	id, ok := g.identity(c)
	if !ok {
		return
	}
	order, err := g.checkout.GetMyOrder(c.Request.Context(), id.UserID, c.Param("id"))
	if err != nil {
		g.fail(c, err)
		return
	}
	respond(c, http.StatusOK, "order", order)
}

func (g *Gateway) cancelOrder(c *gin.Context) {
	id, ok := g.identity(c)
	if !ok {
		return
	}
	order, err := g.checkout.CancelOrder(c.Request.Context(), c.Param("id"), id.UserID, id.IsAdmin())
	if err != nil {
		g.fail(c, err)
		return
	}
	respond(c, http.StatusOK, "order cancelled", order)
}

func (g *Gateway) orderStats(c *gin.Context) {
	stats, err := g.checkout.Stats(c.Request.Context())
	if err != nil {
		g.fail(c, err)
		return
	}
	respond(c, http.StatusOK, "order statistics", stats)
}

func (g *Gateway) listOrders(c *gin.Context) {
	filter := repository.OrderFilter{
		UserID:        c.Query("user_id"),
		Status:        models.OrderStatus(c.Query("status")),
		PaymentStatus: models.PaymentStatus(c.Query("payment_status")),
		Page:          queryInt(c, "page", 1),
		Limit:         queryInt(c, "limit", 10),
	}
	if filter.Status != "" && !filter.Status.Valid() {
		g.fail(c, apperr.Invalid("invalid filter", apperr.FieldError{Field: "status", Message: "unknown order status"}))
		return
	}
	if filter.PaymentStatus != "" && !filter.PaymentStatus.Valid() {
		g.fail(c, apperr.Invalid("invalid filter", apperr.FieldError{Field: "payment_status", Message: "unknown payment status"}))
		return
	}

	page, err := g.checkout.ListOrders(c.Request.Context(), filter)
	if err != nil {
		g.fail(c, err)
		return
	}
	respond(c, http.StatusOK, "orders", page)
}

func (g *Gateway) getOrder(c *gin.Context) {
	order, err := g.checkout.GetOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		g.fail(c, err)
		return
	}
	respond(c, http.StatusOK, "order", order)
}

func (g *Gateway) orderHistory(c *gin.Context) {
	if g.history == nil {
		g.fail(c, apperr.Unavailable(nil, "order history is not available"))
		return
	}
	logs, err := g.history.GetAuditLogs(c.Request.Context(), c.Param("id"), historyLimit)
	if err != nil {
		g.fail(c, apperr.Unavailable(err, "order history is not available"))
		return
	}
	if logs == nil {
		logs = []*repository.AuditLog{}
	}
	respond(c, http.StatusOK, "order history", logs)
}

func (g *Gateway) updateOrderStatus(c *gin.Context) {
	id, ok := g.identity(c)
	if !ok {
		return
	}
	var in checkout.StatusUpdate
	if !g.bindJSON(c, &in) {
		return
	}
	order, err := g.checkout.UpdateOrderStatus(c.Request.Context(), c.Param("id"), in, id.UserID)
	if err != nil {
		g.fail(c, err)
		return
	}
	respond(c, http.StatusOK, "order status updated", order)
}

func (g *Gateway) updatePaymentStatus(c *gin.Context) {
	id, ok := g.identity(c)
	if !ok {
		return
	}
	var in checkout.PaymentUpdate
	if !g.bindJSON(c, &in) {
		return
	}
	order, err := g.checkout.UpdatePaymentStatus(c.Request.Context(), c.Param("id"), in, id.UserID)
	if err != nil {
		g.fail(c, err)
		return
	}
	respond(c, http.StatusOK, "payment status updated", order)
}

// Admin

func (g *Gateway) createCoupon(c *gin.Context) {
	coupon := models.Coupon{
		IsActive:  true,
		AppliesTo: string(promotion.CouponAllItems),
	}
	if !g.bindJSON(c, &coupon) {
		return
	}
	created, err := g.checkout.CreateCoupon(c.Request.Context(), &coupon)
	if err != nil {
		g.fail(c, err)
		return
	}
	respond(c, http.StatusCreated, "coupon created", created)
}

func (g *Gateway) createDiscount(c *gin.Context) {
	discount := models.Discount{
		IsActive:             true,
		AppliesTo:            string(promotion.DiscountAll),
		StackableWithCoupons: true,
	}
	if !g.bindJSON(c, &discount) {
		return
	}
	created, err := g.checkout.CreateDiscount(c.Request.Context(), &discount)
	if err != nil {
		g.fail(c, err)
		return
	}
	respond(c, http.StatusCreated, "discount created", created)
}

func (g *Gateway) createBundle(c *gin.Context) {
	bundle := models.Bundle{
		IsActive:             true,
		AutoApply:            true,
		StackableWithCoupons: true,
	}
	if !g.bindJSON(c, &bundle) {
		return
	}
	created, err := g.checkout.CreateBundle(c.Request.Context(), &bundle)
	if err != nil {
		g.fail(c, err)
		return
	}
	respond(c, http.StatusCreated, "bundle created", created)
}
