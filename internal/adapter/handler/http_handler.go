package handler

import (
	"io"
	"net/http"
	"strconv"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/rl1809/bookstore/internal/core/domain"
	"github.com/rl1809/bookstore/internal/core/service"
)

const (
	requestIDHeader = "X-Request-ID"
	maxEbookSize    = 50 << 20
	maxCoverSize    = 5 << 20
)

type HTTPHandler struct {
	catalog  *service.CatalogService
	cart     *service.CartService
	checkout *service.CheckoutService
	orders   *service.OrderService
	profiles *service.ProfileService
	auth     *Auth
	valid    *validator.Validate
}

func NewHTTPHandler(catalog *service.CatalogService, cart *service.CartService, checkout *service.CheckoutService,
	orders *service.OrderService, profiles *service.ProfileService, auth *Auth) *HTTPHandler {
	return &HTTPHandler{
		catalog:  catalog,
		cart:     cart,
		checkout: checkout,
		orders:   orders,
		profiles: profiles,
		auth:     auth,
		valid:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (h *HTTPHandler) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:    []string{"Origin", "Content-Type", "Authorization", requestIDHeader},
		ExposeHeaders:   []string{"Content-Length", requestIDHeader},
		MaxAge:          12 * 3600,
	}))

	router.GET("/health", h.HealthCheck)

	api := router.Group("/api")
	books := api.Group("/books")
	{
		books.GET("", h.SearchBooks)
		books.GET("/featured", h.FeaturedBooks)
		books.GET("/:id", h.BookDetail)
		books.GET("/:id/cover", h.BookCover)
	}

	authed := api.Group("", h.auth.Authenticate())
	cart := authed.Group("/cart")
	{
		cart.GET("", h.ViewCart)
		cart.GET("/count", h.CartCount)
		cart.POST("", h.AddToCart)
		cart.PUT("/:bookID", h.UpdateCartItem)
		cart.DELETE("/:bookID", h.RemoveFromCart)
	}
	authed.POST("/checkout", h.Checkout)
	authed.GET("/profile", h.GetProfile)
	authed.PUT("/profile", h.UpdateProfile)
	orders := authed.Group("/orders")
	{
		orders.GET("", h.OrderHistory)
		orders.GET("/:id", h.OrderDetail)
	}

	admin := authed.Group("/admin", h.auth.RequireRole(RoleAdmin))
	{
		admin.PUT("/books", h.SaveBook)
		admin.POST("/books/:id/stock", h.AdjustStock)
		admin.POST("/books/:id/ebook", h.UploadEbook)
		admin.POST("/books/:id/cover", h.UploadCover)
		admin.PATCH("/orders/status", h.UpdateOrderStatuses)
		admin.PATCH("/orders/:id/status", h.UpdateOrderStatus)
		admin.POST("/orders/:id/resend", h.ResendConfirmation)
	}

	return router
}

func (h *HTTPHandler) HealthCheck(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// bind decodes and validates a JSON body, answering 400 on failure.
func (h *HTTPHandler) bind(ctx *gin.Context, req any) bool {
	if err := ctx.ShouldBindJSON(req); err != nil {
		badRequest(ctx, "invalid request body")
		return false
	}
	if err := h.valid.Struct(req); err != nil {
		badRequest(ctx, err.Error())
		return false
	}
	return true
}

func idParam(ctx *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(ctx.Param(name), 10, 64)
	if err != nil || id <= 0 {
		badRequest(ctx, "invalid "+name)
		return 0, false
	}
	return id, true
}

func pageQuery(ctx *gin.Context) int {
	page, err := strconv.Atoi(ctx.Query("page"))
	if err != nil || page < 1 {
		return 1
	}
	return page
}

func (h *HTTPHandler) SearchBooks(ctx *gin.Context) {
	q := domain.BookQuery{
		Query:  ctx.Query("q"),
		SortBy: domain.SortOrder(ctx.Query("sort")),
		Page:   pageQuery(ctx),
	}
	if size, err := strconv.Atoi(ctx.Query("page_size")); err == nil {
		q.PageSize = size
	}

	page, err := h.catalog.Search(ctx.Request.Context(), q)
	if err != nil {
		writeError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, BookPageResponse{
		Books:    toBookResponses(page.Books),
		Total:    page.Total,
		Page:     page.Page,
		PageSize: page.PageSize,
	})
}

func (h *HTTPHandler) FeaturedBooks(ctx *gin.Context) {
	limit, _ := strconv.Atoi(ctx.Query("limit"))
	books, err := h.catalog.Featured(ctx.Request.Context(), limit)
	if err != nil {
		writeError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"books": toBookResponses(books)})
}

func (h *HTTPHandler) BookDetail(ctx *gin.Context) {
	id, ok := idParam(ctx, "id")
	if !ok {
		return
	}

	book, err := h.catalog.GetBook(ctx.Request.Context(), id)
	if err != nil {
		writeError(ctx, err)
		return
	}
	related, err := h.catalog.Related(ctx.Request.Context(), id, 0)
	if err != nil {
		writeError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"book":    toBookResponse(*book),
		"related": toBookResponses(related),
	})
}

func (h *HTTPHandler) ViewCart(ctx *gin.Context) {
	view, err := h.cart.View(ctx.Request.Context(), identityOf(ctx).Customer.ID)
	if err != nil {
		writeError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, toCartResponse(view))
}

func (h *HTTPHandler) CartCount(ctx *gin.Context) {
	n, err := h.cart.Count(ctx.Request.Context(), identityOf(ctx).Customer.ID)
	if err != nil {
		writeError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"count": n})
}

func (h *HTTPHandler) AddToCart(ctx *gin.Context) {
	var req AddCartItemRequest
	if !h.bind(ctx, &req) {
		return
	}

	entry, err := h.cart.Add(ctx.Request.Context(), identityOf(ctx).Customer.ID, req.BookID, req.Quantity)
	if err != nil {
		writeError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"book_id": entry.BookID, "quantity": entry.Quantity})
}

func (h *HTTPHandler) UpdateCartItem(ctx *gin.Context) {
	bookID, ok := idParam(ctx, "bookID")
	if !ok {
		return
	}
	var req UpdateCartItemRequest
	if !h.bind(ctx, &req) {
		return
	}

	entry, err := h.cart.Update(ctx.Request.Context(), identityOf(ctx).Customer.ID, bookID, req.Quantity)
	if err != nil {
		writeError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"book_id": entry.BookID, "quantity": entry.Quantity})
}

func (h *HTTPHandler) RemoveFromCart(ctx *gin.Context) {
	bookID, ok := idParam(ctx, "bookID")
	if !ok {
		return
	}

	if err := h.cart.Remove(ctx.Request.Context(), identityOf(ctx).Customer.ID, bookID); err != nil {
		writeError(ctx, err)
		return
	}
	ctx.Status(http.StatusNoContent)
}

// Checkout accepts an empty body, in which case the profile's default
// shipping address is used.
func (h *HTTPHandler) Checkout(ctx *gin.Context) {
	var req ShippingRequest
	if ctx.Request.ContentLength != 0 && !h.bind(ctx, &req) {
		return
	}

	requestID := ctx.GetHeader(requestIDHeader)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	ctx.Header(requestIDHeader, requestID)

	order, err := h.checkout.Checkout(ctx.Request.Context(), service.CheckoutRequest{
		Customer:  identityOf(ctx).Customer,
		Shipping:  req.toDomain(),
		RequestID: requestID,
	})
	if err != nil {
		writeError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, toOrderResponse(*order))
}

func (h *HTTPHandler) OrderHistory(ctx *gin.Context) {
	page, err := h.orders.History(ctx.Request.Context(), identityOf(ctx).Customer.ID, pageQuery(ctx))
	if err != nil {
		writeError(ctx, err)
		return
	}

	resp := OrderPageResponse{
		Orders:   make([]OrderResponse, len(page.Orders)),
		Total:    page.Total,
		Page:     page.Page,
		PageSize: page.PageSize,
	}
	for i, o := range page.Orders {
		resp.Orders[i] = toOrderResponse(o)
	}
	ctx.JSON(http.StatusOK, resp)
}

func (h *HTTPHandler) OrderDetail(ctx *gin.Context) {
	id, ok := idParam(ctx, "id")
	if !ok {
		return
	}

	order, err := h.orders.Get(ctx.Request.Context(), identityOf(ctx).Customer.ID, id)
	if err != nil {
		writeError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, toOrderResponse(*order))
}

func (h *HTTPHandler) SaveBook(ctx *gin.Context) {
	var req SaveBookRequest
	if !h.bind(ctx, &req) {
		return
	}

	book, err := h.catalog.SaveBook(ctx.Request.Context(), domain.Book{
		ISBN:          req.ISBN,
		Title:         req.Title,
		Author:        req.Author,
		Description:   req.Description,
		Price:         req.Price,
		StockQuantity: req.StockQuantity,
		Featured:      req.Featured,
	})
	if err != nil {
		writeError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, toBookResponse(*book))
}

func (h *HTTPHandler) AdjustStock(ctx *gin.Context) {
	id, ok := idParam(ctx, "id")
	if !ok {
		return
	}
	var req AdjustStockRequest
	if !h.bind(ctx, &req) {
		return
	}

	stock, err := h.catalog.AdjustStock(ctx.Request.Context(), id, req.Delta)
	if err != nil {
		writeError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"book_id": id, "stock_quantity": stock})
}

type upload struct {
	filename    string
	contentType string
	data        []byte
}

// readUpload reads the multipart "file" field, answering 400 itself when
// it is missing or larger than limit.
func readUpload(ctx *gin.Context, limit int64) (upload, bool) {
	fh, err := ctx.FormFile("file")
	if err != nil {
		badRequest(ctx, "file is required")
		return upload{}, false
	}
	if fh.Size > limit {
		badRequest(ctx, "file too large")
		return upload{}, false
	}
	f, err := fh.Open()
	if err != nil {
		writeError(ctx, err)
		return upload{}, false
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		writeError(ctx, err)
		return upload{}, false
	}

	contentType := fh.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(data)
	}
	return upload{filename: fh.Filename, contentType: contentType, data: data}, true
}

func (h *HTTPHandler) UploadEbook(ctx *gin.Context) {
	id, ok := idParam(ctx, "id")
	if !ok {
		return
	}
	file, ok := readUpload(ctx, maxEbookSize)
	if !ok {
		return
	}

	book, err := h.catalog.AttachEbook(ctx.Request.Context(), id, file.filename, file.data, file.contentType)
	if err != nil {
		writeError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, toBookResponse(*book))
}

func (h *HTTPHandler) UploadCover(ctx *gin.Context) {
	id, ok := idParam(ctx, "id")
	if !ok {
		return
	}
	file, ok := readUpload(ctx, maxCoverSize)
	if !ok {
		return
	}

	book, err := h.catalog.AttachCover(ctx.Request.Context(), id, file.filename, file.data, file.contentType)
	if err != nil {
		writeError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, toBookResponse(*book))
}

func (h *HTTPHandler) BookCover(ctx *gin.Context) {
	id, ok := idParam(ctx, "id")
	if !ok {
		return
	}

	data, contentType, err := h.catalog.Cover(ctx.Request.Context(), id)
	if err != nil {
		writeError(ctx, err)
		return
	}
	ctx.Header("Cache-Control", "public, max-age=3600")
	ctx.Data(http.StatusOK, contentType, data)
}

func (h *HTTPHandler) GetProfile(ctx *gin.Context) {
	profile, err := h.profiles.Get(ctx.Request.Context(), identityOf(ctx).Customer)
	if err != nil {
		writeError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, toProfileResponse(*profile))
}

func (h *HTTPHandler) UpdateProfile(ctx *gin.Context) {
	var req ProfileRequest
	if !h.bind(ctx, &req) {
		return
	}

	profile, err := h.profiles.Update(ctx.Request.Context(), req.toDomain(identityOf(ctx).Customer.ID))
	if err != nil {
		writeError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, toProfileResponse(*profile))
}

func (h *HTTPHandler) UpdateOrderStatus(ctx *gin.Context) {
	id, ok := idParam(ctx, "id")
	if !ok {
		return
	}
	var req UpdateStatusRequest
	if !h.bind(ctx, &req) {
		return
	}
	next, err := domain.ParseOrderStatus(req.Status)
	if err != nil {
		writeError(ctx, err)
		return
	}

	order, err := h.orders.UpdateStatus(ctx.Request.Context(), id, next)
	if err != nil {
		writeError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, toOrderResponse(*order))
}

func (h *HTTPHandler) UpdateOrderStatuses(ctx *gin.Context) {
	var req BulkStatusRequest
	if !h.bind(ctx, &req) {
		return
	}
	next, err := domain.ParseOrderStatus(req.Status)
	if err != nil {
		writeError(ctx, err)
		return
	}

	n, err := h.orders.UpdateStatuses(ctx.Request.Context(), req.OrderIDs, next)
	if err != nil {
		writeError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"updated": n})
}

func (h *HTTPHandler) ResendConfirmation(ctx *gin.Context) {
	id, ok := idParam(ctx, "id")
	if !ok {
		return
	}
	var req ResendRequest
	if !h.bind(ctx, &req) {
		return
	}

	order, err := h.orders.Lookup(ctx.Request.Context(), id)
	if err != nil {
		writeError(ctx, err)
		return
	}
	customer := domain.Customer{ID: order.UserID, Email: req.Email, Name: req.Name}

	order, err = h.orders.ResendConfirmation(ctx.Request.Context(), id, customer)
	if err != nil {
		writeError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, toOrderResponse(*order))
}
