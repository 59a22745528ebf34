package rest

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/freelancehub/hub"
	"github.com/freelancehub/hub/internal/domain"
	"github.com/freelancehub/hub/internal/present/rest/presenter"
	"github.com/freelancehub/hub/internal/service"
	"github.com/freelancehub/hub/internal/usecase"
)

type Handler struct {
	chatlog *usecase.ChatLogUsecase
	catalog *usecase.CatalogUsecase
	orders  *usecase.OrderUsecase
	reviews *usecase.ReviewUsecase
	signal  *service.SignalService
}

func NewHandler(
	chatlog *usecase.ChatLogUsecase,
	catalog *usecase.CatalogUsecase,
	orders *usecase.OrderUsecase,
	reviews *usecase.ReviewUsecase,
	signal *service.SignalService,
) *Handler {
	return &Handler{
		chatlog: chatlog,
		catalog: catalog,
		orders:  orders,
		reviews: reviews,
		signal:  signal,
	}
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/api/messages", h.handleMessages)
	e.GET("/api/gigs", h.handleGigs)
	e.POST("/api/gigs", h.handleCreateGig)
	e.GET("/api/gigs/:id", h.handleGig)
	e.GET("/api/orders/my", h.handleMyOrders)
	e.POST("/api/orders", h.handleCreateOrder)
	e.GET("/api/reviews/:gigId", h.handleReviews)
	e.POST("/api/reviews", h.handleCreateReview)
	e.GET("/realtime", h.handleRealtime)
}

func (h *Handler) handleMessages(c echo.Context) error {
	ctx := c.Request().Context()

	identity := c.QueryParam("identity")
	if identity == "" {
		return presenter.BadRequestMessage(c, "identity parameter is required")
	}

	limit := 0
	limitStr := c.QueryParam("limit")
	if limitStr != "" {
		limitInt, err := strconv.Atoi(limitStr)
		if err != nil {
			return presenter.BadRequestMessage(c, "invalid limit parameter")
		}
		limit = limitInt
	}

	messages, err := h.chatlog.History(ctx, identity, limit)
	if err != nil {
		return presenter.InternalError(c, err)
	}
	return presenter.OK(c, messages)
}

func (h *Handler) handleGigs(c echo.Context) error {
	ctx := c.Request().Context()

	category := c.QueryParam("category")
	if category == "All" {
		category = ""
	}

	gigs, err := h.catalog.List(ctx, category)
	if err != nil {
		return presenter.InternalError(c, err)
	}

	search := strings.ToLower(c.QueryParam("search"))
	if search != "" {
		filtered := make([]hub.Gig, 0, len(gigs))
		for _, gig := range gigs {
			if strings.Contains(strings.ToLower(gig.Title), search) {
				filtered = append(filtered, gig)
			}
		}
		gigs = filtered
	}

	return presenter.OK(c, gigs)
}

func (h *Handler) handleCreateGig(c echo.Context) error {
	ctx := c.Request().Context()

	var gig hub.Gig
	if err := c.Bind(&gig); err != nil {
		return presenter.BadRequest(c, err)
	}

	created, err := h.catalog.Create(ctx, gig)
	if err != nil {
		return presenter.BadRequest(c, err)
	}
	return presenter.OK(c, created)
}

func (h *Handler) handleGig(c echo.Context) error {
	ctx := c.Request().Context()

	gig, err := h.catalog.Get(ctx, c.Param("id"))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return presenter.NotFound(c, "gig not found")
		}
		return presenter.InternalError(c, err)
	}
	return presenter.OK(c, gig)
}

func (h *Handler) handleMyOrders(c echo.Context) error {
	ctx := c.Request().Context()

	buyer := c.QueryParam("buyer")
	if buyer == "" {
		return presenter.BadRequestMessage(c, "buyer parameter is required")
	}

	orders, err := h.orders.ListByBuyer(ctx, buyer)
	if err != nil {
		return presenter.InternalError(c, err)
	}
	owned, err := h.orders.OwnedGigIDs(ctx, buyer)
	if err != nil {
		return presenter.InternalError(c, err)
	}
	return presenter.OK(c, echo.Map{"orders": orders, "ownedGigs": owned})
}

func (h *Handler) handleCreateOrder(c echo.Context) error {
	ctx := c.Request().Context()

	var order hub.Order
	if err := c.Bind(&order); err != nil {
		return presenter.BadRequest(c, err)
	}

	created, err := h.orders.Create(ctx, order)
	if err != nil {
		return presenter.BadRequest(c, err)
	}

	// Other sessions for this buyer learn the purchase without refetching.
	err = h.signal.Publish(ctx, created.BuyerID, hub.NewFrame(hub.EventOrderCompleted, hub.OrderEvent{
		BuyerID: created.BuyerID,
		GigID:   created.GigID,
	}))
	if err != nil {
		slog.ErrorContext(ctx, "failed to publish order event",
			slog.String("error", err.Error()),
			slog.String("module", "rest"),
		)
	}

	return presenter.OK(c, created)
}

func (h *Handler) handleReviews(c echo.Context) error {
	ctx := c.Request().Context()

	reviews, err := h.reviews.ListByGig(ctx, c.Param("gigId"))
	if err != nil {
		return presenter.InternalError(c, err)
	}
	return presenter.OK(c, reviews)
}

func (h *Handler) handleCreateReview(c echo.Context) error {
	ctx := c.Request().Context()

	var review hub.Review
	if err := c.Bind(&review); err != nil {
		return presenter.BadRequest(c, err)
	}

	created, err := h.reviews.Submit(ctx, review)
	if err != nil {
		if errors.Is(err, usecase.ErrNotPurchased) {
			return presenter.Forbidden(c, err.Error())
		}
		return presenter.BadRequest(c, err)
	}
	return presenter.OK(c, created)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// handleRealtime serves the push channel. A connection joins identity rooms
// and receives every frame published to them; messages it sends are appended
// to the log of the room it last joined and fanned back out, the sender's
// copy included so the correlation echo closes the optimistic loop.
func (h *Handler) handleRealtime(c echo.Context) error {
	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		slog.Error(
			"Failed to upgrade WebSocket",
			slog.String("error", err.Error()),
			slog.String("module", "socket"),
		)
		return err
	}
	defer func() {
		ws.Close()
	}()

	ctx := c.Request().Context()

	join := make(chan string)
	output := make(chan hub.Frame)

	go h.signal.Realtime(ctx, join, output)

	quit := make(chan struct{}, 1)
	room := ""

	go func() {
		for {
			var frame hub.Frame
			err := ws.ReadJSON(&frame)
			if err != nil {

				wsErr, ok := err.(*websocket.CloseError)
				if ok {
					if !(wsErr.Code == websocket.CloseNormalClosure || wsErr.Code == websocket.CloseGoingAway) {
						slog.DebugContext(
							ctx, "WebSocket closed",
							slog.String("error", wsErr.Error()),
							slog.String("module", "socket"),
						)
					}
				} else {
					slog.ErrorContext(
						ctx, "Error reading message",
						slog.String("error", err.Error()),
						slog.String("module", "socket"),
					)
				}

				quit <- struct{}{}
				break
			}

			switch frame.Event {
			case hub.EventJoin:
				var payload hub.JoinPayload
				if err := frame.Decode(&payload); err != nil || payload.IdentityID == "" {
					slog.InfoContext(
						ctx, "Malformed join payload",
						slog.String("module", "socket"),
					)
					continue
				}
				room = payload.IdentityID
				select {
				case join <- payload.IdentityID:
				case <-ctx.Done():
					return
				}
				slog.DebugContext(
					ctx, fmt.Sprintf("Socket join: %s", payload.IdentityID),
					slog.String("module", "socket"),
				)
			case hub.EventSendMessage:
				var msg hub.WireMessage
				if err := frame.Decode(&msg); err != nil {
					slog.InfoContext(
						ctx, "Malformed message payload",
						slog.String("module", "socket"),
					)
					continue
				}
				saved, err := h.chatlog.Append(ctx, room, msg)
				if err != nil {
					slog.InfoContext(
						ctx, "Rejected message",
						slog.String("error", err.Error()),
						slog.String("module", "socket"),
					)
					continue
				}
				err = h.signal.Publish(ctx, room, hub.NewFrame(hub.EventReceiveMessage, saved))
				if err != nil {
					slog.ErrorContext(
						ctx, "Failed to publish message",
						slog.String("error", err.Error()),
						slog.String("module", "socket"),
					)
				}
			case "h": // heartbeat
				// do nothing
			default:
				slog.InfoContext(
					ctx, "Unknown event",
					slog.String("event", frame.Event),
					slog.String("module", "socket"),
				)
			}
		}
	}()

	for {
		select {
		case <-quit:
			return nil
		case frame := <-output:
			err := ws.WriteJSON(frame)
			if err != nil {
				slog.ErrorContext(
					ctx, "Error writing message",
					slog.String("error", err.Error()),
					slog.String("module", "socket"),
				)
				return nil
			}
		}
	}
}
