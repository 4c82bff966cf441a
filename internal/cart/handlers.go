package cart

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/masyukai/cart/internal/common"
	"github.com/masyukai/cart/internal/condition"
	"github.com/masyukai/cart/internal/lock"
	"github.com/masyukai/cart/internal/money"
	"github.com/masyukai/cart/internal/rules"
)

// Handler exposes the cart engine over HTTP. Carts are request-scoped: each
// request loads the cart from storage, mutates it, and discards it.
type Handler struct {
	Storage  Storage
	Events   EventSink
	Policy   money.Policy
	Rules    *rules.Registry
	Instance string
	Logger   zerolog.Logger
	Validate *validator.Validate

	// Locks serialises concurrent mutations of one cart across processes.
	// Nil disables locking, e.g. in tests or single-node deployments.
	Locks   *lock.Locker
	LockTTL time.Duration
}

// NewHandler wires a handler with a ready validator.
func NewHandler(h Handler) *Handler {
	if h.Validate == nil {
		h.Validate = validator.New()
	}
	if h.Instance == "" {
		h.Instance = "default"
	}
	return &h
}

// Routes mounts the cart API onto a chi router.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/", h.Create)
	r.Route("/{cartID}", func(c chi.Router) {
		c.Get("/", h.Get)
		c.Get("/quote", h.GetQuote)
		c.Group(func(m chi.Router) {
			m.Use(h.serialize)
			m.Delete("/", h.Clear)
			m.Post("/items", h.AddItem)
			m.Patch("/items/{itemID}", h.UpdateItem)
			m.Delete("/items/{itemID}", h.RemoveItem)
			m.Post("/items/{itemID}/conditions", h.AddItemCondition)
			m.Delete("/items/{itemID}/conditions/{name}", h.RemoveItemCondition)
			m.Post("/conditions", h.AddCondition)
			m.Delete("/conditions/{name}", h.RemoveCondition)
			m.Post("/dynamic-conditions", h.RegisterDynamic)
			m.Delete("/dynamic-conditions/{name}", h.UnregisterDynamic)
		})
	})
}

// serialize holds the per-cart lock for the duration of a mutating request so
// two concurrent writers never interleave their load-mutate-persist cycles.
func (h *Handler) serialize(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.Locks == nil {
			next.ServeHTTP(w, r)
			return
		}
		instance := r.URL.Query().Get("instance")
		if instance == "" {
			instance = h.Instance
		}
		key := lock.CartKey(chi.URLParam(r, "cartID"), instance)
		err := h.Locks.WithLock(r.Context(), key, h.LockTTL, func(ctx context.Context) error {
			next.ServeHTTP(w, r.WithContext(ctx))
			return nil
		})
		if err != nil {
			common.JSONError(w, http.StatusServiceUnavailable, common.CodeBusy, "cart is busy, retry", nil)
		}
	})
}

func (h *Handler) load(w http.ResponseWriter, r *http.Request) (*Cart, bool) {
	id := chi.URLParam(r, "cartID")
	if id == "" {
		common.JSONError(w, http.StatusBadRequest, common.CodeBadRequest, "cart id is required", nil)
		return nil, false
	}
	instance := r.URL.Query().Get("instance")
	if instance == "" {
		instance = h.Instance
	}
	c, err := New(r.Context(), id, instance, Options{
		Storage: h.Storage,
		Events:  h.Events,
		Policy:  h.Policy,
		Rules:   h.Rules,
		Logger:  h.Logger,
	})
	if err != nil {
		h.Logger.Error().Err(err).Str("cart", id).Msg("load cart")
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "load cart", nil)
		return nil, false
	}
	return c, true
}

// Create mints a new anonymous cart identifier. Nothing is persisted until
// the first mutation.
func (h *Handler) Create(w http.ResponseWriter, _ *http.Request) {
	common.JSON(w, http.StatusCreated, map[string]any{"data": map[string]string{
		"id":       uuid.NewString(),
		"instance": h.Instance,
	}})
}

type contentResponse struct {
	Identifier string                `json:"identifier"`
	Instance   string                `json:"instance"`
	Items      []*Item               `json:"items"`
	Conditions []condition.Condition `json:"conditions"`
	Dynamic    []condition.Condition `json:"dynamic_conditions"`
	Aggregates Aggregates            `json:"aggregates"`
}

// Get returns the cart content with aggregates.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	c, ok := h.load(w, r)
	if !ok {
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": contentResponse{
		Identifier: c.Identifier(),
		Instance:   c.Instance(),
		Items:      c.Items(),
		Conditions: c.Conditions(),
		Dynamic:    c.DynamicConditions(),
		Aggregates: c.aggregates(),
	}})
}

// GetQuote returns the full pricing breakdown.
func (h *Handler) GetQuote(w http.ResponseWriter, r *http.Request) {
	c, ok := h.load(w, r)
	if !ok {
		return
	}
	quote, err := c.Quote()
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": quote})
}

type itemPayload struct {
	ID         string           `json:"id" validate:"required"`
	Name       string           `json:"name" validate:"required"`
	Price      string           `json:"price" validate:"required"`
	Quantity   int              `json:"quantity" validate:"required,gte=1"`
	Attributes map[string]any   `json:"attributes"`
	Conditions []conditionInput `json:"conditions"`
}

type conditionInput struct {
	Name       string               `json:"name" validate:"required"`
	Type       string               `json:"type" validate:"required"`
	Target     string               `json:"target" validate:"required"`
	Value      string               `json:"value" validate:"required"`
	Order      int                  `json:"order"`
	Attributes map[string]any       `json:"attributes"`
	Rules      []condition.RuleSpec `json:"rules"`
}

func (in conditionInput) spec() condition.Spec {
	return condition.Spec{
		Name:       in.Name,
		Type:       condition.Type(in.Type),
		Target:     condition.Target(in.Target),
		Value:      in.Value,
		Order:      in.Order,
		Attributes: in.Attributes,
		Rules:      in.Rules,
	}
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeBadRequest, "invalid payload", nil)
		return false
	}
	if err := h.Validate.Struct(dst); err != nil {
		common.JSONError(w, http.StatusUnprocessableEntity, common.CodeValidation, "invalid payload", err.Error())
		return false
	}
	return true
}

// AddItem adds an item, merging quantity when the id already exists.
func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	c, ok := h.load(w, r)
	if !ok {
		return
	}
	var payload itemPayload
	if !h.decode(w, r, &payload) {
		return
	}
	price, err := money.FromString(payload.Price, h.Policy)
	if err != nil {
		common.JSONError(w, http.StatusUnprocessableEntity, common.CodeValidation, "invalid price", nil)
		return
	}
	conds := make([]condition.Condition, 0, len(payload.Conditions))
	for _, in := range payload.Conditions {
		cond, err := condition.New(in.spec())
		if err != nil {
			h.writeError(w, err)
			return
		}
		conds = append(conds, cond)
	}
	item, err := c.Add(r.Context(), ItemSpec{
		ID:         payload.ID,
		Name:       payload.Name,
		UnitPrice:  price,
		Quantity:   payload.Quantity,
		Attributes: payload.Attributes,
		Conditions: conds,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": item})
}

type quantityInput struct {
	Relative bool `json:"relative"`
	Value    int  `json:"value"`
}

type itemUpdatePayload struct {
	Name       *string        `json:"name"`
	Price      *string        `json:"price"`
	Attributes map[string]any `json:"attributes"`
	Quantity   *quantityInput `json:"quantity"`
}

// UpdateItem patches an item; a quantity reaching zero removes it.
func (h *Handler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	c, ok := h.load(w, r)
	if !ok {
		return
	}
	var payload itemUpdatePayload
	if !h.decode(w, r, &payload) {
		return
	}
	patch := ItemPatch{Name: payload.Name, Attributes: payload.Attributes}
	if payload.Price != nil {
		price, err := money.FromString(*payload.Price, h.Policy)
		if err != nil {
			common.JSONError(w, http.StatusUnprocessableEntity, common.CodeValidation, "invalid price", nil)
			return
		}
		patch.UnitPrice = &price
	}
	if payload.Quantity != nil {
		patch.Quantity = &QuantityPatch{Relative: payload.Quantity.Relative, Value: payload.Quantity.Value}
	}
	item, removed, err := c.Update(r.Context(), chi.URLParam(r, "itemID"), patch)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if removed {
		common.JSON(w, http.StatusOK, map[string]any{"data": map[string]any{"removed": true, "id": item.ID}})
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": item})
}

// RemoveItem deletes an item and its conditions.
func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	c, ok := h.load(w, r)
	if !ok {
		return
	}
	if _, err := c.Remove(r.Context(), chi.URLParam(r, "itemID")); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AddCondition attaches a static cart-level condition.
func (h *Handler) AddCondition(w http.ResponseWriter, r *http.Request) {
	c, ok := h.load(w, r)
	if !ok {
		return
	}
	var payload conditionInput
	if !h.decode(w, r, &payload) {
		return
	}
	cond, err := condition.New(payload.spec())
	if err != nil {
		h.writeError(w, err)
		return
	}
	if err := c.AddCondition(r.Context(), cond); err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": cond})
}

// RemoveCondition removes a static cart-level condition by name.
func (h *Handler) RemoveCondition(w http.ResponseWriter, r *http.Request) {
	c, ok := h.load(w, r)
	if !ok {
		return
	}
	if err := c.RemoveCondition(r.Context(), chi.URLParam(r, "name")); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AddItemCondition attaches a condition to one item.
func (h *Handler) AddItemCondition(w http.ResponseWriter, r *http.Request) {
	c, ok := h.load(w, r)
	if !ok {
		return
	}
	var payload conditionInput
	if !h.decode(w, r, &payload) {
		return
	}
	cond, err := condition.New(payload.spec())
	if err != nil {
		h.writeError(w, err)
		return
	}
	if err := c.AddItemCondition(r.Context(), chi.URLParam(r, "itemID"), cond); err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": cond})
}

// RemoveItemCondition removes a condition from one item.
func (h *Handler) RemoveItemCondition(w http.ResponseWriter, r *http.Request) {
	c, ok := h.load(w, r)
	if !ok {
		return
	}
	if err := c.RemoveItemCondition(r.Context(), chi.URLParam(r, "itemID"), chi.URLParam(r, "name")); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RegisterDynamic registers a rule-gated condition on this cart.
func (h *Handler) RegisterDynamic(w http.ResponseWriter, r *http.Request) {
	c, ok := h.load(w, r)
	if !ok {
		return
	}
	var payload conditionInput
	if !h.decode(w, r, &payload) {
		return
	}
	cond, err := condition.New(payload.spec())
	if err != nil {
		h.writeError(w, err)
		return
	}
	if err := c.RegisterDynamic(r.Context(), cond); err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": cond})
}

// UnregisterDynamic removes a dynamic registration and any attached copies.
func (h *Handler) UnregisterDynamic(w http.ResponseWriter, r *http.Request) {
	c, ok := h.load(w, r)
	if !ok {
		return
	}
	if err := c.UnregisterDynamic(r.Context(), chi.URLParam(r, "name")); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Clear empties the cart.
func (h *Handler) Clear(w http.ResponseWriter, r *http.Request) {
	c, ok := h.load(w, r)
	if !ok {
		return
	}
	if err := c.Clear(r.Context()); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	if err == nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "unknown error", nil)
		return
	}
	var appErr *common.AppError
	if errors.As(err, &appErr) {
		status := appErr.HTTPStatus
		if status == 0 {
			status = http.StatusBadRequest
		}
		common.JSONError(w, status, appErr.Code, appErr.Message, appErr.Details)
		return
	}
	switch {
	case errors.Is(err, ErrItemNotFound), errors.Is(err, ErrConditionNotFound):
		common.JSONError(w, http.StatusNotFound, common.CodeNotFound, err.Error(), nil)
	case errors.Is(err, condition.ErrDuplicateName):
		common.JSONError(w, http.StatusConflict, common.CodeConflict, err.Error(), nil)
	case errors.Is(err, ErrInvalidItem),
		errors.Is(err, condition.ErrInvalidCondition),
		errors.Is(err, condition.ErrInvalidValue),
		errors.Is(err, rules.ErrUnsupportedRule),
		errors.Is(err, rules.ErrInvalidRule):
		common.JSONError(w, http.StatusUnprocessableEntity, common.CodeValidation, err.Error(), nil)
	default:
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "internal error", nil)
	}
}
