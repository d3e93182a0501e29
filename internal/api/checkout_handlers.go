package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	domainerrors "github.com/reloveapp/relove-server/internal/errors"
	"github.com/reloveapp/relove-server/internal/service"
)

func (s *Server) registerCheckoutRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "checkout-begin",
		Method:      http.MethodPost,
		Path:        "/api/v1/checkout",
		Summary:     "Begin checkout",
		Description: "Converts the given bag items into hard reservation locks and opens a checkout session. Items already locked by someone else are reported as conflicts and left out.",
		Security:    []map[string][]string{{"bearer": {}}},
		Tags:        []string{"Checkout"},
	}, s.handleCheckoutBegin)

	huma.Register(s.api, huma.Operation{
		OperationID: "checkout-session",
		Method:      http.MethodGet,
		Path:        "/api/v1/checkout",
		Summary:     "Current checkout session",
		Security:    []map[string][]string{{"bearer": {}}},
		Tags:        []string{"Checkout"},
	}, s.handleCheckoutSession)

	huma.Register(s.api, huma.Operation{
		OperationID: "checkout-keep-going",
		Method:      http.MethodPost,
		Path:        "/api/v1/checkout/keep-going",
		Summary:     "Answer the expiry warning",
		Description: "Confirms the shopper is still there, extending the reservation and returning the session to Active.",
		Security:    []map[string][]string{{"bearer": {}}},
		Tags:        []string{"Checkout"},
	}, s.handleCheckoutKeepGoing)

	huma.Register(s.api, huma.Operation{
		OperationID: "checkout-leave",
		Method:      http.MethodPost,
		Path:        "/api/v1/checkout/leave",
		Summary:     "Leave checkout",
		Description: "Releases the reservation locks and puts the items back into the bag. Fired by page-hide; a no-op after a payment redirect.",
		Security:    []map[string][]string{{"bearer": {}}},
		Tags:        []string{"Checkout"},
	}, s.handleCheckoutLeave)

	huma.Register(s.api, huma.Operation{
		OperationID: "checkout-payment",
		Method:      http.MethodPost,
		Path:        "/api/v1/checkout/payment",
		Summary:     "Hand off to payment",
		Description: "Persists the pending payment and returns the external payment redirect URL. After this, leaving the page no longer releases the locks.",
		Security:    []map[string][]string{{"bearer": {}}},
		Tags:        []string{"Checkout"},
	}, s.handleCheckoutPayment)

	huma.Register(s.api, huma.Operation{
		OperationID: "payment-complete",
		Method:      http.MethodPost,
		Path:        "/api/v1/payments/{reference}/complete",
		Summary:     "Payment provider return",
		Description: "Completes a pending payment: success marks the items sold, failure releases the locks and restores the bag.",
		Tags:        []string{"Checkout"},
	}, s.handlePaymentComplete)
}

// === DTOs ===

// CheckoutBeginRequest names the products to lock.
type CheckoutBeginRequest struct {
	ProductIDs []string `json:"product_ids" validate:"required,min=1,max=50,dive,required" doc:"Products to reserve"`
}

// CheckoutBeginInput wraps the begin request for Huma.
type CheckoutBeginInput struct {
	Body CheckoutBeginRequest
}

// CheckoutResponse describes the caller's checkout session.
type CheckoutResponse struct {
	State            string   `json:"state" doc:"Session state (reserving, active, warning, idle)"`
	Products         []string `json:"products" doc:"Products held by this session"`
	Conflicts        []string `json:"conflicts,omitempty" doc:"Products lost to another shopper"`
	RemainingSeconds int      `json:"remaining_seconds" doc:"Seconds until the reservation expires"`
	Redirected       bool     `json:"redirected" doc:"Whether the session was handed off to payment"`
}

// CheckoutOutput wraps the session response for Huma.
type CheckoutOutput struct {
	Body CheckoutResponse
}

// PaymentRedirectResponse carries the handoff to the payment provider.
type PaymentRedirectResponse struct {
	URL       string `json:"url" doc:"Payment provider redirect URL"`
	Reference string `json:"reference" doc:"Payment reference for the return path"`
}

// PaymentRedirectOutput wraps the redirect response for Huma.
type PaymentRedirectOutput struct {
	Body PaymentRedirectResponse
}

// PaymentCompleteInput is the provider return callback.
type PaymentCompleteInput struct {
	Reference string `path:"reference" doc:"Payment reference"`
	Body      struct {
		Success bool `json:"success" doc:"Whether the payment succeeded"`
	}
}

// === Handlers ===

func (s *Server) handleCheckoutBegin(ctx context.Context, input *CheckoutBeginInput) (*CheckoutOutput, error) {
	claims, err := requireClaims(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.validator.Validate(input.Body); err != nil {
		return nil, err
	}

	checkout, err := s.services.Checkout.Begin(ctx, claims.HolderID(), input.Body.ProductIDs)
	if err != nil {
		return nil, err
	}

	return &CheckoutOutput{Body: mapCheckoutResponse(checkout)}, nil
}

func (s *Server) handleCheckoutSession(ctx context.Context, _ *struct{}) (*CheckoutOutput, error) {
	checkout, err := s.requireSession(ctx)
	if err != nil {
		return nil, err
	}
	return &CheckoutOutput{Body: mapCheckoutResponse(checkout)}, nil
}

func (s *Server) handleCheckoutKeepGoing(ctx context.Context, _ *struct{}) (*CheckoutOutput, error) {
	checkout, err := s.requireSession(ctx)
	if err != nil {
		return nil, err
	}
	checkout.KeepGoing()
	return &CheckoutOutput{Body: mapCheckoutResponse(checkout)}, nil
}

func (s *Server) handleCheckoutLeave(ctx context.Context, _ *struct{}) (*struct{}, error) {
	checkout, err := s.requireSession(ctx)
	if err != nil {
		return nil, err
	}
	if err := checkout.Leave(ctx); err != nil {
		return nil, err
	}
	return nil, nil
}

func (s *Server) handleCheckoutPayment(ctx context.Context, _ *struct{}) (*PaymentRedirectOutput, error) {
	checkout, err := s.requireSession(ctx)
	if err != nil {
		return nil, err
	}

	url, reference, err := checkout.BeginPaymentRedirect(ctx)
	if err != nil {
		return nil, err
	}

	return &PaymentRedirectOutput{Body: PaymentRedirectResponse{URL: url, Reference: reference}}, nil
}

func (s *Server) handlePaymentComplete(ctx context.Context, input *PaymentCompleteInput) (*struct{}, error) {
	if err := s.services.Checkout.CompletePayment(ctx, input.Reference, input.Body.Success); err != nil {
		return nil, err
	}
	return nil, nil
}

// requireSession returns the caller's live checkout session.
func (s *Server) requireSession(ctx context.Context) (*service.Checkout, error) {
	claims, err := requireClaims(ctx)
	if err != nil {
		return nil, err
	}
	checkout := s.services.Checkout.Session(claims.HolderID())
	if checkout == nil {
		return nil, domainerrors.NotFound("no active checkout session")
	}
	return checkout, nil
}

func mapCheckoutResponse(checkout *service.Checkout) CheckoutResponse {
	return CheckoutResponse{
		State:            string(checkout.State()),
		Products:         checkout.Products(),
		Conflicts:        checkout.Conflicts(),
		RemainingSeconds: int(checkout.Remaining().Seconds()),
		Redirected:       checkout.Redirected(),
	}
}
