package api

import "github.com/reloveapp/relove-server/internal/service"

// Services groups all business logic services used by the API server.
// This reduces the parameter count for NewServer and improves testability.
type Services struct {
	Identity     *service.IdentityService
	Catalog      *service.CatalogService
	Reservations *service.ReservationService
	Presence     *service.PresenceService
	Viewers      *service.ViewerService
	Checkout     *service.CheckoutManager
}
