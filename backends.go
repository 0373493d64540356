package main

import (
	"context"
	"fmt"

	"vigila/config"
	"vigila/db"
	"vigila/gateway"
	"vigila/models"
)

// backends are the domain gateways of the configured backend, each bounded
// by the gateway timeout.
type backends struct {
	bookings gateway.Backend[models.Booking]
	services gateway.Backend[models.Service]
	sales    gateway.Backend[models.Sale]
	guests   gateway.Backend[models.Guest]
	close    func()
}

func openBackends(ctx context.Context, cfg config.Config, store *db.Store) (backends, error) {
	b := backends{close: func() {}}
	switch cfg.Backend {
	case config.BackendMongo:
		b.bookings = gateway.NewMongo[models.Booking](store.BookingsCollection)
		b.services = gateway.NewMongo[models.Service](store.ServicesCollection)
		b.sales = gateway.NewMongo[models.Sale](store.SalesCollection)
		b.guests = gateway.NewMongo[models.Guest](store.GuestsCollection)
	case config.BackendPostgres:
		pool, err := gateway.OpenPool(ctx, cfg.PostgresDSN)
		if err != nil {
			return backends{}, err
		}
		b.bookings = gateway.NewPostgres[models.Booking](pool, db.Bookings)
		b.services = gateway.NewPostgres[models.Service](pool, db.Services)
		b.sales = gateway.NewPostgres[models.Sale](pool, db.Sales)
		b.guests = gateway.NewPostgres[models.Guest](pool, db.Guests)
		b.close = pool.Close
	case config.BackendREST:
		client, err := gateway.NewRESTClient(gateway.RESTConfig{URL: cfg.RESTURL, APIKey: cfg.RESTAPIKey, MaxBodyBytes: cfg.RESTMaxBody})
		if err != nil {
			return backends{}, err
		}
		b.bookings = gateway.NewREST[models.Booking](client, db.Bookings)
		b.services = gateway.NewREST[models.Service](client, db.Services)
		b.sales = gateway.NewREST[models.Sale](client, db.Sales)
		b.guests = gateway.NewREST[models.Guest](client, db.Guests)
	default:
		return backends{}, fmt.Errorf("unknown gateway backend %q", cfg.Backend)
	}

	b.bookings = gateway.WithTimeout(b.bookings, cfg.GatewayTimeout)
	b.services = gateway.WithTimeout(b.services, cfg.GatewayTimeout)
	b.sales = gateway.WithTimeout(b.sales, cfg.GatewayTimeout)
	b.guests = gateway.WithTimeout(b.guests, cfg.GatewayTimeout)
	return b, nil
}
