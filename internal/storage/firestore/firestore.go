// Package firestore is the Cloud Firestore storage backend. Contended
// documents (stock, coupon usage, order counters, order status) are only
// changed inside transactions.
package firestore

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/go-faster/errors"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/xenking/kitchen-orders/internal/storage"
)

const (
	productsCollection      = "products"
	stockCollection         = "stock"
	couponsCollection       = "coupons"
	couponUsageCollection   = "couponUsage"
	orderingTimesCollection = "orderingTimes"
	ordersCollection        = "orders"
	countersCollection      = "orderCounters"

	envEmulatorHost    = "FIRESTORE_EMULATOR_HOST"
	envGoogleProjectID = "GOOGLE_CLOUD_PROJECT"

	defaultDialTimeout = 10 * time.Second
	defaultTxAttempts  = 5
)

// Config selects the Firestore project. EmulatorHost, when set, points the
// client at a local emulator without authentication.
type Config struct {
	ProjectID    string `json:"project_id" yaml:"project_id"`
	EmulatorHost string `json:"emulator_host" yaml:"emulator_host"`
}

// NewClient creates a Firestore client for cfg.
func NewClient(ctx context.Context, cfg Config, opts ...option.ClientOption) (*firestore.Client, error) {
	projectID := strings.TrimSpace(cfg.ProjectID)
	if projectID == "" {
		projectID = strings.TrimSpace(os.Getenv(envGoogleProjectID))
	}
	if projectID == "" {
		return nil, errors.New("firestore: project id is required")
	}

	host := strings.TrimSpace(cfg.EmulatorHost)
	if host == "" {
		host = strings.TrimSpace(os.Getenv(envEmulatorHost))
	}
	if host != "" {
		if os.Getenv(envEmulatorHost) == "" {
			_ = os.Setenv(envEmulatorHost, host)
		}
		opts = append(opts,
			option.WithoutAuthentication(),
			option.WithEndpoint(host),
			option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
		)
	}

	dialCtx, cancel := context.WithTimeout(ctx, defaultDialTimeout)
	defer cancel()
	client, err := firestore.NewClient(dialCtx, projectID, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "firestore: create client")
	}
	return client, nil
}

// Open connects and returns a Store over the client.
func Open(ctx context.Context, cfg Config, opts ...option.ClientOption) (*storage.Store, error) {
	client, err := NewClient(ctx, cfg, opts...)
	if err != nil {
		return nil, err
	}
	return NewStore(client), nil
}

// NewStore wraps an existing client. Closing the store closes the client.
func NewStore(client *firestore.Client) *storage.Store {
	return &storage.Store{
		Products:  &ProductRepository{client: client},
		Stock:     &StockLedger{client: client},
		Coupons:   &CouponRepository{client: client},
		Schedules: &ScheduleRepository{client: client},
		Orders:    &OrderRepository{client: client},
		Numbers:   &OrderNumbers{client: client},
		Catalog:   &CatalogWriter{client: client},
		Ping: func(ctx context.Context) error {
			_, err := client.Collection(productsCollection).Limit(1).Documents(ctx).Next()
			if err != nil && !errors.Is(err, iterator.Done) {
				return wrapError("ping", err)
			}
			return nil
		},
		Close: client.Close,
	}
}

type txFunc func(ctx context.Context, tx *firestore.Transaction) error

func runTransaction(ctx context.Context, client *firestore.Client, op string, fn txFunc) error {
	err := client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		return fn(ctx, tx)
	}, firestore.MaxAttempts(defaultTxAttempts))
	return wrapError(op, err)
}

// wrapError annotates driver errors with the operation. Domain errors
// returned from transaction bodies and context errors pass through.
func wrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	switch status.Code(err) {
	case codes.Canceled:
		return context.Canceled
	case codes.DeadlineExceeded:
		return context.DeadlineExceeded
	case codes.Unknown:
		// Not a gRPC status: already a domain error.
		return err
	}
	return fmt.Errorf("firestore %s: %w", op, err)
}

func isNotFound(err error) bool {
	return status.Code(err) == codes.NotFound
}

func isAborted(err error) bool {
	return status.Code(err) == codes.Aborted
}

// docID makes a value safe to use as a document ID.
func docID(parts ...string) string {
	return strings.ReplaceAll(strings.Join(parts, "|"), "/", "_")
}
