// Command coupon-import turns gzip-compressed promo code lists into branch
// coupons. A code is imported when it appears in at least -min-files of the
// input files; membership is tested with one bloom filter per file so the
// lists never have to fit in memory.
package main

import (
	"bufio"
	"context"
	"flag"
	"log/slog"
	"math/bits"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/kitchen-orders/internal/app"
	"github.com/xenking/kitchen-orders/internal/domain/branch"
	"github.com/xenking/kitchen-orders/internal/domain/coupon"
	"github.com/xenking/kitchen-orders/internal/storage"
)

const (
	bloomFPR      = 0.001
	progressEvery = 10_000_000
	writeWorkers  = 8
)

type options struct {
	Pattern       string
	MinFiles      int
	MinLen        int
	MaxLen        int
	BloomCapacity uint

	Template coupon.Coupon
}

func main() {
	var (
		cfg  app.StorageConfig
		opts options

		couponType   string
		value        string
		minSpend     string
		branches     string
		serviceTypes string
	)

	flag.StringVar(&cfg.Driver, "driver", storage.DriverPostgres, "storage backend: postgres or firestore")
	flag.StringVar(&cfg.DatabaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&cfg.Firestore.ProjectID, "firestore-project", "", "Firestore project (or GOOGLE_CLOUD_PROJECT env)")
	flag.StringVar(&cfg.Firestore.EmulatorHost, "firestore-emulator", "", "Firestore emulator host")

	flag.StringVar(&opts.Pattern, "files", "data/*.gz", "glob of gzip code lists, one code per line")
	flag.IntVar(&opts.MinFiles, "min-files", 2, "import codes present in at least this many files")
	flag.IntVar(&opts.MinLen, "min-len", 8, "minimum code length")
	flag.IntVar(&opts.MaxLen, "max-len", 10, "maximum code length")
	flag.UintVar(&opts.BloomCapacity, "bloom-capacity", 120_000_000, "expected codes per file")

	flag.StringVar(&opts.Template.BranchID, "branch", "", "branch owning the coupons")
	flag.StringVar(&branches, "enable-branches", "", "comma-separated branches the coupons are valid at (default: -branch)")
	flag.StringVar(&couponType, "type", string(coupon.DiscountPercentage), "discount type: percentage or fixed")
	flag.StringVar(&value, "value", "10", "discount value")
	flag.StringVar(&minSpend, "min-spend", "0", "minimum order total")
	flag.StringVar(&serviceTypes, "service-types", "collection,delivery,tableOrdering", "comma-separated service types")
	flag.IntVar(&opts.Template.Limits.PerCustomer, "limit-per-customer", 1, "redemptions per customer (0 = unbounded)")
	flag.IntVar(&opts.Template.Limits.Total, "limit-total", 0, "total redemptions (0 = unbounded)")
	flag.BoolVar(&opts.Template.FirstOrderOnly, "first-order-only", false, "restrict to a customer's first order")
	flag.Parse()

	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid storage configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if err := opts.buildTemplate(couponType, value, minSpend, branches, serviceTypes); err != nil {
		slog.Error("invalid coupon template", slog.String("error", err.Error()))
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, cfg, opts); err != nil {
		slog.Error("coupon import failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("coupon import completed successfully")
}

func (o *options) buildTemplate(couponType, value, minSpend, branches, serviceTypes string) error {
	t := &o.Template
	if t.BranchID == "" {
		return errors.New("-branch is required")
	}
	t.Type = coupon.DiscountType(couponType)
	if t.Type != coupon.DiscountPercentage && t.Type != coupon.DiscountFixed {
		return errors.Errorf("unknown discount type %q", couponType)
	}
	var err error
	if t.Value, err = decimal.NewFromString(value); err != nil {
		return errors.Wrap(err, "parse -value")
	}
	if !t.Value.IsPositive() {
		return errors.New("-value must be positive")
	}
	if t.Type == coupon.DiscountPercentage && t.Value.GreaterThan(decimal.NewFromInt(100)) {
		return errors.New("percentage -value must not exceed 100")
	}
	if t.MinSpend, err = decimal.NewFromString(minSpend); err != nil {
		return errors.Wrap(err, "parse -min-spend")
	}

	t.BranchEnabled = map[string]bool{t.BranchID: true}
	for _, b := range splitList(branches) {
		t.BranchEnabled[b] = true
	}
	t.ServiceTypes = make(map[branch.ServiceType]bool)
	for _, st := range splitList(serviceTypes) {
		t.ServiceTypes[branch.ServiceType(st)] = true
	}
	t.DaysAvailable = make(map[string]bool, 7)
	for d := range 7 {
		t.DaysAvailable[branch.WeekdayKey(time.Weekday(d))] = true
	}
	t.State = coupon.StateActive
	if o.MinFiles < 1 {
		return errors.New("-min-files must be at least 1")
	}
	return nil
}

func run(ctx context.Context, cfg app.StorageConfig, opts options) error {
	files, err := filepath.Glob(opts.Pattern)
	if err != nil {
		return errors.Wrap(err, "expand -files")
	}
	slices.Sort(files)
	codes, err := findCodes(ctx, files, opts)
	if err != nil {
		return err
	}
	slog.Info("valid codes found", slog.Int("count", len(codes)))
	if len(codes) == 0 {
		return nil
	}

	slog.Info("connecting to storage", slog.String("driver", cfg.Driver))
	store, err := app.OpenStorage(ctx, cfg)
	if err != nil {
		return errors.Wrap(err, "open storage")
	}
	defer func() { _ = store.Close() }()

	return writeCoupons(ctx, store.Catalog, opts.Template, codes)
}

// findCodes returns the normalised codes present in at least opts.MinFiles
// files, sorted.
func findCodes(ctx context.Context, files []string, opts options) ([]string, error) {
	if len(files) < opts.MinFiles {
		return nil, errors.Errorf("need at least %d files, found %d", opts.MinFiles, len(files))
	}
	if len(files) > bits.UintSize {
		return nil, errors.Errorf("at most %d files are supported", bits.UintSize)
	}
	if opts.MinFiles == 1 {
		return collectAll(ctx, files, opts)
	}

	slog.Info("pass 1: building bloom filters", slog.Int("files", len(files)))
	filters, err := buildBloomFilters(ctx, files, opts)
	if err != nil {
		return nil, errors.Wrap(err, "build bloom filters")
	}

	slog.Info("pass 2: finding candidate codes")
	return findCandidates(ctx, files, filters, opts)
}

func buildBloomFilters(ctx context.Context, files []string, opts options) ([]*bloom.BloomFilter, error) {
	filters := make([]*bloom.BloomFilter, len(files))
	g, ctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			filter := bloom.NewWithEstimates(opts.BloomCapacity, bloomFPR)
			var count uint64
			err := streamCodes(ctx, path, opts, func(code string) {
				filter.AddString(code)
				count++
				if count%progressEvery == 0 {
					slog.Info("pass 1 progress", slog.String("file", path), slog.Uint64("codes", count))
				}
			})
			if err != nil {
				return errors.Wrapf(err, "build filter for %s", path)
			}
			slog.Info("pass 1 complete", slog.String("file", path), slog.Uint64("total_codes", count))
			filters[i] = filter
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return filters, nil
}

// findCandidates re-streams each file and records which files every code
// was seen in. A code is only tracked when the bloom filters say it may
// appear in enough other files, which keeps the maps small.
func findCandidates(ctx context.Context, files []string, filters []*bloom.BloomFilter, opts options) ([]string, error) {
	found := make([]map[string]uint, len(files))
	g, ctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			seen := make(map[string]uint)
			bit := uint(1) << uint(i)
			err := streamCodes(ctx, path, opts, func(code string) {
				hits := 1
				for j, f := range filters {
					if j != i && f.TestString(code) {
						hits++
					}
				}
				if hits >= opts.MinFiles {
					seen[code] |= bit
				}
			})
			if err != nil {
				return errors.Wrapf(err, "scan %s", path)
			}
			slog.Info("pass 2 complete", slog.String("file", path), slog.Int("candidates", len(seen)))
			found[i] = seen
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := make(map[string]uint)
	for _, seen := range found {
		for code, mask := range seen {
			merged[code] |= mask
		}
	}
	var codes []string
	for code, mask := range merged {
		// Bloom false positives are dropped here: the mask only holds
		// files the code was actually read from.
		if bits.OnesCount(mask) >= opts.MinFiles {
			codes = append(codes, code)
		}
	}
	slices.Sort(codes)
	return codes, nil
}

func collectAll(ctx context.Context, files []string, opts options) ([]string, error) {
	set := make(map[string]struct{})
	for _, path := range files {
		if err := streamCodes(ctx, path, opts, func(code string) { set[code] = struct{}{} }); err != nil {
			return nil, errors.Wrapf(err, "scan %s", path)
		}
	}
	codes := make([]string, 0, len(set))
	for code := range set {
		codes = append(codes, code)
	}
	slices.Sort(codes)
	return codes, nil
}

// streamCodes calls fn with every well-formed code of a gzip file.
func streamCodes(ctx context.Context, path string, opts options, fn func(code string)) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	scanner := bufio.NewScanner(gz)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		code := coupon.NormalizeCode(scanner.Text())
		if len(code) < opts.MinLen || len(code) > opts.MaxLen || !alphanumeric(code) {
			continue
		}
		fn(code)
	}
	return errors.Wrapf(scanner.Err(), "scan %s", path)
}

func writeCoupons(ctx context.Context, catalog storage.CatalogWriter, template coupon.Coupon, codes []string) error {
	slog.Info("writing coupons", slog.Int("count", len(codes)), slog.String("branch", template.BranchID))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(writeWorkers)
	for _, code := range codes {
		c := template
		c.ID = strings.ToLower(template.BranchID + "-" + code)
		c.Code = code
		c.Name = "Promo " + code
		g.Go(func() error {
			return errors.Wrapf(catalog.UpsertCoupon(ctx, c), "upsert coupon %s", code)
		})
	}
	return g.Wait()
}

func alphanumeric(s string) bool {
	for _, r := range s {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
