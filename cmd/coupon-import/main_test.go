package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	pgzip "github.com/klauspost/pgzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/kitchen-orders/internal/domain/branch"
	"github.com/xenking/kitchen-orders/internal/domain/coupon"
	"github.com/xenking/kitchen-orders/internal/storage/memory"
)

func writeGz(t *testing.T, dir, name string, lines ...string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	gz := pgzip.NewWriter(f)
	_, err = gz.Write([]byte(strings.Join(lines, "\n") + "\n"))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	require.NoError(t, f.Close())
	return path
}

func testOptions(t *testing.T) options {
	t.Helper()
	opts := options{MinFiles: 2, MinLen: 8, MaxLen: 10, BloomCapacity: 1000}
	opts.Template.BranchID = "soho"
	require.NoError(t, opts.buildTemplate("percentage", "15", "20", "camden", "collection, delivery"))
	return opts
}

func TestFindCodes(t *testing.T) {
	dir := t.TempDir()
	files := []string{
		writeGz(t, dir, "a.gz", "HAPPYHRS", "fiftyoff", "ONLYINA1", "SHORT", "HAPPYHRS"),
		writeGz(t, dir, "b.gz", "HAPPYHRS", " FIFTYOFF ", "ONLYINB1", "WAYTOOLONGCODE"),
		writeGz(t, dir, "c.gz", "SIXTYOFF", "HAPPY-HR", "ONLYINC1"),
		writeGz(t, dir, "d.gz", "SIXTYOFF"),
	}
	opts := testOptions(t)

	codes, err := findCodes(context.Background(), files, opts)
	require.NoError(t, err)
	assert.Equal(t, []string{"FIFTYOFF", "HAPPYHRS", "SIXTYOFF"}, codes)

	opts.MinFiles = 3
	codes, err = findCodes(context.Background(), files, opts)
	require.NoError(t, err)
	assert.Empty(t, codes)

	opts.MinFiles = 1
	codes, err = findCodes(context.Background(), files, opts)
	require.NoError(t, err)
	assert.Equal(t, []string{"FIFTYOFF", "HAPPYHRS", "ONLYINA1", "ONLYINB1", "ONLYINC1", "SIXTYOFF"}, codes)

	opts.MinFiles = 5
	_, err = findCodes(context.Background(), files, opts)
	require.Error(t, err)
}

func TestFindCodes_MissingFile(t *testing.T) {
	opts := testOptions(t)
	_, err := findCodes(context.Background(), []string{"nope-1.gz", "nope-2.gz"}, opts)
	require.Error(t, err)
}

func TestWriteCoupons(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	opts := testOptions(t)

	require.NoError(t, writeCoupons(ctx, store.Catalog, opts.Template, []string{"HAPPYHRS", "SIXTYOFF"}))

	c, err := store.Coupons.FindByCode(ctx, "soho", "happyhrs")
	require.NoError(t, err)
	assert.Equal(t, "soho-happyhrs", c.ID)
	assert.Equal(t, coupon.DiscountPercentage, c.Type)
	assert.Equal(t, "15", c.Value.String())
	assert.Equal(t, "20", c.MinSpend.String())
	assert.Equal(t, coupon.StateActive, c.State)
	assert.True(t, c.BranchEnabled["camden"])
	assert.True(t, c.ServiceTypes[branch.DeliveryType])
	assert.False(t, c.ServiceTypes[branch.TableOrdering])
	assert.Len(t, c.DaysAvailable, 7)
	assert.Equal(t, 1, c.Limits.PerCustomer)

	_, err = store.Coupons.FindByCode(ctx, "soho", "SIXTYOFF")
	require.NoError(t, err)
}

func TestBuildTemplate(t *testing.T) {
	tests := []struct {
		name     string
		branch   string
		typ      string
		value    string
		minFiles int
		ok       bool
	}{
		{"valid fixed", "soho", "fixed", "5", 2, true},
		{"no branch", "", "fixed", "5", 2, false},
		{"unknown type", "soho", "bogo", "5", 2, false},
		{"percentage over 100", "soho", "percentage", "120", 2, false},
		{"zero value", "soho", "fixed", "0", 2, false},
		{"bad value", "soho", "fixed", "five", 2, false},
		{"min files", "soho", "fixed", "5", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := options{MinFiles: tt.minFiles}
			opts.Template.BranchID = tt.branch
			err := opts.buildTemplate(tt.typ, tt.value, "0", "", "collection")
			if tt.ok {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
		})
	}
}
