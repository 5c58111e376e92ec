package export_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/taxcrawl/internal/cache"
	"github.com/JakeFAU/taxcrawl/internal/crawler"
	"github.com/JakeFAU/taxcrawl/internal/dof"
	"github.com/JakeFAU/taxcrawl/internal/export"
	"github.com/JakeFAU/taxcrawl/internal/parcel"
	"github.com/JakeFAU/taxcrawl/internal/queue/memory"
	blobmemory "github.com/JakeFAU/taxcrawl/internal/storage/memory"
)

func TestCSV(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := memory.NewStore()
	ok1, ok2 := parcel.MustParse("1000010001"), parcel.MustParse("1000010002")
	failed, pending := parcel.MustParse("2000010001"), parcel.MustParse("3000010001")
	require.NoError(t, store.Build(ctx, "bbls", []parcel.Key{ok1, ok2, failed, pending}))

	older, newer := 8, 10
	require.NoError(t, store.RecordSuccess(ctx, "bbls", crawler.PropertyInfo{
		Key: ok1,
		SOA: []crawler.SOAInfo{
			{DocumentLink: dof.DocumentLink{Kind: dof.KindSOA, Date: "2019-06-05"}, RentStabilizedUnits: &newer},
			{DocumentLink: dof.DocumentLink{Kind: dof.KindSOA, Date: "2018-06-01"}, RentStabilizedUnits: &older},
		},
	}))
	require.NoError(t, store.RecordSuccess(ctx, "bbls", crawler.PropertyInfo{Key: ok2}))
	require.NoError(t, store.RecordFailure(ctx, "bbls", failed, "property page does not exist"))

	var buf bytes.Buffer
	n, err := export.CSV(ctx, &buf, store, "bbls", cache.AsBrotli(cache.New(blobmemory.NewBlobStore())))
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, "bbl,success,rent_stabilized_units,soa_pdf_url\n"+
		"1000010001,true,10,memory://pdf/1/00001/0001/soa-2019-06-05.pdf.br\n"+
		"1000010002,true,,\n"+
		"2000010001,false,,\n"+
		"3000010001,,,\n", buf.String())
}

func TestCSVWithoutLocator(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := memory.NewStore()
	k := parcel.MustParse("1000010001")
	require.NoError(t, store.Build(ctx, "bbls", []parcel.Key{k}))
	units := 3
	require.NoError(t, store.RecordSuccess(ctx, "bbls", crawler.PropertyInfo{
		Key: k,
		SOA: []crawler.SOAInfo{{DocumentLink: dof.DocumentLink{Date: "2020-06-05"}, RentStabilizedUnits: &units}},
	}))

	var buf bytes.Buffer
	_, err := export.CSV(ctx, &buf, store, "bbls", nil)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "1000010001,true,3,\n")
}

func TestCSVMissingTable(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	_, err := export.CSV(context.Background(), &buf, memory.NewStore(), "nope", nil)
	assert.Error(t, err)
}
