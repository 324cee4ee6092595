package currency

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tejusbharadwaj/spotprice/internal/models"
)

const ecbFixture = `<?xml version="1.0" encoding="UTF-8"?>
<gesmes:Envelope xmlns:gesmes="http://www.gesmes.org/xml/2002-08-01" xmlns="http://www.ecb.int/vocabulary/2002-08-01/eurofxref">
	<gesmes:subject>Reference rates</gesmes:subject>
	<Cube>
		<Cube time="2024-01-15">
			<Cube currency="USD" rate="1.0945"/>
			<Cube currency="SEK" rate="11.2385"/>
			<Cube currency="NOK" rate="11.4055"/>
		</Cube>
	</Cube>
</gesmes:Envelope>`

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestECBProvider_FetchesAndCaches(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Write([]byte(ecbFixture))
	}))
	defer srv.Close()

	p := NewECBProvider(srv.URL, time.Hour, srv.Client(), quietLogger())

	table, err := p.Rates(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "EUR", table.Base)
	assert.Equal(t, 11.2385, table.Rates["SEK"])
	assert.Equal(t, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), table.Timestamp)

	_, err = p.Rates(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))

	f, err := table.Factor("SEK", "NOK")
	require.NoError(t, err)
	v, _ := f.Float64()
	assert.InDelta(t, 11.4055/11.2385, v, 1e-9)
}

func TestECBProvider_ServesStaleOnFailure(t *testing.T) {
	fail := int32(0)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.LoadInt32(&fail) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(ecbFixture))
	}))
	defer srv.Close()

	now := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
	p := NewECBProvider(srv.URL, time.Minute, srv.Client(), quietLogger())
	p.now = func() time.Time { return now }

	_, err := p.Rates(context.Background())
	require.NoError(t, err)

	atomic.StoreInt32(&fail, 1)
	now = now.Add(time.Hour)
	table, err := p.Rates(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1.0945, table.Rates["USD"])
}

func TestECBProvider_ErrorWithoutCache(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	p := NewECBProvider(srv.URL, time.Minute, srv.Client(), quietLogger())
	_, err := p.Rates(context.Background())
	assert.ErrorIs(t, err, models.ErrTransport)
}

func TestStaticRates(t *testing.T) {
	s := NewStaticRates("eur", map[string]float64{"sek": 11})
	table, err := s.Rates(context.Background())
	require.NoError(t, err)
	r, ok := table.Rate("SEK")
	require.True(t, ok)
	v, _ := r.Float64()
	assert.Equal(t, 11.0, v)

	_, ok = table.Rate("JPY")
	assert.False(t, ok)
}
