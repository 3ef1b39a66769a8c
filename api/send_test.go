package api

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignasirv/zkVaccionation/circuits"
	"github.com/ignasirv/zkVaccionation/identity"
	"github.com/ignasirv/zkVaccionation/state"
	"github.com/ignasirv/zkVaccionation/zkapp"
)

// scriptedContract builds empty transactions and answers each Send with the next queued
// error, succeeding once the queue is drained.
type scriptedContract struct {
	errs   []error
	builds int
	sends  int
}

func (c *scriptedContract) State(context.Context) (state.Snapshot, error) {
	return state.Snapshot{}, zkapp.ErrUninitialized
}

func (c *scriptedContract) AddVaccination(context.Context, identity.Credential) (*zkapp.Transaction, error) {
	c.builds++
	return &zkapp.Transaction{ID: uuid.New(), Method: circuits.MethodAddVaccination}, nil
}

func (c *scriptedContract) CheckVaccination(context.Context) (*zkapp.Transaction, error) {
	c.builds++
	return &zkapp.Transaction{ID: uuid.New(), Method: circuits.MethodCheckVaccination}, nil
}

func (c *scriptedContract) Send(_ context.Context, tx *zkapp.Transaction) (zkapp.Receipt, error) {
	c.sends++
	if len(c.errs) > 0 {
		err := c.errs[0]
		c.errs = c.errs[1:]
		return zkapp.Receipt{TxID: tx.ID, Status: zkapp.StatusRejected}, err
	}
	return zkapp.Receipt{TxID: tx.ID, Method: tx.Method.String(), Status: zkapp.StatusCommitted, Included: true}, nil
}

func staleErr() error {
	return &zkapp.RejectionError{
		Method: circuits.MethodAddVaccination,
		Err:    fmt.Errorf("%w: transaction built against another state", zkapp.ErrStale),
	}
}

func TestSendRetriesStaleTransactions(t *testing.T) {
	body := `{"credential":"` + identity.FromSeed("api-retry").String() + `"}`
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	tests := []struct {
		name       string
		errs       []error
		wantStatus int
		wantSends  int
	}{
		{name: "stale once", errs: []error{staleErr()}, wantStatus: http.StatusOK, wantSends: 2},
		{name: "stale every attempt", errs: []error{staleErr(), staleErr(), staleErr(), staleErr()}, wantStatus: http.StatusConflict, wantSends: maxAttempts},
		{name: "unauthorized is not retried", errs: []error{&zkapp.RejectionError{Err: zkapp.ErrUnauthorized}}, wantStatus: http.StatusForbidden, wantSends: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			contract := &scriptedContract{errs: tt.errs}
			router := New(contract, nil, logger).Router()

			req := httptest.NewRequest(http.MethodPost, "/vaccinations", strings.NewReader(body))
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			require.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			assert.Equal(t, tt.wantSends, contract.sends)
			assert.Equal(t, contract.sends, contract.builds)
		})
	}
}
