package tests

import (
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/trezcool/entrykart/apps/api/echo"
	"github.com/trezcool/entrykart/core/access"
	"github.com/trezcool/entrykart/core/maintenance"
	"github.com/trezcool/entrykart/core/society"
	testutil "github.com/trezcool/entrykart/tests"
)

var jan17 = testutil.Date(2024, 1, 17)

func Test_auth(t *testing.T) {
	f := setup(t, jan17)

	expired := NewClaims(conf, "owner@test.in")
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
	expiredToken, err := GenerateToken([]byte(conf.SecretKey), expired)
	require.NoError(t, err)
	foreignToken, err := GenerateToken([]byte("not-our-secret"), NewClaims(conf, "owner@test.in"))
	require.NoError(t, err)
	anonymousToken, err := GenerateToken([]byte(conf.SecretKey), NewClaims(conf, "  "))
	require.NoError(t, err)

	tests := []httpTest{
		{
			name:     "health",
			method:   http.MethodGet,
			path:     "/health",
			wantCode: http.StatusOK,
			wantData: []byte(`{"status":"ok"}`),
		},
		{
			name:     "no token",
			method:   http.MethodGet,
			path:     "/v1/maintenance/current",
			wantCode: http.StatusUnauthorized,
			wantData: marchallObj(t, errMissingToken),
		},
		{
			name:     "garbage token",
			method:   http.MethodGet,
			path:     "/v1/maintenance/current",
			token:    "garbage",
			wantCode: http.StatusUnauthorized,
			wantData: marchallObj(t, errInvalidToken),
		},
		{
			name:     "expired token",
			method:   http.MethodGet,
			path:     "/v1/maintenance/current",
			token:    expiredToken,
			wantCode: http.StatusUnauthorized,
			wantData: marchallObj(t, errInvalidToken),
		},
		{
			name:     "foreign token",
			method:   http.MethodGet,
			path:     "/v1/maintenance/current",
			token:    foreignToken,
			wantCode: http.StatusUnauthorized,
			wantData: marchallObj(t, errInvalidToken),
		},
		{
			name:     "token without email",
			method:   http.MethodGet,
			path:     "/v1/maintenance/current",
			token:    anonymousToken,
			wantCode: http.StatusUnauthorized,
			wantData: marchallObj(t, errInvalidToken),
		},
		{
			name:     "admin route without email",
			method:   http.MethodGet,
			path:     "/v1/maintenance/records",
			token:    anonymousToken,
			wantCode: http.StatusUnauthorized,
			wantData: marchallObj(t, errInvalidToken),
		},
		{
			name:     "unknown owner",
			method:   http.MethodGet,
			path:     "/v1/maintenance/current",
			token:    getToken(t, "ghost@test.in"),
			wantCode: http.StatusNotFound,
			wantData: marchallObj(t, httpErr{Error: society.ErrOwnerNotFound.Error()}),
		},
		{
			name:     "owners are not admins",
			method:   http.MethodGet,
			path:     "/v1/maintenance/records",
			token:    getToken(t, "owner@test.in"),
			wantCode: http.StatusForbidden,
			wantData: marchallObj(t, httpErr{Error: access.ErrNotAuthorized.Error()}),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checkCodeAndData(t, tt, f.serve(tt))
		})
	}
}

func Test_maintenanceApi_owner(t *testing.T) {
	f := setup(t, jan17)
	token := getToken(t, "owner@test.in")

	// current month, past the grace day
	rec := f.serve(httpTest{method: http.MethodGet, path: "/v1/maintenance/current", token: token})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var st maintenance.Statement
	unmarchallObj(t, rec, &st)
	assert.Equal(t, "Green Park", st.SocietyName)
	assert.Equal(t, "Flat 1", st.FlatNumber)
	assert.Equal(t, maintenance.StatusOverdue, st.Maintenance.Status)
	assert.Equal(t, "2024-01", st.Maintenance.Period)
	assert.True(t, decimal.NewFromInt(100).Equal(st.Maintenance.Penalty))

	tests := []httpTest{
		{
			name:     "invalid payment date",
			method:   http.MethodPost,
			path:     "/v1/maintenance/payments",
			body:     []byte(`{"payment_date":"soon"}`),
			token:    token,
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"payment_date":"payment_date must be a date (YYYY-MM-DD or RFC3339)"}`),
		},
		{
			name:     "missing payment date",
			method:   http.MethodPost,
			path:     "/v1/maintenance/payments",
			body:     []byte(`{}`),
			token:    token,
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"payment_date":"this field is required"}`),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checkCodeAndData(t, tt, f.serve(tt))
		})
	}

	// pay
	payment := httpTest{method: http.MethodPost, path: "/v1/maintenance/payments", body: []byte(`{"payment_date":"2024-01-17"}`), token: token}
	rec = f.serve(payment)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var paid maintenance.Record
	unmarchallObj(t, rec, &paid)
	assert.Equal(t, st.Maintenance.ID, paid.ID)
	assert.Equal(t, maintenance.StatusPaid, paid.Status)
	assert.True(t, decimal.NewFromInt(1100).Equal(paid.Amount))
	require.NotNil(t, paid.PaymentDate)

	// paying twice
	payment.wantCode = http.StatusBadRequest
	payment.wantData = marchallObj(t, map[string]string{"payment_date": maintenance.ErrAlreadyPaid.Error()})
	checkCodeAndData(t, payment, f.serve(payment))

	rec = f.serve(httpTest{method: http.MethodGet, path: "/v1/maintenance/history", token: token})
	require.Equal(t, http.StatusOK, rec.Code)
	var history []maintenance.Record
	unmarchallObj(t, rec, &history)
	require.Len(t, history, 1)
	assert.Equal(t, paid.ID, history[0].ID)

	checkCodeAndData(t, httpTest{wantCode: http.StatusOK, wantData: []byte(`{"pending_payments":[],"total_pending":0,"count":0}`)},
		f.serve(httpTest{method: http.MethodGet, path: "/v1/maintenance/pending", token: token}))
}

func Test_maintenanceApi_pending(t *testing.T) {
	f := setup(t, jan17)
	owner := f.ownerByEmail(t, "owner@test.in")

	// december was never paid
	_, _, err := f.repos.Maintenance.FindOrCreateRecord(ctx(), testutil.NewRecord(owner, testutil.Date(2023, 12, 10)))
	require.NoError(t, err)

	token := getToken(t, "owner@test.in")
	rec := f.serve(httpTest{method: http.MethodGet, path: "/v1/maintenance/pending", token: token})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var summary maintenance.PendingSummary
	unmarchallObj(t, rec, &summary)
	// the current month is only created by /current
	require.Equal(t, 1, summary.Count)
	// 38 days late: 6 weeks
	assert.True(t, decimal.NewFromInt(600).Equal(summary.PendingPayments[0].Penalty))
	assert.True(t, decimal.NewFromInt(1600).Equal(summary.TotalPending))
	assert.Equal(t, maintenance.StatusOverdue, summary.PendingPayments[0].Status)

	stored := f.recordOf(t, "owner@test.in")
	assert.Equal(t, maintenance.StatusOverdue, stored.Status)
	assert.True(t, decimal.NewFromInt(600).Equal(stored.Penalty))
}

func Test_maintenanceApi_admin(t *testing.T) {
	f := setup(t, jan17)
	for _, email := range []string{"owner@test.in", "blue@test.in"} {
		rec := f.serve(httpTest{method: http.MethodGet, path: "/v1/maintenance/current", token: getToken(t, email)})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}
	greenRec := f.recordOf(t, "owner@test.in")
	blueRec := f.recordOf(t, "blue@test.in")

	superToken := getToken(t, "super@test.in")
	adminToken := getToken(t, "admin@test.in")
	guardToken := getToken(t, "gate@test.in")

	listPath := func(params url.Values) string {
		return "/v1/maintenance/records?" + params.Encode()
	}

	t.Run("scoped lists", func(t *testing.T) {
		tests := []struct {
			name    string
			token   string
			path    string
			wantIDs []string
		}{
			{name: "superadmin", token: superToken, path: listPath(nil), wantIDs: []string{greenRec.ID, blueRec.ID}},
			{name: "guard", token: guardToken, path: listPath(nil), wantIDs: []string{greenRec.ID, blueRec.ID}},
			{name: "admin", token: adminToken, path: listPath(nil), wantIDs: []string{greenRec.ID}},
			{name: "admin asking for another society", token: adminToken, path: listPath(url.Values{"society": {"Blue Hills"}}), wantIDs: []string{}},
			{name: "society filter", token: superToken, path: listPath(url.Values{"society": {"blue hills"}}), wantIDs: []string{blueRec.ID}},
			{name: "status filter", token: superToken, path: listPath(url.Values{"status": {"Paid"}}), wantIDs: []string{}},
			{name: "due range", token: superToken, path: listPath(url.Values{"due_from": {"2024-01-01"}, "due_to": {"2024-01-31"}}), wantIDs: []string{greenRec.ID, blueRec.ID}},
			{name: "due range before", token: superToken, path: listPath(url.Values{"due_to": {"2023-12-31"}}), wantIDs: []string{}},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				rec := f.serve(httpTest{method: http.MethodGet, path: tt.path, token: tt.token})
				require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
				var recs []maintenance.Record
				unmarchallObj(t, rec, &recs)
				ids := make([]string, 0, len(recs))
				for _, r := range recs {
					ids = append(ids, r.ID)
				}
				assert.ElementsMatch(t, tt.wantIDs, ids)
			})
		}
	})

	tests := []httpTest{
		{
			name:     "invalid status filter",
			method:   http.MethodGet,
			path:     listPath(url.Values{"status": {"Late"}}),
			token:    superToken,
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"status":"status must be one of: Pending, Paid, Overdue"}`),
		},
		{
			name:     "invalid due_from",
			method:   http.MethodGet,
			path:     listPath(url.Values{"due_from": {"yesterday"}}),
			token:    superToken,
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"due_from":"invalid date; use YYYY-MM-DD or RFC3339"}`),
		},
		{
			name:     "count",
			method:   http.MethodGet,
			path:     "/v1/maintenance/records/count",
			token:    adminToken,
			wantCode: http.StatusOK,
			wantData: marchallObj(t, CountResponse{Count: 1}),
		},
		{
			name:     "count overdue",
			method:   http.MethodGet,
			path:     "/v1/maintenance/records/count?status=Overdue",
			token:    superToken,
			wantCode: http.StatusOK,
			wantData: marchallObj(t, CountResponse{Count: 2}),
		},
		{
			name:     "retrieve",
			method:   http.MethodGet,
			path:     "/v1/maintenance/records/" + greenRec.ID,
			token:    adminToken,
			wantCode: http.StatusOK,
			wantData: marchallObj(t, greenRec),
		},
		{
			name:     "retrieve out of scope",
			method:   http.MethodGet,
			path:     "/v1/maintenance/records/" + blueRec.ID,
			token:    adminToken,
			wantCode: http.StatusForbidden,
			wantData: marchallObj(t, httpErr{Error: access.ErrOutOfScope.Error()}),
		},
		{
			name:     "retrieve unknown",
			method:   http.MethodGet,
			path:     "/v1/maintenance/records/nope",
			token:    superToken,
			wantCode: http.StatusNotFound,
			wantData: marchallObj(t, httpErr{Error: maintenance.ErrNotFound.Error()}),
		},
		{
			name:     "guards cannot correct",
			method:   http.MethodPut,
			path:     "/v1/maintenance/records/" + greenRec.ID,
			body:     []byte(`{"penalty":0}`),
			token:    guardToken,
			wantCode: http.StatusForbidden,
			wantData: marchallObj(t, httpErr{Error: access.ErrForbidden.Error()}),
		},
		{
			name:     "correct out of scope",
			method:   http.MethodPut,
			path:     "/v1/maintenance/records/" + blueRec.ID,
			body:     []byte(`{"penalty":0}`),
			token:    adminToken,
			wantCode: http.StatusForbidden,
			wantData: marchallObj(t, httpErr{Error: access.ErrOutOfScope.Error()}),
		},
		{
			name:     "correct unknown record",
			method:   http.MethodPut,
			path:     "/v1/maintenance/records/nope",
			body:     []byte(`{"penalty":0}`),
			token:    adminToken,
			wantCode: http.StatusNotFound,
			wantData: marchallObj(t, httpErr{Error: maintenance.ErrNotFound.Error()}),
		},
		{
			name:     "correct with invalid due date",
			method:   http.MethodPut,
			path:     "/v1/maintenance/records/" + greenRec.ID,
			body:     []byte(`{"due_date":"10/01/2024"}`),
			token:    adminToken,
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"due_date":"due_date must be a date (YYYY-MM-DD or RFC3339)"}`),
		},
		{
			name:     "correct with negative amount",
			method:   http.MethodPut,
			path:     "/v1/maintenance/records/" + greenRec.ID,
			body:     []byte(`{"amount":-1}`),
			token:    adminToken,
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"amount":"amount cannot be negative"}`),
		},
		{
			name:     "preview penalty",
			method:   http.MethodPost,
			path:     "/v1/maintenance/penalty",
			body:     []byte(`{"due_date":"2024-01-10","as_of":"2024-01-24"}`),
			token:    guardToken,
			wantCode: http.StatusOK,
			wantData: []byte(`{"penalty":200}`),
		},
		{
			name:     "preview penalty with base amount",
			method:   http.MethodPost,
			path:     "/v1/maintenance/penalty",
			body:     []byte(`{"base_amount":2000,"due_date":"2023-12-10","as_of":"2024-01-03"}`),
			token:    adminToken,
			wantCode: http.StatusOK,
			wantData: []byte(`{"penalty":800}`),
		},
		{
			name:     "preview penalty with zero base amount",
			method:   http.MethodPost,
			path:     "/v1/maintenance/penalty",
			body:     []byte(`{"base_amount":0,"due_date":"2024-01-10","as_of":"2024-01-17"}`),
			token:    adminToken,
			wantCode: http.StatusOK,
			wantData: []byte(`{"penalty":0}`),
		},
		{
			name:     "preview penalty as of today",
			method:   http.MethodPost,
			path:     "/v1/maintenance/penalty",
			body:     []byte(`{"due_date":"2024-01-10"}`),
			token:    adminToken,
			wantCode: http.StatusOK,
			wantData: []byte(`{"penalty":100}`),
		},
		{
			name:     "preview penalty without due date",
			method:   http.MethodPost,
			path:     "/v1/maintenance/penalty",
			body:     []byte(`{"as_of":"2024-01-24"}`),
			token:    adminToken,
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"due_date":"this field is required"}`),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checkCodeAndData(t, tt, f.serve(tt))
		})
	}

	t.Run("mark paid", func(t *testing.T) {
		rec := f.serve(httpTest{
			method: http.MethodPut,
			path:   "/v1/maintenance/records/" + greenRec.ID,
			body:   []byte(`{"penalty":0,"status":"Paid"}`),
			token:  adminToken,
		})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var updated maintenance.Record
		unmarchallObj(t, rec, &updated)
		assert.Equal(t, maintenance.StatusPaid, updated.Status)
		assert.True(t, decimal.NewFromInt(1000).Equal(updated.Amount))
		require.NotNil(t, updated.PaymentDate)
		assert.True(t, jan17.Equal(*updated.PaymentDate))

		// the owner's view follows the correction
		rec = f.serve(httpTest{method: http.MethodGet, path: "/v1/maintenance/current", token: getToken(t, "owner@test.in")})
		var st maintenance.Statement
		unmarchallObj(t, rec, &st)
		assert.Equal(t, maintenance.StatusPaid, st.Maintenance.Status)
		assert.True(t, decimal.Zero.Equal(st.Maintenance.Penalty))
	})

	t.Run("superadmin corrects any society", func(t *testing.T) {
		stored := f.recordOf(t, "blue@test.in")
		assert.True(t, blueRec.Penalty.Equal(stored.Penalty)) // untouched by the out of scope attempt

		rec := f.serve(httpTest{
			method: http.MethodPut,
			path:   "/v1/maintenance/records/" + blueRec.ID,
			body:   []byte(`{"penalty":25}`),
			token:  superToken,
		})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		stored = f.recordOf(t, "blue@test.in")
		assert.True(t, decimal.NewFromInt(25).Equal(stored.Penalty))
	})
}
