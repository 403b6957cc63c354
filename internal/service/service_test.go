package service

import (
	"bytes"
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/mmeshcher/exchange-counter/internal/credential"
	"github.com/mmeshcher/exchange-counter/internal/ledger"
	"github.com/mmeshcher/exchange-counter/internal/model"
	"github.com/mmeshcher/exchange-counter/internal/report"
	"github.com/mmeshcher/exchange-counter/internal/repository"
)

type stubRepo struct {
	session  *model.Session
	shift    *model.Shift
	settings *model.StoreSettings
	users    []model.User
	history  []model.ClosedShift
	sales    []model.SalesRecord

	usersErr error
	loadErr  error
	saveErr  error

	saves    int
	replaces int
	last     repository.State
}

func (s *stubRepo) Close() error { return nil }

func (s *stubRepo) LoadSession(ctx context.Context) (*model.Session, error) {
	if s.session == nil {
		return nil, repository.ErrNotFound
	}
	return s.session, nil
}

func (s *stubRepo) LoadShift(ctx context.Context) (*model.Shift, error) {
	if s.shift == nil {
		return nil, repository.ErrNotFound
	}
	return s.shift, nil
}

func (s *stubRepo) LoadSettings(ctx context.Context) (model.StoreSettings, error) {
	if s.loadErr != nil {
		return model.StoreSettings{}, s.loadErr
	}
	if s.settings == nil {
		return model.StoreSettings{}, repository.ErrNotFound
	}
	return *s.settings, nil
}

func (s *stubRepo) LoadUsers(ctx context.Context) ([]model.User, error) {
	if s.usersErr != nil {
		return nil, s.usersErr
	}
	if s.users == nil {
		return nil, repository.ErrNotFound
	}
	return s.users, nil
}

func (s *stubRepo) LoadShiftHistory(ctx context.Context) ([]model.ClosedShift, error) {
	if s.history == nil {
		return nil, repository.ErrNotFound
	}
	return s.history, nil
}

func (s *stubRepo) LoadSalesHistory(ctx context.Context) ([]model.SalesRecord, error) {
	if s.sales == nil {
		return nil, repository.ErrNotFound
	}
	return s.sales, nil
}

func (s *stubRepo) SaveState(ctx context.Context, state repository.State) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saves++
	s.last = state
	return nil
}

func (s *stubRepo) Replace(ctx context.Context, state repository.State) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	s.replaces++
	s.last = state
	return nil
}

var fixedNow = time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)

func testHasher() *credential.Hasher {
	return credential.NewHasher(credential.AlgorithmBcrypt, credential.WithBcryptCost(bcrypt.MinCost))
}

func newLoadedService(t *testing.T, repo *stubRepo) *Service {
	t.Helper()
	svc := NewService(repo, testHasher(), WithClock(func() time.Time { return fixedNow }))
	require.NoError(t, svc.Load(context.Background()))
	return svc
}

func login(t *testing.T, svc *Service, pin string) LoginResult {
	t.Helper()
	res, err := svc.Login(context.Background(), pin)
	require.NoError(t, err)
	return res
}

func TestLoadSeedsDefaults(t *testing.T) {
	repo := &stubRepo{}
	svc := newLoadedService(t, repo)

	require.Equal(t, 1, repo.saves, "seeded users must be persisted")
	require.Len(t, repo.last.Users, 2)
	for _, u := range repo.last.Users {
		assert.Equal(t, credential.KindHashed, u.Credential.Kind, "default pins are hashed at seed time")
	}
	assert.Equal(t, "CASA DE CAMBIO", svc.Settings().Name)

	res := login(t, svc, "1234")
	assert.Equal(t, "Admin General", res.Session.UserName)
	assert.True(t, res.ShiftRequired)
}

func TestLoadKeepsZeroUsers(t *testing.T) {
	repo := &stubRepo{users: []model.User{}}
	svc := newLoadedService(t, repo)

	assert.Zero(t, repo.saves)
	_, err := svc.Login(context.Background(), "1234")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLoadCorruptUsersFallsBackToDefaults(t *testing.T) {
	repo := &stubRepo{usersErr: repository.ErrCorruptDocument}
	svc := newLoadedService(t, repo)

	login(t, svc, "0000")
}

func TestLoadPropagatesStoreFailure(t *testing.T) {
	repo := &stubRepo{loadErr: repository.ErrPersistence}
	svc := NewService(repo, testHasher())

	err := svc.Load(context.Background())
	assert.ErrorIs(t, err, repository.ErrPersistence)
}

func TestLoginDoesNotRevealUsers(t *testing.T) {
	repo := &stubRepo{users: []model.User{
		{ID: "1", Name: "Admin General", Credential: credential.Plain("1234"), Role: model.RoleAdmin},
		{ID: "2", Name: "Broken", Credential: credential.Hashed("$2a$10$short"), Role: model.RoleCashier},
	}}
	svc := newLoadedService(t, repo)

	for _, pin := range []string{"9999", "12", "abcd", ""} {
		_, err := svc.Login(context.Background(), pin)
		if !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("Login(%q) error = %v, want ErrInvalidCredentials", pin, err)
		}
	}
	_, ok := svc.CurrentSession()
	assert.False(t, ok)
}

func TestLoginUpgradesPlainPin(t *testing.T) {
	repo := &stubRepo{users: []model.User{
		{ID: "1", Name: "Admin General", Credential: credential.Plain("1234"), Role: model.RoleAdmin},
	}}
	svc := newLoadedService(t, repo)

	login(t, svc, "1234")
	require.Len(t, repo.last.Users, 1)
	assert.Equal(t, credential.KindHashed, repo.last.Users[0].Credential.Kind)
	require.NotNil(t, repo.last.Session)

	require.NoError(t, svc.Logout(context.Background()))
	login(t, svc, "1234")
}

func TestShiftLifecycle(t *testing.T) {
	ctx := context.Background()
	repo := &stubRepo{}
	svc := newLoadedService(t, repo)

	res := login(t, svc, "0000")
	require.True(t, res.ShiftRequired)

	shift, err := svc.OpenShift(ctx, 1000, 0)
	require.NoError(t, err)
	assert.Equal(t, res.Session.UserID, shift.UserID)

	record, err := svc.RecordSale(ctx, model.CurrencyUSD, model.Breakdown{20: 5}, 0)
	require.NoError(t, err)
	assert.Equal(t, 58.50, record.Rate, "zero rate falls back to settings")
	assert.InDelta(t, 5850, record.LocalAmountPaid, 1e-9)
	assert.Equal(t, "Agente Divisas", record.Cashier)

	require.NotNil(t, repo.last.Shift)
	assert.Equal(t, 1, repo.last.Shift.Transactions)
	require.Len(t, repo.last.SalesHistory, 1)

	// Выплаты превысили размен: пересчёт местной валюты отрицательный.
	closed, err := svc.CloseShift(ctx, 1000-5850, map[model.Currency]float64{model.CurrencyUSD: 100})
	require.NoError(t, err)
	assert.InDelta(t, -4850, closed.ExpectedAmount, 1e-9)
	assert.InDelta(t, 0, closed.Difference, 1e-9)
	assert.InDelta(t, 0, closed.PerCurrencyDifference[model.CurrencyUSD], 1e-9)
	assert.Equal(t, model.StatusBalanced, ledger.Classify(closed.Difference))

	_, ok := svc.CurrentSession()
	assert.False(t, ok, "closing the shift ends the session")
	assert.Nil(t, repo.last.Session)
	assert.Nil(t, repo.last.Shift)
	require.Len(t, repo.last.ShiftHistory, 1)

	receipt, err := svc.LastShiftReceipt()
	require.NoError(t, err)
	assert.Contains(t, receipt.Markdown, closed.ID)

	_, err = svc.LastShiftReceipt()
	require.ErrorIs(t, err, ErrNotFound, "receipt is delivered once without a session")

	_, err = svc.ShiftReceipt(closed.ID)
	require.ErrorIs(t, err, ErrNoSession)
	login(t, svc, "1234")
	receipt, err = svc.ShiftReceipt(closed.ID)
	require.NoError(t, err)
	assert.Contains(t, receipt.Markdown, closed.ID)
}

func TestLastShiftReceiptWithoutClose(t *testing.T) {
	svc := newLoadedService(t, &stubRepo{})

	_, err := svc.LastShiftReceipt()
	require.ErrorIs(t, err, ErrNotFound)
}

func TestOpenShiftValidationAndConflict(t *testing.T) {
	ctx := context.Background()
	svc := newLoadedService(t, &stubRepo{})

	_, err := svc.OpenShift(ctx, 100, 0)
	require.ErrorIs(t, err, ErrNoSession)

	login(t, svc, "0000")
	_, err = svc.OpenShift(ctx, -1, 0)
	require.ErrorIs(t, err, ledger.ErrValidation)

	_, err = svc.OpenShift(ctx, 500, 0)
	require.NoError(t, err)
	_, err = svc.RecordSale(ctx, model.CurrencyEUR, model.Breakdown{50: 1}, 64)
	require.NoError(t, err)

	_, err = svc.OpenShift(ctx, 500, 0)
	require.ErrorIs(t, err, ledger.ErrConflict)

	res := login(t, svc, "1234")
	assert.True(t, res.ShiftRequired, "shift belongs to another cashier")
	require.NotNil(t, res.Shift)
	assert.Equal(t, 1, res.Shift.Transactions, "shift with operations survives login")

	_, err = svc.RecordSale(ctx, model.CurrencyUSD, model.Breakdown{1: 1}, 0)
	require.ErrorIs(t, err, ledger.ErrConflict)
}

func TestLoginDiscardsEmptyShiftOfAnotherUser(t *testing.T) {
	ctx := context.Background()
	svc := newLoadedService(t, &stubRepo{})

	login(t, svc, "1234")
	_, err := svc.OpenShift(ctx, 100, 0)
	require.NoError(t, err)

	res := login(t, svc, "0000")
	assert.True(t, res.ShiftRequired)
	assert.Nil(t, res.Shift)
	_, open := svc.CurrentShift()
	assert.False(t, open)
}

func TestRecordSaleWithoutShift(t *testing.T) {
	svc := newLoadedService(t, &stubRepo{})
	login(t, svc, "0000")

	_, err := svc.RecordSale(context.Background(), model.CurrencyUSD, model.Breakdown{20: 1}, 0)
	require.ErrorIs(t, err, ledger.ErrNoOpenShift)
}

func TestCloseShiftRejectsInvalidCounts(t *testing.T) {
	ctx := context.Background()
	svc := newLoadedService(t, &stubRepo{})
	login(t, svc, "0000")
	_, err := svc.OpenShift(ctx, 100, 0)
	require.NoError(t, err)

	_, err = svc.CloseShift(ctx, math.NaN(), nil)
	require.ErrorIs(t, err, ledger.ErrValidation)
	_, err = svc.CloseShift(ctx, math.Inf(-1), nil)
	require.ErrorIs(t, err, ledger.ErrValidation)
	_, err = svc.CloseShift(ctx, 100, map[model.Currency]float64{model.CurrencyUSD: -1})
	require.ErrorIs(t, err, ledger.ErrValidation)
	_, err = svc.CloseShift(ctx, 100, map[model.Currency]float64{model.CurrencyDOP: 1})
	require.ErrorIs(t, err, ledger.ErrValidation)

	_, open := svc.CurrentShift()
	assert.True(t, open)
}

func TestPersistenceFailureKeepsMemoryState(t *testing.T) {
	ctx := context.Background()
	repo := &stubRepo{}
	svc := newLoadedService(t, repo)
	login(t, svc, "0000")
	_, err := svc.OpenShift(ctx, 1000, 0)
	require.NoError(t, err)

	repo.saveErr = errors.New("disk full")
	record, err := svc.RecordSale(ctx, model.CurrencyUSD, model.Breakdown{100: 1}, 58.5)
	require.ErrorIs(t, err, repository.ErrPersistence)
	assert.NotEmpty(t, record.ID)

	shift, ok := svc.CurrentShift()
	require.True(t, ok)
	assert.Equal(t, 1, shift.Transactions)
	assert.Equal(t, 100.0, shift.OnHand[model.CurrencyUSD])

	repo.saveErr = nil
	_, err = svc.RecordSale(ctx, model.CurrencyUSD, model.Breakdown{1: 1}, 58.5)
	require.NoError(t, err)
	assert.Len(t, repo.last.SalesHistory, 2, "the next successful save writes the full state")
}

func TestUserManagement(t *testing.T) {
	ctx := context.Background()
	repo := &stubRepo{}
	svc := newLoadedService(t, repo)

	login(t, svc, "0000")
	_, err := svc.ListUsers()
	require.ErrorIs(t, err, ErrForbidden)

	admin := login(t, svc, "1234")

	_, err = svc.CreateUser(ctx, "Caja 1", "12", model.RoleCashier)
	require.ErrorIs(t, err, ledger.ErrValidation)
	_, err = svc.CreateUser(ctx, "Caja 1", "0000", model.RoleCashier)
	require.ErrorIs(t, err, ledger.ErrConflict, "pin already used by another user")
	_, err = svc.CreateUser(ctx, " ", "5555", model.RoleCashier)
	require.ErrorIs(t, err, ledger.ErrValidation)
	_, err = svc.CreateUser(ctx, "Caja 1", "5555", "boss")
	require.ErrorIs(t, err, ledger.ErrValidation)

	created, err := svc.CreateUser(ctx, "Caja 1", "5555", model.RoleCashier)
	require.NoError(t, err)
	assert.Equal(t, "Caja 1", created.Name)
	assert.Len(t, repo.last.Users, 3)

	newPin := "6666"
	_, err = svc.UpdateUser(ctx, created.ID, "Caja Uno", &newPin, model.RoleCashier)
	require.NoError(t, err)
	_, err = svc.UpdateUser(ctx, admin.Session.UserID, "Admin General", nil, model.RoleCashier)
	require.ErrorIs(t, err, ledger.ErrValidation, "last admin cannot be demoted")
	_, err = svc.UpdateUser(ctx, "missing", "X", nil, model.RoleCashier)
	require.ErrorIs(t, err, ErrNotFound)

	require.ErrorIs(t, svc.DeleteUser(ctx, admin.Session.UserID), ledger.ErrValidation)
	require.NoError(t, svc.DeleteUser(ctx, created.ID))

	users, err := svc.ListUsers()
	require.NoError(t, err)
	assert.Len(t, users, 2)

	require.NoError(t, svc.Logout(ctx))
	_, err = svc.Login(ctx, "6666")
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestDeleteLastUser(t *testing.T) {
	repo := &stubRepo{users: []model.User{
		{ID: "1", Name: "Admin General", Credential: credential.Plain("1234"), Role: model.RoleAdmin},
	}}
	svc := newLoadedService(t, repo)
	login(t, svc, "1234")

	require.ErrorIs(t, svc.DeleteUser(context.Background(), "1"), ledger.ErrValidation)
}

func TestUpdateSettings(t *testing.T) {
	ctx := context.Background()
	svc := newLoadedService(t, &stubRepo{})
	login(t, svc, "1234")

	in := model.DefaultSettings()
	in.Name = "CAMBIOS DEL ESTE"
	in.Rates = map[model.Currency]float64{model.CurrencyUSD: 59.25}

	out, err := svc.UpdateSettings(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, 59.25, out.Rates[model.CurrencyUSD])
	assert.Equal(t, 64.00, out.Rates[model.CurrencyEUR], "missing rates keep their value")

	in.Rates = map[model.Currency]float64{model.CurrencyEUR: 0}
	_, err = svc.UpdateSettings(ctx, in)
	require.ErrorIs(t, err, ledger.ErrValidation)

	in.Rates = map[model.Currency]float64{"GBP": 70}
	_, err = svc.UpdateSettings(ctx, in)
	require.ErrorIs(t, err, ledger.ErrValidation)
}

func TestBackupAndRestore(t *testing.T) {
	ctx := context.Background()
	repo := &stubRepo{}
	svc := newLoadedService(t, repo)
	login(t, svc, "1234")

	_, err := svc.OpenShift(ctx, 1000, 0)
	require.NoError(t, err)
	_, err = svc.RecordSale(ctx, model.CurrencyUSD, model.Breakdown{10: 1}, 58.5)
	require.NoError(t, err)

	b, err := svc.Backup()
	require.NoError(t, err)
	assert.Equal(t, model.BackupVersion, b.Version)
	assert.Equal(t, fixedNow, b.Timestamp)
	assert.Len(t, b.SalesHistory, 1)

	_, err = svc.CloseShift(ctx, 1000-585, map[model.Currency]float64{model.CurrencyUSD: 10})
	require.NoError(t, err)
	login(t, svc, "1234")

	err = svc.Restore(ctx, model.Backup{Users: b.Users})
	require.ErrorIs(t, err, ledger.ErrValidation, "settings are required")

	restoredSettings := model.DefaultSettings()
	restoredSettings.Name = "RESTAURADA"
	err = svc.Restore(ctx, model.Backup{
		Settings:     &restoredSettings,
		Users:        b.Users,
		SalesHistory: []model.SalesRecord{},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, repo.replaces)
	assert.Equal(t, "RESTAURADA", svc.Settings().Name)

	sales, err := svc.Sales(report.Period{})
	require.NoError(t, err)
	assert.Empty(t, sales, "sales history is replaced, not merged")

	_, open := svc.CurrentShift()
	assert.False(t, open)
}

func TestRestoreKeepsEmptyOpenShift(t *testing.T) {
	ctx := context.Background()
	svc := newLoadedService(t, &stubRepo{})
	login(t, svc, "1234")

	b, err := svc.Backup()
	require.NoError(t, err)
	opened, err := svc.OpenShift(ctx, 1000, 0)
	require.NoError(t, err)

	require.NoError(t, svc.Restore(ctx, b))
	shift, open := svc.CurrentShift()
	require.True(t, open, "empty open shift is kept by restore")
	assert.Equal(t, opened.ID, shift.ID)
	assert.Equal(t, 0, shift.Transactions)
}

func TestRecordSaleForbiddenForWarehouse(t *testing.T) {
	ctx := context.Background()
	svc := newLoadedService(t, &stubRepo{})
	login(t, svc, "1234")

	_, err := svc.CreateUser(ctx, "Almacén", "5555", model.RoleWarehouse)
	require.NoError(t, err)
	login(t, svc, "5555")

	_, err = svc.OpenShift(ctx, 1000, 0)
	require.NoError(t, err)
	_, err = svc.RecordSale(ctx, model.CurrencyUSD, model.Breakdown{100: 1}, 58.5)
	require.ErrorIs(t, err, ErrForbidden)

	shift, open := svc.CurrentShift()
	require.True(t, open)
	assert.Equal(t, 0, shift.Transactions)
}

func TestRestoreRejectedWhileShiftHasSales(t *testing.T) {
	ctx := context.Background()
	repo := &stubRepo{}
	svc := newLoadedService(t, repo)
	login(t, svc, "1234")

	b, err := svc.Backup()
	require.NoError(t, err)

	_, err = svc.OpenShift(ctx, 1000, 0)
	require.NoError(t, err)
	record, err := svc.RecordSale(ctx, model.CurrencyUSD, model.Breakdown{100: 1}, 58.5)
	require.NoError(t, err)

	b.SalesHistory = []model.SalesRecord{}
	err = svc.Restore(ctx, b)
	require.ErrorIs(t, err, ledger.ErrConflict)
	assert.Equal(t, 0, repo.replaces)

	shift, open := svc.CurrentShift()
	require.True(t, open)
	sales, err := svc.Sales(report.Period{})
	require.NoError(t, err)
	require.Len(t, sales, 1)
	assert.Equal(t, record.ID, sales[0].ID)
	assert.Equal(t, shift.ID, sales[0].ShiftID)
	assert.Equal(t, shift.Transactions, len(sales))
	assert.InDelta(t, shift.CurrencyPayouts, sales[0].LocalAmountPaid, 1e-9)
}

func TestReportsRequireAdmin(t *testing.T) {
	ctx := context.Background()
	svc := newLoadedService(t, &stubRepo{})

	_, err := svc.Sales(report.Period{})
	require.ErrorIs(t, err, ErrNoSession)

	login(t, svc, "0000")
	_, err = svc.OpenShift(ctx, 10000, 0)
	require.NoError(t, err)
	record, err := svc.RecordSale(ctx, model.CurrencyUSD, model.Breakdown{50: 2}, 58.5)
	require.NoError(t, err)

	receipt, err := svc.SaleReceipt(record.ID)
	require.NoError(t, err)
	assert.Contains(t, receipt.Markdown, record.ID)

	_, err = svc.Summary(report.Period{})
	require.ErrorIs(t, err, ErrForbidden)

	login(t, svc, "1234")
	summary, err := svc.Summary(report.Period{})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Transactions)
	assert.Equal(t, 100.0, summary.ForeignTotals[model.CurrencyUSD])

	var buf bytes.Buffer
	require.NoError(t, svc.ExportCSV(&buf, report.Period{}))
	assert.True(t, strings.HasPrefix(buf.String(), "ID,Fecha,Moneda"))

	_, err = svc.SaleReceipt("missing")
	require.ErrorIs(t, err, ErrNotFound)
	_, err = svc.ShiftReceipt("missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestAuthorize(t *testing.T) {
	svc := newLoadedService(t, &stubRepo{})
	res := login(t, svc, "0000")

	_, err := svc.Authorize(res.Session.UserID, false)
	require.NoError(t, err)
	_, err = svc.Authorize(res.Session.UserID, true)
	require.ErrorIs(t, err, ErrForbidden)
	_, err = svc.Authorize("someone-else", false)
	require.ErrorIs(t, err, ErrNoSession)
}
