package billing

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v76"
	"gorm.io/gorm"

	"github.com/ManuelReschke/AgencyHub/app/models"
	"github.com/ManuelReschke/AgencyHub/internal/pkg/database/dbtest"
)

const testWebhookSecret = "whsec_test"

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type billingFixture struct {
	db       *gorm.DB
	provider *fakeProvider
	connect  *connectStub
	svc      *Service
	agency   models.Agency
}

func newBillingFixture(t *testing.T) *billingFixture {
	t.Helper()
	db := dbtest.Open(t)
	f := &billingFixture{db: db, provider: newFakeProvider(), connect: newConnectStub(t)}
	f.agency = models.Agency{Name: "Acme", CustomerID: "cus_1"}
	require.NoError(t, db.Create(&f.agency).Error)

	f.svc = NewServiceFromDB(db, f.provider, Config{
		WebhookSecret: testWebhookSecret,
		Connect: ConnectConfig{
			ClientID:    "ca_test",
			SecretKey:   "sk_test_platform",
			RedirectURI: "https://app.example.com/api/stripe/oauth",
			HTTPClient:  f.connect.client(),
		},
	})
	f.svc.now = func() time.Time { return fixedNow }
	return f
}

func (f *billingFixture) subscriptions(t *testing.T) []models.Subscription {
	t.Helper()
	var rows []models.Subscription
	require.NoError(t, f.db.Find(&rows).Error)
	return rows
}

func eventPayload(t *testing.T, id, eventType string, object interface{}) []byte {
	t.Helper()
	raw, err := json.Marshal(object)
	require.NoError(t, err)
	payload, err := json.Marshal(map[string]interface{}{
		"id":       id,
		"object":   "event",
		"type":     eventType,
		"livemode": false,
		"data":     map[string]json.RawMessage{"object": raw},
	})
	require.NoError(t, err)
	return payload
}

func TestReconcileWithoutAgencyIsNoop(t *testing.T) {
	f := newBillingFixture(t)
	outcome, err := f.svc.Reconcile(context.Background(), newSub("sub_x", "cus_unknown", "active", "price_1", 4900), "cus_unknown")
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoMatch, outcome)
	assert.Empty(t, f.subscriptions(t))
}

func TestReconcileWritesSubscription(t *testing.T) {
	f := newBillingFixture(t)
	sub := newSub("sub_1", "cus_1", "active", "price_basic", 4950)
	sub.CurrentPeriodEnd = fixedNow.Add(30 * 24 * time.Hour).Unix()

	outcome, err := f.svc.Reconcile(context.Background(), sub, "cus_1")
	require.NoError(t, err)
	assert.Equal(t, OutcomeReconciled, outcome)

	rows := f.subscriptions(t)
	require.Len(t, rows, 1)
	row := rows[0]
	assert.Equal(t, f.agency.ID, row.AgencyID)
	assert.Equal(t, "sub_1", row.SubscriptionID)
	assert.Equal(t, "price_basic", row.PriceID)
	assert.Equal(t, "price_basic", row.Plan)
	require.NotNil(t, row.Price)
	assert.Equal(t, "$49.5", *row.Price)
	assert.True(t, row.Active)
	assert.True(t, row.CurrentPeriodEndDate.Equal(fixedNow.Add(30*24*time.Hour)))
}

func TestReconcileOverwritesAndDeactivates(t *testing.T) {
	f := newBillingFixture(t)
	ctx := context.Background()

	_, err := f.svc.Reconcile(ctx, newSub("sub_1", "cus_1", "active", "price_basic", 4900), "cus_1")
	require.NoError(t, err)
	first := f.subscriptions(t)[0]

	_, err = f.svc.Reconcile(ctx, newSub("sub_1", "cus_1", "active", "price_basic", 4900), "cus_1")
	require.NoError(t, err)

	again := f.subscriptions(t)
	require.Len(t, again, 1, "an identical delivery must not add a row")
	second := again[0]
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.AgencyID, second.AgencyID)
	assert.Equal(t, first.SubscriptionID, second.SubscriptionID)
	assert.Equal(t, first.CustomerID, second.CustomerID)
	assert.Equal(t, first.PriceID, second.PriceID)
	assert.Equal(t, first.Plan, second.Plan)
	assert.Equal(t, first.Price, second.Price)
	assert.Equal(t, first.Status, second.Status)
	assert.Equal(t, first.Active, second.Active)
	assert.True(t, first.CurrentPeriodEndDate.Equal(second.CurrentPeriodEndDate))
	assert.True(t, first.CreatedAt.Equal(second.CreatedAt))

	canceled := newSub("sub_2", "cus_1", "canceled", "price_pro", 0)
	_, err = f.svc.Reconcile(ctx, canceled, "cus_1")
	require.NoError(t, err)

	rows := f.subscriptions(t)
	require.Len(t, rows, 1)
	assert.Equal(t, first.ID, rows[0].ID)
	assert.Equal(t, "sub_2", rows[0].SubscriptionID)
	assert.Equal(t, "price_pro", rows[0].Plan)
	assert.Nil(t, rows[0].Price)
	assert.False(t, rows[0].Active)
	assert.True(t, rows[0].CurrentPeriodEndDate.Equal(fixedNow), "missing period end falls back to now")
}

func TestCreateOrUpdateSubscriptionMissingParams(t *testing.T) {
	f := newBillingFixture(t)
	_, err := f.svc.CreateOrUpdateSubscription(context.Background(), "cus_1", " ")
	assert.ErrorIs(t, err, ErrMissingParams)
	assert.Empty(t, f.provider.calls)
}

func TestCreateSubscriptionExpandedSecret(t *testing.T) {
	f := newBillingFixture(t)
	sub := newSub("sub_new", "cus_1", "incomplete", "price_basic", 4900)
	sub.LatestInvoice = expandedInvoice("in_1", "pi_1", "pi_1_secret")
	f.provider.createResult = sub

	res, err := f.svc.CreateOrUpdateSubscription(context.Background(), "cus_1", "price_basic")
	require.NoError(t, err)
	assert.Equal(t, "sub_new", res.SubscriptionID)
	assert.Equal(t, "pi_1_secret", res.ClientSecret)

	require.NotNil(t, f.provider.createParams)
	assert.Equal(t, f.agency.ID, f.provider.createParams.Metadata["agencyId"])
	assert.False(t, f.provider.called("RetrievePaymentIntent"))

	rows := f.subscriptions(t)
	require.Len(t, rows, 1)
	assert.Equal(t, "sub_new", rows[0].SubscriptionID)
	assert.Equal(t, "incomplete", rows[0].Status)
}

func TestClientSecretFetchesPaymentIntentByID(t *testing.T) {
	f := newBillingFixture(t)
	sub := newSub("sub_new", "cus_1", "incomplete", "price_basic", 4900)
	sub.LatestInvoice = &stripe.Invoice{ID: "in_1", Object: "invoice", PaymentIntent: &stripe.PaymentIntent{ID: "pi_2"}}
	f.provider.paymentIntents["pi_2"] = &stripe.PaymentIntent{ID: "pi_2", ClientSecret: "pi_2_secret"}
	f.provider.createResult = sub

	res, err := f.svc.CreateOrUpdateSubscription(context.Background(), "cus_1", "price_basic")
	require.NoError(t, err)
	assert.Equal(t, "pi_2_secret", res.ClientSecret)
}

func TestClientSecretFetchesInvoiceByID(t *testing.T) {
	f := newBillingFixture(t)
	sub := newSub("sub_new", "cus_1", "incomplete", "price_basic", 4900)
	sub.LatestInvoice = &stripe.Invoice{ID: "in_3"}
	f.provider.invoices["in_3"] = expandedInvoice("in_3", "pi_3", "pi_3_secret")
	f.provider.createResult = sub

	res, err := f.svc.CreateOrUpdateSubscription(context.Background(), "cus_1", "price_basic")
	require.NoError(t, err)
	assert.Equal(t, "pi_3_secret", res.ClientSecret)
	assert.False(t, f.provider.called("ListPaymentIntents"))
}

func TestClientSecretFromRecentPaymentIntent(t *testing.T) {
	f := newBillingFixture(t)
	sub := newSub("sub_new", "cus_1", "incomplete", "price_basic", 4900)
	sub.LatestInvoice = &stripe.Invoice{ID: "in_4"}
	f.provider.failInvoice = true
	f.provider.listed = []*stripe.PaymentIntent{
		{ID: "pi_old", ClientSecret: "old", Status: "requires_payment_method", Created: fixedNow.Add(-6 * time.Minute).Unix()},
		{ID: "pi_paid", ClientSecret: "paid", Status: "succeeded", Created: fixedNow.Add(-time.Minute).Unix()},
		{ID: "pi_recent", ClientSecret: "recent_secret", Status: "requires_payment_method", Created: fixedNow.Add(-2 * time.Minute).Unix()},
	}
	f.provider.createResult = sub

	res, err := f.svc.CreateOrUpdateSubscription(context.Background(), "cus_1", "price_basic")
	require.NoError(t, err)
	assert.Equal(t, "recent_secret", res.ClientSecret)
	assert.False(t, f.provider.called("CreatePaymentIntent"))
}

func TestClientSecretManualFallback(t *testing.T) {
	f := newBillingFixture(t)
	sub := newSub("sub_new", "cus_1", "incomplete", "price_basic", 4900)
	f.provider.failList = true
	f.provider.prices["price_basic"] = &stripe.Price{ID: "price_basic", Currency: stripe.CurrencyEUR, UnitAmount: 1999}
	f.provider.createResult = sub

	res, err := f.svc.CreateOrUpdateSubscription(context.Background(), "cus_1", "price_basic")
	require.NoError(t, err)
	assert.Equal(t, "pi_manual_secret", res.ClientSecret)

	p := f.provider.piParams
	require.NotNil(t, p)
	assert.Equal(t, int64(1999), p.Amount)
	assert.Equal(t, "eur", p.Currency)
	assert.Equal(t, "cus_1", p.CustomerID)
	assert.Equal(t, "off_session", p.SetupFutureUsage)
	assert.Equal(t, "sub_new", p.Metadata["subscription_id"])
	assert.Equal(t, "manual_fallback", p.Metadata["type"])
}

func TestClientSecretExhausted(t *testing.T) {
	f := newBillingFixture(t)
	sub := newSub("sub_new", "cus_1", "incomplete", "price_basic", 4900)
	sub.LatestInvoice = &stripe.Invoice{ID: "in_5"}
	f.provider.failInvoice = true
	f.provider.failCreate = true
	f.provider.prices["price_basic"] = &stripe.Price{ID: "price_basic", Currency: stripe.CurrencyUSD, UnitAmount: 4900}
	f.provider.createResult = sub

	_, err := f.svc.CreateOrUpdateSubscription(context.Background(), "cus_1", "price_basic")
	assert.ErrorIs(t, err, ErrClientSecretUnavailable)
	assert.Empty(t, f.subscriptions(t))
}

func TestUpdateExistingActiveSubscription(t *testing.T) {
	f := newBillingFixture(t)
	ctx := context.Background()
	_, err := f.svc.Reconcile(ctx, newSub("sub_1", "cus_1", "active", "price_basic", 4900), "cus_1")
	require.NoError(t, err)

	f.provider.subscriptions["sub_1"] = newSub("sub_1", "cus_1", "active", "price_basic", 4900)
	updated := newSub("sub_1", "cus_1", "active", "price_pro", 9900)
	updated.LatestInvoice = expandedInvoice("in_u", "pi_u", "pi_u_secret")
	f.provider.updateResult = updated

	res, err := f.svc.CreateOrUpdateSubscription(ctx, "cus_1", "price_pro")
	require.NoError(t, err)
	assert.Equal(t, "pi_u_secret", res.ClientSecret)
	assert.Equal(t, []string{"sub_1", "si_sub_1", "price_pro"}, f.provider.updateArgs)
	assert.False(t, f.provider.called("CreateSubscription"))

	rows := f.subscriptions(t)
	require.Len(t, rows, 1)
	assert.Equal(t, "price_pro", rows[0].PriceID)
	assert.Equal(t, "$99", *rows[0].Price)
}

func TestHandleEventRouting(t *testing.T) {
	f := newBillingFixture(t)
	ctx := context.Background()

	decode := func(payload []byte) *stripe.Event {
		var ev stripe.Event
		require.NoError(t, json.Unmarshal(payload, &ev))
		return &ev
	}

	outcome, err := f.svc.HandleEvent(ctx, decode(eventPayload(t, "evt_0", "charge.refunded", map[string]string{"id": "ch_1"})))
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, outcome)

	connectSub := newSub("sub_c", "cus_1", "active", "price_basic", 4900)
	connectSub.Metadata = map[string]string{"connectAccountPayments": "true"}
	outcome, err = f.svc.HandleEvent(ctx, decode(eventPayload(t, "evt_1", EventSubscriptionCreated, connectSub)))
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, outcome)
	assert.Empty(t, f.subscriptions(t))

	outcome, err = f.svc.HandleEvent(ctx, decode(eventPayload(t, "evt_2", EventInvoicePaymentSuccess, map[string]interface{}{"id": "in_1", "subscription": nil})))
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, outcome)

	f.provider.subscriptions["sub_i"] = newSub("sub_i", "cus_1", "active", "price_basic", 4900)
	outcome, err = f.svc.HandleEvent(ctx, decode(eventPayload(t, "evt_3", EventInvoicePaymentSuccess, map[string]interface{}{"id": "in_2", "subscription": "sub_i"})))
	require.NoError(t, err)
	assert.Equal(t, OutcomeReconciled, outcome)
	assert.Equal(t, "sub_i", f.subscriptions(t)[0].SubscriptionID)

	f.provider.subscriptions["sub_p"] = newSub("sub_p", "cus_1", "active", "price_pro", 9900)
	pi := map[string]interface{}{"id": "pi_9", "metadata": map[string]string{"subscription_id": "sub_p"}}
	outcome, err = f.svc.HandleEvent(ctx, decode(eventPayload(t, "evt_4", EventPaymentIntentSuccess, pi)))
	require.NoError(t, err)
	assert.Equal(t, OutcomeReconciled, outcome)
	assert.Equal(t, "sub_p", f.subscriptions(t)[0].SubscriptionID)

	outcome, err = f.svc.HandleEvent(ctx, decode(eventPayload(t, "evt_5", EventSubscriptionDeleted, newSub("sub_p", "cus_1", "canceled", "price_pro", 9900))))
	require.NoError(t, err)
	assert.Equal(t, OutcomeReconciled, outcome)
	assert.False(t, f.subscriptions(t)[0].Active)
}

func TestProcessWebhookRejectsBadSignature(t *testing.T) {
	f := newBillingFixture(t)
	payload := eventPayload(t, "evt_1", EventSubscriptionCreated, newSub("sub_1", "cus_1", "active", "price_basic", 4900))

	_, err := f.svc.ProcessWebhook(context.Background(), payload, signed(payload, "whsec_other", time.Now()))
	assert.ErrorIs(t, err, ErrInvalidSignature)

	_, err = f.svc.ProcessWebhook(context.Background(), payload, "")
	assert.ErrorIs(t, err, ErrWebhookConfig)

	var count int64
	require.NoError(t, f.db.Model(&models.BillingWebhookEvent{}).Count(&count).Error)
	assert.Zero(t, count)
	assert.Empty(t, f.subscriptions(t))
}

func TestProcessWebhookIsIdempotent(t *testing.T) {
	f := newBillingFixture(t)
	ctx := context.Background()
	payload := eventPayload(t, "evt_1", EventSubscriptionCreated, newSub("sub_1", "cus_1", "active", "price_basic", 4900))
	sig := signed(payload, testWebhookSecret, time.Now())

	outcome, err := f.svc.ProcessWebhook(ctx, payload, sig)
	require.NoError(t, err)
	assert.Equal(t, OutcomeReconciled, outcome)

	outcome, err = f.svc.ProcessWebhook(ctx, payload, sig)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, outcome)

	var events []models.BillingWebhookEvent
	require.NoError(t, f.db.Find(&events).Error)
	require.Len(t, events, 1)
	assert.Equal(t, string(OutcomeReconciled), events[0].Outcome)
	assert.NotNil(t, events[0].ProcessedAt)
	assert.True(t, events[0].SignatureValid)
	assert.Len(t, f.subscriptions(t), 1)
}

func TestProcessWebhookRetriesFailedDelivery(t *testing.T) {
	f := newBillingFixture(t)
	ctx := context.Background()
	payload := eventPayload(t, "evt_7", EventInvoicePaymentSuccess, map[string]interface{}{"id": "in_7", "subscription": "sub_7"})
	sig := signed(payload, testWebhookSecret, time.Now())

	_, err := f.svc.ProcessWebhook(ctx, payload, sig)
	require.Error(t, err)

	var stored models.BillingWebhookEvent
	require.NoError(t, f.db.First(&stored).Error)
	assert.NotEmpty(t, stored.ProcessingError)

	f.provider.subscriptions["sub_7"] = newSub("sub_7", "cus_1", "active", "price_basic", 4900)
	outcome, err := f.svc.ProcessWebhook(ctx, payload, sig)
	require.NoError(t, err)
	assert.Equal(t, OutcomeReconciled, outcome)

	require.NoError(t, f.db.First(&stored).Error)
	assert.Empty(t, stored.ProcessingError)
}

func TestHandleConnectCallback(t *testing.T) {
	f := newBillingFixture(t)
	ctx := context.Background()
	sub := models.SubAccount{Name: "Client", AgencyID: f.agency.ID}
	require.NoError(t, f.db.Create(&sub).Error)

	agencyState := BuildConnectState(EntityAgency, f.agency.ID)

	assert.Equal(t, RedirectOAuthError, f.svc.HandleConnectCallback(ctx, "code", agencyState, "access_denied"))
	assert.Equal(t, RedirectMissingParams, f.svc.HandleConnectCallback(ctx, "", agencyState, ""))
	assert.Equal(t, RedirectMissingParams, f.svc.HandleConnectCallback(ctx, "code", "", ""))
	assert.Equal(t, RedirectProcessingFailed, f.svc.HandleConnectCallback(ctx, "code", "agency___other___x", ""))
	assert.Zero(t, f.connect.requests(), "no token exchange before the state is valid")

	f.connect.respond(http.StatusBadRequest, `{"error":"invalid_grant","error_description":"Authorization code does not exist"}`)
	assert.Equal(t, RedirectProcessingFailed, f.svc.HandleConnectCallback(ctx, "code", agencyState, ""))

	f.connect.respond(http.StatusOK, `{"access_token":"tok","token_type":"bearer","stripe_user_id":""}`)
	assert.Equal(t, "/agency/"+f.agency.ID+"/launchpad?error=no_account_created", f.svc.HandleConnectCallback(ctx, "code", agencyState, ""))

	f.connect.respond(http.StatusOK, `{"access_token":"tok","token_type":"bearer","stripe_user_id":"acct_1"}`)
	assert.Equal(t, "/agency/"+f.agency.ID+"/launchpad", f.svc.HandleConnectCallback(ctx, "code", agencyState, ""))
	assert.Equal(t, "/subaccount/"+sub.ID+"/launchpad", f.svc.HandleConnectCallback(ctx, "code", BuildConnectState(EntitySubAccount, sub.ID), ""))
	assert.Equal(t, RedirectProcessingFailed, f.svc.HandleConnectCallback(ctx, "code", BuildConnectState(EntitySubAccount, "missing"), ""))

	var agency models.Agency
	require.NoError(t, f.db.First(&agency, "id = ?", f.agency.ID).Error)
	assert.Equal(t, "acct_1", agency.ConnectAccountID)
	var storedSub models.SubAccount
	require.NoError(t, f.db.First(&storedSub, "id = ?", sub.ID).Error)
	assert.Equal(t, "acct_1", storedSub.ConnectAccountID)
}

func TestConnectLinkAndProducts(t *testing.T) {
	f := newBillingFixture(t)
	ctx := context.Background()

	link, err := f.svc.ConnectLink(ctx, EntityAgency, f.agency.ID)
	require.NoError(t, err)
	assert.Contains(t, link, "https://connect.stripe.com/oauth/authorize?")
	assert.Contains(t, link, "client_id=ca_test")
	assert.Contains(t, link, "state=agency___launchpad___"+f.agency.ID)

	_, err = f.svc.ConnectLink(ctx, EntityAgency, "missing")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	_, err = f.svc.ConnectProducts(ctx, EntityAgency, f.agency.ID)
	assert.ErrorIs(t, err, ErrNoConnectAccount)

	require.NoError(t, f.db.Model(&models.Agency{}).Where("id = ?", f.agency.ID).Update("connect_account_id", "acct_9").Error)
	f.provider.products = []*stripe.Product{{ID: "prod_1", Name: "Website"}}
	products, err := f.svc.ConnectProducts(ctx, EntityAgency, f.agency.ID)
	require.NoError(t, err)
	assert.Len(t, products, 1)
	assert.Equal(t, "acct_9", f.provider.productsAcct)
}

func TestCreateAgencyCustomer(t *testing.T) {
	f := newBillingFixture(t)
	agency := &models.Agency{
		Name:         "Northwind",
		CompanyEmail: "billing@northwind.test",
		CompanyPhone: "+49 30 1234",
		Address:      "Main St 1",
		City:         "Berlin",
		ZipCode:      "10115",
		State:        "BE",
		Country:      "DE",
	}

	id, err := f.svc.CreateAgencyCustomer(context.Background(), agency)
	require.NoError(t, err)
	assert.Equal(t, "cus_new", id)

	p := f.provider.customerParams
	require.NotNil(t, p)
	assert.Equal(t, "billing@northwind.test", p.Email)
	assert.Equal(t, "Northwind", p.Name)
	assert.Equal(t, "Main St 1", p.Line1)
	assert.Equal(t, "10115", p.PostalCode)
	assert.Equal(t, "DE", p.Country)

	f.provider.failCustomer = true
	_, err = f.svc.CreateAgencyCustomer(context.Background(), agency)
	assert.ErrorIs(t, err, errFake)
}
