package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/ManuelReschke/AgencyHub/app/models"
	"github.com/ManuelReschke/AgencyHub/internal/pkg/database/dbtest"
)

func TestAgencyCreateAndUpdateDetails(t *testing.T) {
	db := dbtest.Open(t)
	repo := NewAgencyRepository(db)
	ctx := context.Background()

	agency := &models.Agency{Name: "Acme", CompanyEmail: "hello@acme.test", City: "Berlin", CustomerID: "cus_1"}
	require.NoError(t, repo.Create(ctx, agency))
	require.NotEmpty(t, agency.ID)

	// agencies without a billing customer must not collide on the unique index
	require.NoError(t, repo.Create(ctx, &models.Agency{Name: "Beta"}))
	require.NoError(t, repo.Create(ctx, &models.Agency{Name: "Gamma"}))

	update := &models.Agency{ID: agency.ID, Name: "Acme GmbH", City: "", WhiteLabel: true, CustomerID: "cus_other", Goal: 8}
	require.NoError(t, repo.UpdateDetails(ctx, update))

	stored, err := repo.GetByID(ctx, agency.ID)
	require.NoError(t, err)
	assert.Equal(t, "Acme GmbH", stored.Name)
	assert.Empty(t, stored.City)
	assert.True(t, stored.WhiteLabel)
	assert.Equal(t, 8, stored.Goal)
	assert.Equal(t, "cus_1", stored.CustomerID, "billing ids are not editable")

	assert.ErrorIs(t, repo.UpdateDetails(ctx, &models.Agency{ID: "missing", Name: "x"}), gorm.ErrRecordNotFound)
}

func TestSubAccountCreateListUpdate(t *testing.T) {
	db := dbtest.Open(t)
	repo := NewAgencyRepository(db)
	ctx := context.Background()

	agency := &models.Agency{Name: "Acme"}
	require.NoError(t, repo.Create(ctx, agency))

	sub := &models.SubAccount{AgencyID: agency.ID, Name: "Client", CompanyPhone: "123"}
	require.NoError(t, repo.CreateSubAccount(ctx, sub))
	require.NoError(t, repo.CreateSubAccount(ctx, &models.SubAccount{AgencyID: agency.ID, Name: "Another"}))

	subs, err := repo.ListSubAccounts(ctx, agency.ID)
	require.NoError(t, err)
	require.Len(t, subs, 2)
	assert.Equal(t, "Another", subs[0].Name)

	pipelines, err := NewPipelineRepository(db).ListBySubAccount(ctx, sub.ID)
	require.NoError(t, err)
	require.Len(t, pipelines, 1)
	assert.Equal(t, models.DefaultPipelineName, pipelines[0].Name)

	require.NoError(t, repo.UpdateSubAccountDetails(ctx, &models.SubAccount{ID: sub.ID, AgencyID: "moved", Name: "Client Ltd"}))
	stored, err := repo.GetSubAccountByID(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, "Client Ltd", stored.Name)
	assert.Empty(t, stored.CompanyPhone)
	assert.Equal(t, agency.ID, stored.AgencyID)

	assert.ErrorIs(t, repo.CreateSubAccount(ctx, &models.SubAccount{AgencyID: "missing", Name: "x"}), gorm.ErrRecordNotFound)
	assert.ErrorIs(t, repo.UpdateSubAccountDetails(ctx, &models.SubAccount{ID: "missing", Name: "x"}), gorm.ErrRecordNotFound)
}

func TestContactUpsert(t *testing.T) {
	db := dbtest.Open(t)
	agencies := NewAgencyRepository(db)
	repo := NewContactRepository(db)
	ctx := context.Background()

	agency := &models.Agency{Name: "Acme"}
	require.NoError(t, agencies.Create(ctx, agency))
	sub := &models.SubAccount{AgencyID: agency.ID, Name: "Client"}
	require.NoError(t, agencies.CreateSubAccount(ctx, sub))
	other := &models.SubAccount{AgencyID: agency.ID, Name: "Other"}
	require.NoError(t, agencies.CreateSubAccount(ctx, other))

	contact := &models.Contact{SubAccountID: sub.ID, Name: "Jane", Email: "jane@example.com"}
	require.NoError(t, repo.Upsert(ctx, contact))
	require.NotEmpty(t, contact.ID)

	require.NoError(t, repo.Upsert(ctx, &models.Contact{ID: contact.ID, SubAccountID: sub.ID, Name: "Jane Doe", Email: "jd@example.com"}))
	contacts, err := repo.ListBySubAccount(ctx, sub.ID)
	require.NoError(t, err)
	require.Len(t, contacts, 1)
	assert.Equal(t, "Jane Doe", contacts[0].Name)
	assert.Equal(t, "jd@example.com", contacts[0].Email)

	err = repo.Upsert(ctx, &models.Contact{ID: contact.ID, SubAccountID: other.ID, Name: "Stolen"})
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
	assert.ErrorIs(t, repo.Upsert(ctx, &models.Contact{SubAccountID: "missing", Name: "x"}), gorm.ErrRecordNotFound)
}
