package main

import (
	"errors"
	"testing"

	"github.com/golang-migrate/migrate/v4"
	"github.com/stretchr/testify/assert"
)

func TestDatabaseURL(t *testing.T) {
	t.Setenv("DB_USER", "hub")
	t.Setenv("DB_PASSWORD", "pw")
	t.Setenv("DB_HOST", "db")
	t.Setenv("DB_PORT", "3307")
	t.Setenv("DB_NAME", "agencyhub")

	assert.Equal(t,
		"mysql://hub:pw@tcp(db:3307)/agencyhub?charset=utf8mb4&parseTime=True&loc=UTC&multiStatements=true",
		databaseURL())
}

func TestReport(t *testing.T) {
	assert.NoError(t, report(statusCmd, migrate.ErrNoChange, "done", "unchanged"))
	assert.NoError(t, report(statusCmd, nil, "done", "unchanged"))

	boom := errors.New("boom")
	assert.ErrorIs(t, report(statusCmd, boom, "done", "unchanged"), boom)
}

func TestGotoRequiresNumericVersion(t *testing.T) {
	err := gotoCmd.RunE(gotoCmd, []string{"abc"})
	assert.ErrorContains(t, err, "invalid version")
}
