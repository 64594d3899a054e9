package main

import (
	"errors"
	"io"
	"testing"

	"github.com/golang-migrate/migrate/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/clinic-scheduler/pkg/logging"
)

type fakeMigrator struct {
	upErr    error
	steps    []int
	forced   int
	version  uint
	verErr   error
	upCalled bool
}

func (f *fakeMigrator) Up() error {
	f.upCalled = true
	return f.upErr
}

func (f *fakeMigrator) Steps(n int) error {
	f.steps = append(f.steps, n)
	return nil
}

func (f *fakeMigrator) Force(version int) error {
	f.forced = version
	return nil
}

func (f *fakeMigrator) Version() (uint, bool, error) { return f.version, false, f.verErr }

func TestRunDefaultsToUp(t *testing.T) {
	logger := logging.NewWithWriter("error", io.Discard)
	m := &fakeMigrator{upErr: migrate.ErrNoChange}

	require.NoError(t, run(m, nil, logger))
	assert.True(t, m.upCalled)
}

func TestRunSurfacesUpFailure(t *testing.T) {
	logger := logging.NewWithWriter("error", io.Discard)
	err := run(&fakeMigrator{upErr: errors.New("dirty database")}, []string{"up"}, logger)
	assert.ErrorContains(t, err, "dirty database")
}

func TestRunForceAndDown(t *testing.T) {
	logger := logging.NewWithWriter("error", io.Discard)
	m := &fakeMigrator{}

	require.NoError(t, run(m, []string{"force", "3"}, logger))
	assert.Equal(t, 3, m.forced)

	require.NoError(t, run(m, []string{"down"}, logger))
	assert.Equal(t, []int{-1}, m.steps)

	assert.Error(t, run(m, []string{"force"}, logger))
	assert.Error(t, run(m, []string{"force", "x"}, logger))
	assert.Error(t, run(m, []string{"sideways"}, logger))
}

func TestRunVersion(t *testing.T) {
	logger := logging.NewWithWriter("error", io.Discard)

	require.NoError(t, run(&fakeMigrator{version: 4}, []string{"version"}, logger))
	require.NoError(t, run(&fakeMigrator{verErr: migrate.ErrNilVersion}, []string{"version"}, logger))
	assert.Error(t, run(&fakeMigrator{verErr: errors.New("boom")}, []string{"version"}, logger))
}
