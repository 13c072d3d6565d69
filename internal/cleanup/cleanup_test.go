package cleanup

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"iq-sync/internal/iq"
	"iq-sync/internal/organization"
)

var alpha = organization.Organization{ID: "42", DisplayName: "Alpha"}

type mockScanServer struct {
	mock.Mock
}

func (m *mockScanServer) ListApplications(ctx context.Context, orgID string) ([]iq.Application, error) {
	args := m.Called(ctx, orgID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]iq.Application), args.Error(1)
}

func (m *mockScanServer) DeleteApplication(ctx context.Context, appID string) error {
	args := m.Called(ctx, appID)
	return args.Error(0)
}

func TestCleanDeletesAllApplications(t *testing.T) {
	ss := new(mockScanServer)
	c := NewCleaner(ss, false)

	ss.On("ListApplications", mock.Anything, "42").Return([]iq.Application{
		{ID: "a1", Name: "billing"},
		{ID: "a2", Name: "frontend"},
		{ID: "a3", Name: "legacy"},
	}, nil)
	ss.On("DeleteApplication", mock.Anything, "a1").Return(nil)
	ss.On("DeleteApplication", mock.Anything, "a2").Return(errors.New("boom"))
	ss.On("DeleteApplication", mock.Anything, "a3").Return(nil)

	result := c.Clean(context.Background(), alpha)
	assert.Equal(t, Result{Deleted: 2, Errors: 1}, result)
	ss.AssertExpectations(t)
}

func TestCleanEmptyOrganization(t *testing.T) {
	ss := new(mockScanServer)
	c := NewCleaner(ss, false)

	ss.On("ListApplications", mock.Anything, "42").Return([]iq.Application{}, nil)

	result := c.Clean(context.Background(), alpha)
	assert.Equal(t, Result{}, result)

	ss.AssertNotCalled(t, "DeleteApplication", mock.Anything, mock.Anything)
}

func TestCleanListFailure(t *testing.T) {
	ss := new(mockScanServer)
	c := NewCleaner(ss, false)

	ss.On("ListApplications", mock.Anything, "42").Return(nil, errors.New("unreachable"))

	result := c.Clean(context.Background(), alpha)
	assert.Equal(t, Result{Deleted: 0, Errors: 1}, result)

	ss.AssertNotCalled(t, "DeleteApplication", mock.Anything, mock.Anything)
}

func TestCleanDryRun(t *testing.T) {
	ss := new(mockScanServer)
	c := NewCleaner(ss, true)

	ss.On("ListApplications", mock.Anything, "42").Return([]iq.Application{
		{ID: "a1", Name: "billing"},
	}, nil)

	result := c.Clean(context.Background(), alpha)
	assert.Equal(t, Result{}, result)

	ss.AssertNotCalled(t, "DeleteApplication", mock.Anything, mock.Anything)
}

func TestRunAggregatesAcrossOrganizations(t *testing.T) {
	ss := new(mockScanServer)
	c := NewCleaner(ss, false)

	beta := organization.Organization{ID: "43", DisplayName: "Beta"}

	ss.On("ListApplications", mock.Anything, "42").Return([]iq.Application{
		{ID: "a1", Name: "billing"},
	}, nil)
	ss.On("ListApplications", mock.Anything, "43").Return([]iq.Application{
		{ID: "b1", Name: "frontend"},
		{ID: "b2", Name: "legacy"},
	}, nil)
	ss.On("DeleteApplication", mock.Anything, "a1").Return(nil)
	ss.On("DeleteApplication", mock.Anything, "b1").Return(nil)
	ss.On("DeleteApplication", mock.Anything, "b2").Return(errors.New("boom"))

	total := c.Run(context.Background(), []organization.Organization{alpha, beta})
	assert.Equal(t, Result{Deleted: 2, Errors: 1}, total)
}

func TestResultAdd(t *testing.T) {
	total := Result{Deleted: 1, Errors: 2}
	total.Add(Result{Deleted: 3, Errors: 4})
	assert.Equal(t, Result{Deleted: 4, Errors: 6}, total)
}
