package mocks

import (
	"context"

	"github.com/brettbedarf/webmirror"
	"github.com/stretchr/testify/mock"
)

// MockRemoteStore implements webmirror.RemoteStore for testing across packages
type MockRemoteStore struct {
	mock.Mock
}

func (m *MockRemoteStore) ListDirectory(ctx context.Context, path string) ([]string, error) {
	args := m.Called(ctx, path)

	// Handle function return types (for complex tests)
	if fn, ok := args.Get(0).(func(context.Context, string) []string); ok {
		return fn(ctx, path), args.Error(1)
	}

	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockRemoteStore) FetchMetadata(ctx context.Context, dirPath, name string) (*webmirror.ItemMetadata, error) {
	args := m.Called(ctx, dirPath, name)

	if fn, ok := args.Get(0).(func(context.Context, string, string) *webmirror.ItemMetadata); ok {
		return fn(ctx, dirPath, name), args.Error(1)
	}

	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*webmirror.ItemMetadata), args.Error(1)
}

func (m *MockRemoteStore) FetchContent(ctx context.Context, path string) ([]byte, error) {
	args := m.Called(ctx, path)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockRemoteStore) PushItem(ctx context.Context, dirPath, name string, kind webmirror.Kind, data []byte) error {
	args := m.Called(ctx, dirPath, name, kind, data)
	return args.Error(0)
}

var _ webmirror.RemoteStore = (*MockRemoteStore)(nil)

// MockRemoteProvider implements webmirror.RemoteProvider for testing across packages
type MockRemoteProvider struct {
	mock.Mock
}

func (m *MockRemoteProvider) NewRemote(opts webmirror.RemoteOptions) (webmirror.RemoteStore, error) {
	args := m.Called(opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(webmirror.RemoteStore), args.Error(1)
}

var _ webmirror.RemoteProvider = (*MockRemoteProvider)(nil)
