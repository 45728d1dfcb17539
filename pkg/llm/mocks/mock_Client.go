// Package mocks provides test doubles for the llm client.
package mocks

import (
	"context"

	mock "github.com/stretchr/testify/mock"
)

// MockClient is a mock type for the Client interface.
type MockClient struct {
	mock.Mock
}

// Generate provides a mock function with given fields: ctx, prompt, contextText
func (_m *MockClient) Generate(ctx context.Context, prompt string, contextText string) (string, error) {
	ret := _m.Called(ctx, prompt, contextText)

	if len(ret) == 0 {
		panic("no return value specified for Generate")
	}

	var r0 string
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, string, string) (string, error)); ok {
		return rf(ctx, prompt, contextText)
	}
	if rf, ok := ret.Get(0).(func(context.Context, string, string) string); ok {
		r0 = rf(ctx, prompt, contextText)
	} else {
		r0 = ret.String(0)
	}

	if rf, ok := ret.Get(1).(func(context.Context, string, string) error); ok {
		r1 = rf(ctx, prompt, contextText)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// DescribeImage provides a mock function with given fields: ctx, imageRef
func (_m *MockClient) DescribeImage(ctx context.Context, imageRef string) (string, error) {
	ret := _m.Called(ctx, imageRef)

	if len(ret) == 0 {
		panic("no return value specified for DescribeImage")
	}

	var r0 string
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, string) (string, error)); ok {
		return rf(ctx, imageRef)
	}
	if rf, ok := ret.Get(0).(func(context.Context, string) string); ok {
		r0 = rf(ctx, imageRef)
	} else {
		r0 = ret.String(0)
	}

	if rf, ok := ret.Get(1).(func(context.Context, string) error); ok {
		r1 = rf(ctx, imageRef)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}
