// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package apierrors_test

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"storj.io/mantafront/pkg/apierrors"
)

func TestNewSetsStatusFromTable(t *testing.T) {
	err := apierrors.New(apierrors.CodeResourceNotFound, "no such object")
	require.Equal(t, http.StatusNotFound, err.Status)
	require.Equal(t, apierrors.CodeResourceNotFound, err.Code)
}

func TestNewPanicsOnUnregisteredCode(t *testing.T) {
	require.Panics(t, func() {
		apierrors.New(apierrors.Code("NotARealCode"), "oops")
	})
}

func TestBodyNeverLeaksCause(t *testing.T) {
	cause := errors.New("leaky secret detail")
	err := apierrors.Wrap(apierrors.CodeInternalError, "internal error", cause)

	body := err.ToBody()
	require.Equal(t, apierrors.CodeInternalError, body.Code)
	require.NotContains(t, body.Message, "leaky secret detail")
}

func TestAsWalksWrappedChain(t *testing.T) {
	inner := apierrors.New(apierrors.CodeInvalidSignature, "bad signature")
	wrapped := apierrors.Wrap(apierrors.CodeInternalError, "wrapped", inner)

	found := apierrors.As(wrapped)
	require.NotNil(t, found)
	require.Equal(t, apierrors.CodeInternalError, found.Code)
}

func TestClassedPreservesClassMembership(t *testing.T) {
	cause := errors.New("db gone")
	err := apierrors.Classed(apierrors.TransportClass, apierrors.CodeServiceUnavailable, cause)

	require.Equal(t, apierrors.CodeServiceUnavailable, err.Code)
	require.True(t, apierrors.TransportClass.Has(err.Cause))
}

func TestTranslateMetadataError(t *testing.T) {
	cause := errors.New("boom")

	notFound := apierrors.TranslateMetadataError(apierrors.MetadataObjectNotFound, cause, "")
	require.Equal(t, apierrors.CodeResourceNotFound, notFound.Code)

	overloaded := apierrors.TranslateMetadataError(apierrors.MetadataNoDatabasePeers, cause, "some.OverloadedError")
	require.Equal(t, apierrors.CodeServiceUnavailable, overloaded.Code)

	other := apierrors.TranslateMetadataError(apierrors.MetadataNoDatabasePeers, cause, "SomeOtherError")
	require.Equal(t, apierrors.CodeInternalError, other.Code)

	unknown := apierrors.TranslateMetadataError(apierrors.MetadataUnrecognized, cause, "")
	require.Equal(t, apierrors.CodeInternalError, unknown.Code)
}
