package clientfactory

import "errors"

var (
	// ErrNoContext is returned when the requested context is absent from
	// the resolved kubeconfig.
	ErrNoContext = errors.New("no such context")
	// ErrAuthUnavailable is returned when the context carries no usable
	// authentication material.
	ErrAuthUnavailable = errors.New("auth unavailable")
	// ErrUnreachable is returned when every connection strategy failed to
	// reach the apiserver.
	ErrUnreachable = errors.New("cluster unreachable")
	// ErrCertRejected is returned when the apiserver's certificate was
	// rejected by every strategy that verifies it.
	ErrCertRejected = errors.New("certificate rejected")
)
