package swarm

import "errors"

var (
	// ErrSecretExists is returned when creating a secret whose name is taken.
	ErrSecretExists = errors.New("secret already exists")

	// ErrSecretNotFound is returned for operations on an absent secret.
	ErrSecretNotFound = errors.New("secret not found")

	// ErrServiceNotFound is returned for operations on an absent service.
	ErrServiceNotFound = errors.New("service not found")

	// ErrTargetUnavailable is returned when the Swarm control plane does
	// not become ready within the bounded wait.
	ErrTargetUnavailable = errors.New("swarm control plane unavailable")

	// ErrTaskNotFound is returned when polling a task that no longer exists.
	ErrTaskNotFound = errors.New("task not found")
)
