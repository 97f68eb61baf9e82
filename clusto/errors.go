package clusto

import (
	"github.com/pkg/errors"

	"github.com/donnyhardyanto/dxclusto/drivers"
)

var (
	// ErrNotFound is returned by GetByName when zero or more than one entity has the name.
	ErrNotFound = errors.New("ENTITY_NOT_FOUND")

	ErrUnknownDriver = drivers.ErrUnknownDriver
	ErrUnknownType   = drivers.ErrUnknownType

	// ErrDuplicateName is returned by a flush that would store two entities with the same name.
	ErrDuplicateName = errors.New("ENTITY_NAME_ALREADY_EXISTS")

	// ErrTransactionRolledBack is returned by the Commit of an outer frame whose
	// transaction was already rolled back by a nested RollbackTransaction.
	ErrTransactionRolledBack = errors.New("TRANSACTION_ALREADY_ROLLED_BACK")

	ErrSessionClosed = errors.New("SESSION_CLOSED")

	ErrDetachedEntity = errors.New("ENTITY_NOT_IN_SESSION")
)
