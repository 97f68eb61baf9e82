package clusto

import (
	"github.com/uber-go/tally/v4"
)

// Metrics counts entity operations and transaction outcomes of every session of a DXClusto.
type Metrics struct {
	EntityGet      tally.Counter
	EntityGetFail  tally.Counter
	EntityNotFound tally.Counter

	EntityQuery     tally.Counter
	EntityQueryFail tally.Counter

	EntityCreate     tally.Counter
	EntityCreateFail tally.Counter

	EntityRename     tally.Counter
	EntityRenameFail tally.Counter

	EntityDelete     tally.Counter
	EntityDeleteFail tally.Counter

	Flush     tally.Counter
	FlushFail tally.Counter

	TxBegin        tally.Counter
	TxBeginFail    tally.Counter
	TxCommit       tally.Counter
	TxCommitFail   tally.Counter
	TxRollback     tally.Counter
	TxRollbackFail tally.Counter
}

// NewMetrics returns a new Metrics struct, with all metrics initialized and rooted at the given tally.Scope
func NewMetrics(scope tally.Scope) *Metrics {
	entityScope := scope.SubScope("entity")
	entitySuccessScope := entityScope.Tagged(map[string]string{"type": "success"})
	entityFailScope := entityScope.Tagged(map[string]string{"type": "fail"})
	entityNotFoundScope := entityScope.Tagged(map[string]string{"type": "not_found"})

	sessionScope := scope.SubScope("session")
	sessionSuccessScope := sessionScope.Tagged(map[string]string{"type": "success"})
	sessionFailScope := sessionScope.Tagged(map[string]string{"type": "fail"})

	txScope := scope.SubScope("tx")
	txSuccessScope := txScope.Tagged(map[string]string{"type": "success"})
	txFailScope := txScope.Tagged(map[string]string{"type": "fail"})

	return &Metrics{
		EntityGet:      entitySuccessScope.Counter("get"),
		EntityGetFail:  entityFailScope.Counter("get"),
		EntityNotFound: entityNotFoundScope.Counter("get"),

		EntityQuery:     entitySuccessScope.Counter("query"),
		EntityQueryFail: entityFailScope.Counter("query"),

		EntityCreate:     entitySuccessScope.Counter("create"),
		EntityCreateFail: entityFailScope.Counter("create"),

		EntityRename:     entitySuccessScope.Counter("rename"),
		EntityRenameFail: entityFailScope.Counter("rename"),

		EntityDelete:     entitySuccessScope.Counter("delete"),
		EntityDeleteFail: entityFailScope.Counter("delete"),

		Flush:     sessionSuccessScope.Counter("flush"),
		FlushFail: sessionFailScope.Counter("flush"),

		TxBegin:        txSuccessScope.Counter("begin"),
		TxBeginFail:    txFailScope.Counter("begin"),
		TxCommit:       txSuccessScope.Counter("commit"),
		TxCommitFail:   txFailScope.Counter("commit"),
		TxRollback:     txSuccessScope.Counter("rollback"),
		TxRollbackFail: txFailScope.Counter("rollback"),
	}
}
