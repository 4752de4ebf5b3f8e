package txn

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/cuemby/truss/pkg/storage"
	"github.com/cuemby/truss/pkg/types"
)

// Command is one state mutation accumulated while a changeset is
// assembled, dispatched against a single *sql.Tx by apply.
type Command struct {
	Op   string          `json:"op"`
	Data json.RawMessage `json:"data"`
}

func marshalCommand(op string, v any) Command {
	data, err := json.Marshal(v)
	if err != nil {
		// Every value passed to marshalCommand is an internal types.*
		// struct; a marshal failure here means a programming error,
		// not bad input, so it's fine to surface as a command whose
		// Data can't decode rather than threading an error return
		// through every call site.
		data = []byte("null")
	}
	return Command{Op: op, Data: data}
}

// apply dispatches cmd against tx and returns whatever storage.* call
// it made produced — a populated row for commands that assign a
// surrogate id, nil otherwise. This is the changeset mutation-dispatch
// idiom kept from the teacher's Raft FSM's Command{Op,Data}+switch
// Apply (which likewise returned interface{} for the caller to type-
// assert), re-grounded on a local SQL transaction instead of a
// replicated log.
func apply(tx *sql.Tx, cmd Command) (any, error) {
	switch cmd.Op {
	case "create_trove":
		var t types.Trove
		if err := json.Unmarshal(cmd.Data, &t); err != nil {
			return nil, fmt.Errorf("txn: fsm: unmarshal create_trove: %w", err)
		}
		if err := storage.CreateTrove(tx, &t); err != nil {
			return nil, err
		}
		return &t, nil

	case "delete_trove":
		var id int64
		if err := json.Unmarshal(cmd.Data, &id); err != nil {
			return nil, fmt.Errorf("txn: fsm: unmarshal delete_trove: %w", err)
		}
		return nil, storage.DeleteTrove(tx, id)

	case "create_changeset":
		var c types.Changeset
		if err := json.Unmarshal(cmd.Data, &c); err != nil {
			return nil, fmt.Errorf("txn: fsm: unmarshal create_changeset: %w", err)
		}
		if err := storage.CreateChangeset(tx, &c); err != nil {
			return nil, err
		}
		return &c, nil

	case "put_file_record":
		var f types.FileRecord
		if err := json.Unmarshal(cmd.Data, &f); err != nil {
			return nil, fmt.Errorf("txn: fsm: unmarshal put_file_record: %w", err)
		}
		return nil, storage.PutFileRecord(tx, f)

	case "delete_file_record":
		var arg struct {
			TroveID int64
			Path    string
		}
		if err := json.Unmarshal(cmd.Data, &arg); err != nil {
			return nil, fmt.Errorf("txn: fsm: unmarshal delete_file_record: %w", err)
		}
		return nil, storage.DeleteFileRecord(tx, arg.TroveID, arg.Path)

	case "put_content_object":
		var c types.ContentObject
		if err := json.Unmarshal(cmd.Data, &c); err != nil {
			return nil, fmt.Errorf("txn: fsm: unmarshal put_content_object: %w", err)
		}
		return nil, storage.PutContentObject(tx, c)

	case "delete_content_object":
		var hash string
		if err := json.Unmarshal(cmd.Data, &hash); err != nil {
			return nil, fmt.Errorf("txn: fsm: unmarshal delete_content_object: %w", err)
		}
		return nil, storage.DeleteContentObject(tx, hash)

	case "put_file_history_entry":
		var e types.FileHistoryEntry
		if err := json.Unmarshal(cmd.Data, &e); err != nil {
			return nil, fmt.Errorf("txn: fsm: unmarshal put_file_history_entry: %w", err)
		}
		return nil, storage.PutFileHistoryEntry(tx, e)

	case "put_dependency":
		var d types.Dependency
		if err := json.Unmarshal(cmd.Data, &d); err != nil {
			return nil, fmt.Errorf("txn: fsm: unmarshal put_dependency: %w", err)
		}
		return nil, storage.PutDependency(tx, d)

	case "put_flavor":
		var f types.Flavor
		if err := json.Unmarshal(cmd.Data, &f); err != nil {
			return nil, fmt.Errorf("txn: fsm: unmarshal put_flavor: %w", err)
		}
		return nil, storage.PutFlavor(tx, f)

	case "put_provenance":
		var p types.Provenance
		if err := json.Unmarshal(cmd.Data, &p); err != nil {
			return nil, fmt.Errorf("txn: fsm: unmarshal put_provenance: %w", err)
		}
		return nil, storage.PutProvenance(tx, p)

	case "set_changeset_status":
		var arg struct {
			ID     int64
			Status types.ChangesetStatus
		}
		if err := json.Unmarshal(cmd.Data, &arg); err != nil {
			return nil, fmt.Errorf("txn: fsm: unmarshal set_changeset_status: %w", err)
		}
		return nil, storage.SetChangesetStatus(tx, arg.ID, arg.Status)

	case "set_changeset_reversed_by":
		var arg struct {
			ID         int64
			ReversedBy int64
		}
		if err := json.Unmarshal(cmd.Data, &arg); err != nil {
			return nil, fmt.Errorf("txn: fsm: unmarshal set_changeset_reversed_by: %w", err)
		}
		return nil, storage.SetChangesetReversedBy(tx, arg.ID, arg.ReversedBy)

	case "put_delta_stats":
		var s types.DeltaStatsEntry
		if err := json.Unmarshal(cmd.Data, &s); err != nil {
			return nil, fmt.Errorf("txn: fsm: unmarshal put_delta_stats: %w", err)
		}
		return nil, storage.PutDeltaStats(tx, s)

	default:
		return nil, fmt.Errorf("txn: fsm: unknown command: %s", cmd.Op)
	}
}

// applyAll dispatches cmds against tx in order, stopping at the first
// error. It's used for the tail of a changeset's mutations, once any
// id-generating creates have already run through apply directly.
func applyAll(tx *sql.Tx, cmds []Command) error {
	for _, cmd := range cmds {
		if _, err := apply(tx, cmd); err != nil {
			return err
		}
	}
	return nil
}
