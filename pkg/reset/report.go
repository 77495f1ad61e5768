package reset

import (
	"fmt"
	"time"

	"github.com/foomo/idreset/pkg/cache"
	"github.com/foomo/idreset/pkg/identity"
	"github.com/foomo/idreset/pkg/store"
	"github.com/foomo/idreset/pkg/store/sqlstore"
)

type (
	// Report accumulates what every stage of a reset did. Stages never
	// discard results of earlier stages.
	Report struct {
		FilesProcessed        int      `json:"filesProcessed"`
		KeysUpdated           int      `json:"keysUpdated"`
		KeysDeleted           int      `json:"keysDeleted"`
		DatabasesSanitized    int      `json:"databasesSanitized"`
		RecordsCleaned        int      `json:"recordsCleaned"`
		DirectoriesCleaned    int      `json:"directoriesCleaned"`
		BytesFreed            int64    `json:"bytesFreed"`
		IdentityFilesRemoved  int      `json:"identityFilesRemoved"`
		MachineIDFilesWritten int      `json:"machineIdFilesWritten"`
		Errors                []string `json:"errors"`
	}
	Result struct {
		Success     bool          `json:"success"`
		BackupID    string        `json:"backupId,omitempty"`
		Identifiers identity.Set  `json:"identifiers,omitempty"`
		Report      Report        `json:"report"`
		Duration    time.Duration `json:"duration"`
	}
)

func (r *Report) addModify(v store.ModifyResult) {
	r.FilesProcessed += v.FilesProcessed
	r.KeysUpdated += v.KeysUpdated
	r.KeysDeleted += v.KeysDeleted
	r.Errors = append(r.Errors, v.Errors...)
}

func (r *Report) addClean(v sqlstore.CleanResult) {
	r.DatabasesSanitized += v.DatabasesProcessed
	r.RecordsCleaned += v.RecordsCleaned
	r.Errors = append(r.Errors, v.Errors...)
}

func (r *Report) addSweep(v cache.Result) {
	r.DirectoriesCleaned += v.DirectoriesCleaned
	r.BytesFreed += v.BytesFreed
	r.Errors = append(r.Errors, v.Errors...)
}

func (r *Report) addPurge(v cache.Result) {
	r.IdentityFilesRemoved += v.EntriesRemoved
	r.BytesFreed += v.BytesFreed
	r.Errors = append(r.Errors, v.Errors...)
}

func (r *Report) addError(path string, err error) {
	r.Errors = append(r.Errors, fmt.Sprintf("%s: %v", path, err))
}
