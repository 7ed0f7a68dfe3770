package store

// Job is the GORM model for one row of the job tree, matching spec.md
// §3.1/§6's column list. arg0 names the processor (bk_single_sched/
// bk_single_full/rstr_single/snap/export/put/get/import); arg1..arg7 carry
// stage-specific JSON.
type Job struct {
	ID     int32 `gorm:"column:id;primaryKey"`
	Sub    int32 `gorm:"column:sub"`    // child job id, 0 if none
	Next   int32 `gorm:"column:next"`   // sibling-in-sequence job id, 0 if none
	Parent int32 `gorm:"column:parent"` // immediate parent, self for the root
	Grp    int32 `gorm:"column:grp"`    // scheduling group, self for the root
	Root   int32 `gorm:"column:root"`   // tree root, self for the root

	State  int32 `gorm:"column:state"`  // bitmask: low byte = Sched, upper 3 bytes = extra state
	Done   int32 `gorm:"column:done"`   // non-zero once this job will never be touched again
	Result int32 `gorm:"column:result"` // broker Code or 0, set at TERM

	Policy int32 `gorm:"column:policy"` // bitmask, interpreted per arg0
	FEID   int32 `gorm:"column:feid"`   // frontend-supplied correlation id, opaque to the broker

	Log []byte `gorm:"column:log"` // bounded JSON array, see internal/joblog

	Arg0 string          `gorm:"column:arg0"`
	Arg1 string          `gorm:"column:arg1"`
	Arg2 EncryptedString `gorm:"column:arg2"` // optionally encrypted, see encrypt.go
	Arg3 string          `gorm:"column:arg3"`
	Arg4 string          `gorm:"column:arg4"`
	Arg5 string          `gorm:"column:arg5"`
	Arg6 string          `gorm:"column:arg6"`
	Arg7 string          `gorm:"column:arg7"`
}

// TableName pins the GORM table name to the original schema's name.
func (Job) TableName() string {
	return "jobs"
}
