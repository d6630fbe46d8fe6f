package pgtools

// Monitor queries against the pgautofailover.node table.
const (
	// PrimaryHostSQL selects the host of the writable node.
	PrimaryHostSQL = "select nodehost from pgautofailover.node where reportedstate = 'primary' or reportedstate = 'wait_primary' or reportedstate = 'single'"
	// PrimaryCountSQL counts primary nodes. A healthy cluster has one.
	PrimaryCountSQL = "select count(*) from pgautofailover.node where reportedstate = 'primary' or reportedstate ='wait_primary'"
	// UnsettledCountSQL counts nodes in a transitional or failed state. A
	// healthy cluster has none.
	UnsettledCountSQL = "select count(*) from pgautofailover.node where reportedstate <> 'primary' and reportedstate <> 'secondary' and reportedstate <> 'single' and reportedstate <> 'wait_primary' and reportedstate <> 'catchingup'"
)
