package clustering

// Names of the shared objects the platform components agree on.
const (
	// OperationalProcesses maps member IDs to the names of members that
	// finished starting up.
	OperationalProcesses = "operational_processes"

	// Leader holds the ID of the member running the leader-only jobs.
	Leader = "leader"

	// ClusterName holds the name every member must be configured with.
	ClusterName = "cluster_name"

	// PlatformVersion holds the version every member must run.
	PlatformVersion = "platform_version"

	// WorkerIDs maps member IDs to the IDs of the workers they run.
	WorkerIDs = "worker_ids"

	// CleanupJobLock guards the periodic cleanup job.
	CleanupJobLock = "cleanup_job"
)
