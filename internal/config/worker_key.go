package config

type WorkerKeyStruct struct {
	PersistIntegrityQueue   string
	PersistSubmissionsQueue string
}

var WorkerKey = &WorkerKeyStruct{
	PersistIntegrityQueue:   "persist_integrity_queue",
	PersistSubmissionsQueue: "persist_submissions_queue",
}
