package quotacache

// Hooks lightweight callbacks for high-signal events.
// Implementations MUST be cheap and non-blocking.
// They run on the write queue worker; a slow hook delays every write.
type Hooks interface {
	// A tracked entry was evicted. found=false means the index pointed at an
	// entry the store no longer had (drift).
	Evicted(key string, found bool)

	// A trim found the index empty.
	CacheEmpty()

	// The store rejected a write for capacity; remaining is the retry budget left.
	WriteRejected(key string, remaining int)

	// A write was given up (budget exhausted or store error).
	WriteFailed(key string, err error)

	// A reconciliation pass finished.
	Tidied(report TidyReport)

	// A queued operation panicked and was dropped.
	OperationDropped(op string, err error)
}

// NopHooks is the default no-op
type NopHooks struct{}

func (NopHooks) Evicted(string, bool)           {}
func (NopHooks) CacheEmpty()                    {}
func (NopHooks) WriteRejected(string, int)      {}
func (NopHooks) WriteFailed(string, error)      {}
func (NopHooks) Tidied(TidyReport)              {}
func (NopHooks) OperationDropped(string, error) {}
