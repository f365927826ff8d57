package metrics

// Nop is a Metrics implementation that discards everything. Useful in tests
// and when metrics are disabled.
type Nop struct{}

func (Nop) RecordDecoded(string)            {}
func (Nop) RecordSignal(string, string)     {}
func (Nop) RecordReconnect()                {}
func (Nop) RecordHeartbeatTimeout()         {}
func (Nop) RecordDropped(string)            {}
func (Nop) RecordError(string)              {}
func (Nop) RecordLastPrice(string, float64) {}
func (Nop) RecordLatency(string, float64)   {}
