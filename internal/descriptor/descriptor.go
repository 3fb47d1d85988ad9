// Package descriptor defines Server, the validated, immutable record
// identifying a running backend instance, and the Builder used to
// construct one.
package descriptor

// Server describes a running backend process, however it was obtained
// (discovered on the loopback interface, or spawned by this broker).
// Server is immutable once built; construct it only through Builder.
type Server struct {
	PID     int
	Port    uint16
	BaseURL string
	Name    string
	Command string

	// Owned is true when this broker spawned the process, false when it
	// was merely discovered already running, by process name or by port.
	// See DESIGN.md's Open Question on Owned semantics.
	Owned bool
}
