// Package clock abstracts wall-clock reads and deferred callbacks so that
// retention windows and scheduled transitions can be driven deterministically
// in tests.
//
// Production code uses Real(). Tests construct a Fake and call Advance to move
// time forward; any callbacks registered with AfterFunc whose deadline falls
// inside the advanced window fire in deadline order on the calling goroutine.
package clock
